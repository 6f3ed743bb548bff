package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"alfred-ai/internal/domain"
)

// CommunicationStore implements domain.CommunicationStore against SQLite.
type CommunicationStore struct {
	db *DB
}

func NewCommunicationStore(db *DB) *CommunicationStore { return &CommunicationStore{db: db} }

const commSelectColumns = `SELECT id, lead_id, conversation_id, channel, external_id, status, idempotency_key, sent_at, delivered_at, created_at, updated_at, version`

func (s *CommunicationStore) FindByIdempotencyKey(ctx context.Context, key string) (domain.Communication, bool, error) {
	row := s.db.sql.QueryRowContext(ctx, commSelectColumns+" FROM communications WHERE idempotency_key = ?", key)
	return scanCommOptional(row)
}

func (s *CommunicationStore) FindByExternalID(ctx context.Context, externalID string) (domain.Communication, bool, error) {
	if externalID == "" {
		return domain.Communication{}, false, nil
	}
	row := s.db.sql.QueryRowContext(ctx, commSelectColumns+" FROM communications WHERE external_id = ?", externalID)
	return scanCommOptional(row)
}

func (s *CommunicationStore) Create(ctx context.Context, c domain.Communication) (domain.Communication, error) {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Version = 1

	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO communications (id, lead_id, conversation_id, channel, external_id, status, idempotency_key, sent_at, delivered_at, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.LeadID, c.ConversationID, string(c.Channel), c.ExternalID, string(c.Status), c.IdempotencyKey,
		c.SentAt, c.DeliveredAt, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), c.Version,
	)
	if err != nil {
		return domain.Communication{}, err
	}
	return c, nil
}

// UpdateStatus applies a carrier-reported status transition. A delivered
// status also stamps DeliveredAt with the current time, matching the
// teacher's pattern of deriving timestamp columns at the write site rather
// than trusting carrier-supplied clocks.
func (s *CommunicationStore) UpdateStatus(ctx context.Context, id string, status domain.CommunicationStatus, externalID string) error {
	now := time.Now().UTC()
	var deliveredAt *int64
	if status == domain.CommDelivered {
		ts := now.Unix()
		deliveredAt = &ts
	}

	var res sql.Result
	var err error
	if externalID != "" {
		res, err = s.db.sql.ExecContext(ctx, `
			UPDATE communications SET status = ?, external_id = ?, delivered_at = COALESCE(?, delivered_at), updated_at = ?, version = version + 1
			WHERE id = ?`,
			string(status), externalID, deliveredAt, now.Format(time.RFC3339Nano), id)
	} else {
		res, err = s.db.sql.ExecContext(ctx, `
			UPDATE communications SET status = ?, delivered_at = COALESCE(?, delivered_at), updated_at = ?, version = version + 1
			WHERE id = ?`,
			string(status), deliveredAt, now.Format(time.RFC3339Nano), id)
	}
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewDomainError("CommunicationStore.UpdateStatus", domain.ErrNotFound, id)
	}
	return nil
}

func (s *CommunicationStore) CountSentSince(ctx context.Context, campaignID string, sinceUnix int64) (int, error) {
	var count int
	err := s.db.sql.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM communications c
		JOIN leads l ON l.id = c.lead_id
		WHERE l.campaign_id = ? AND c.sent_at IS NOT NULL AND c.sent_at >= ?`,
		campaignID, sinceUnix).Scan(&count)
	return count, err
}

func scanCommOptional(row rowScanner) (domain.Communication, bool, error) {
	c, err := scanComm(row)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Communication{}, false, nil
	}
	if err != nil {
		return domain.Communication{}, false, err
	}
	return c, true, nil
}

func scanComm(row rowScanner) (domain.Communication, error) {
	var c domain.Communication
	var channel, status, createdAt, updatedAt string
	err := row.Scan(&c.ID, &c.LeadID, &c.ConversationID, &channel, &c.ExternalID, &status, &c.IdempotencyKey,
		&c.SentAt, &c.DeliveredAt, &createdAt, &updatedAt, &c.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Communication{}, domain.NewDomainError("CommunicationStore", domain.ErrNotFound, "communication")
	}
	if err != nil {
		return domain.Communication{}, err
	}
	c.Channel = domain.LeadChannel(channel)
	c.Status = domain.CommunicationStatus(status)
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return c, nil
}
