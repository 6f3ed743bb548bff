package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"alfred-ai/internal/domain"
)

// HandoverStore implements domain.HandoverStore against SQLite.
type HandoverStore struct {
	db *DB
}

func NewHandoverStore(db *DB) *HandoverStore { return &HandoverStore{db: db} }

const handoverSelectColumns = `SELECT id, lead_id, conversation_id, reason, dossier, destinations, attempts, confirmed_at, follow_up_at, created_at, updated_at, version`

func (s *HandoverStore) Create(ctx context.Context, h domain.HandoverExecution) (domain.HandoverExecution, error) {
	now := time.Now().UTC()
	h.CreatedAt = now
	h.UpdatedAt = now
	h.Version = 1

	dossierJSON, err := json.Marshal(h.Dossier)
	if err != nil {
		return domain.HandoverExecution{}, fmt.Errorf("marshal dossier: %w", err)
	}
	destJSON, err := json.Marshal(h.Destinations)
	if err != nil {
		return domain.HandoverExecution{}, fmt.Errorf("marshal destinations: %w", err)
	}
	attemptsJSON, err := json.Marshal(h.Attempts)
	if err != nil {
		return domain.HandoverExecution{}, fmt.Errorf("marshal attempts: %w", err)
	}

	_, err = s.db.sql.ExecContext(ctx, `
		INSERT INTO handover_executions (id, lead_id, conversation_id, reason, dossier, destinations, attempts, confirmed_at, follow_up_at, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.LeadID, h.ConversationID, h.Reason, string(dossierJSON), string(destJSON), string(attemptsJSON),
		formatTimePtr(h.ConfirmedAt), formatTimePtr(h.FollowUpAt),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), h.Version,
	)
	if err != nil {
		return domain.HandoverExecution{}, err
	}
	return h, nil
}

func (s *HandoverStore) ExistsForConversation(ctx context.Context, conversationID string) (bool, error) {
	var count int
	err := s.db.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM handover_executions WHERE conversation_id = ?", conversationID).Scan(&count)
	return count > 0, err
}

func (s *HandoverStore) Get(ctx context.Context, id string) (domain.HandoverExecution, error) {
	row := s.db.sql.QueryRowContext(ctx, handoverSelectColumns+" FROM handover_executions WHERE id = ?", id)
	return scanHandover(row)
}

func (s *HandoverStore) Update(ctx context.Context, h domain.HandoverExecution) error {
	now := time.Now().UTC()

	dossierJSON, err := json.Marshal(h.Dossier)
	if err != nil {
		return fmt.Errorf("marshal dossier: %w", err)
	}
	destJSON, err := json.Marshal(h.Destinations)
	if err != nil {
		return fmt.Errorf("marshal destinations: %w", err)
	}
	attemptsJSON, err := json.Marshal(h.Attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}

	res, err := s.db.sql.ExecContext(ctx, `
		UPDATE handover_executions SET reason = ?, dossier = ?, destinations = ?, attempts = ?,
			confirmed_at = ?, follow_up_at = ?, updated_at = ?, version = version + 1
		WHERE id = ?`,
		h.Reason, string(dossierJSON), string(destJSON), string(attemptsJSON),
		formatTimePtr(h.ConfirmedAt), formatTimePtr(h.FollowUpAt), now.Format(time.RFC3339Nano), h.ID,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewDomainError("HandoverStore.Update", domain.ErrNotFound, h.ID)
	}
	return nil
}

func (s *HandoverStore) PendingFollowUps(ctx context.Context, beforeUnix int64) ([]domain.HandoverExecution, error) {
	before := time.Unix(beforeUnix, 0).UTC().Format(time.RFC3339Nano)
	rows, err := s.db.sql.QueryContext(ctx, handoverSelectColumns+`
		FROM handover_executions
		WHERE follow_up_at IS NOT NULL AND follow_up_at <= ? AND confirmed_at IS NULL
		ORDER BY follow_up_at`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.HandoverExecution
	for rows.Next() {
		h, err := scanHandover(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHandover(row rowScanner) (domain.HandoverExecution, error) {
	var h domain.HandoverExecution
	var dossierJSON, destJSON, attemptsJSON, createdAt, updatedAt string
	var confirmedAt, followUpAt sql.NullString
	err := row.Scan(&h.ID, &h.LeadID, &h.ConversationID, &h.Reason, &dossierJSON, &destJSON, &attemptsJSON,
		&confirmedAt, &followUpAt, &createdAt, &updatedAt, &h.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.HandoverExecution{}, domain.NewDomainError("HandoverStore", domain.ErrNotFound, "handover")
	}
	if err != nil {
		return domain.HandoverExecution{}, err
	}
	if err := json.Unmarshal([]byte(dossierJSON), &h.Dossier); err != nil {
		return domain.HandoverExecution{}, fmt.Errorf("unmarshal dossier: %w", err)
	}
	if err := json.Unmarshal([]byte(destJSON), &h.Destinations); err != nil {
		return domain.HandoverExecution{}, fmt.Errorf("unmarshal destinations: %w", err)
	}
	if err := json.Unmarshal([]byte(attemptsJSON), &h.Attempts); err != nil {
		return domain.HandoverExecution{}, fmt.Errorf("unmarshal attempts: %w", err)
	}
	h.ConfirmedAt = parseTimePtr(confirmedAt)
	h.FollowUpAt = parseTimePtr(followUpAt)
	h.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	h.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return h, nil
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
