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

// ConversationStore implements domain.ConversationStore against SQLite.
type ConversationStore struct {
	db *DB
}

func NewConversationStore(db *DB) *ConversationStore { return &ConversationStore{db: db} }

const convSelectColumns = `SELECT id, lead_id, channel, status, close_reason, messages, created_at, updated_at, version`

func (s *ConversationStore) Create(ctx context.Context, conv domain.LeadConversation) (domain.LeadConversation, error) {
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	conv.Version = 1

	msgJSON, err := json.Marshal(conv.Messages)
	if err != nil {
		return domain.LeadConversation{}, fmt.Errorf("marshal conversation messages: %w", err)
	}

	_, err = s.db.sql.ExecContext(ctx, `
		INSERT INTO conversations (id, lead_id, channel, status, close_reason, messages, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.LeadID, string(conv.Channel), string(conv.Status), conv.CloseReason, string(msgJSON),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), conv.Version,
	)
	if err != nil {
		return domain.LeadConversation{}, err
	}
	return conv, nil
}

func (s *ConversationStore) Get(ctx context.Context, id string) (domain.LeadConversation, error) {
	row := s.db.sql.QueryRowContext(ctx, convSelectColumns+" FROM conversations WHERE id = ?", id)
	return scanConversation(row)
}

// ActiveForChannel returns the single active (non-closed) conversation for a
// lead on one channel, enforcing the at-most-one-active invariant at read
// time; writers enforce it by only ever creating a new row once the prior
// one is closed.
func (s *ConversationStore) ActiveForChannel(ctx context.Context, leadID string, ch domain.LeadChannel) (domain.LeadConversation, bool, error) {
	row := s.db.sql.QueryRowContext(ctx, convSelectColumns+` FROM conversations
		WHERE lead_id = ? AND channel = ? AND status != ? ORDER BY created_at DESC LIMIT 1`,
		leadID, string(ch), string(domain.ConvClosed))
	conv, err := scanConversation(row)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.LeadConversation{}, false, nil
	}
	if err != nil {
		return domain.LeadConversation{}, false, err
	}
	return conv, true, nil
}

func (s *ConversationStore) MostRecentAwaitingReply(ctx context.Context, leadID string) (domain.LeadConversation, bool, error) {
	row := s.db.sql.QueryRowContext(ctx, convSelectColumns+` FROM conversations
		WHERE lead_id = ? AND status = ? ORDER BY updated_at DESC LIMIT 1`,
		leadID, string(domain.ConvAwaitingReply))
	conv, err := scanConversation(row)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.LeadConversation{}, false, nil
	}
	if err != nil {
		return domain.LeadConversation{}, false, err
	}
	return conv, true, nil
}

func (s *ConversationStore) CompareAndSwap(ctx context.Context, conv domain.LeadConversation) (domain.LeadConversation, error) {
	msgJSON, err := json.Marshal(conv.Messages)
	if err != nil {
		return domain.LeadConversation{}, fmt.Errorf("marshal conversation messages: %w", err)
	}
	now := time.Now().UTC()
	nextVersion := conv.Version + 1

	res, err := s.db.sql.ExecContext(ctx, `
		UPDATE conversations SET status = ?, close_reason = ?, messages = ?, updated_at = ?, version = ?
		WHERE id = ? AND version = ?`,
		string(conv.Status), conv.CloseReason, string(msgJSON), now.Format(time.RFC3339Nano), nextVersion,
		conv.ID, conv.Version,
	)
	if err != nil {
		return domain.LeadConversation{}, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.LeadConversation{}, domain.NewDomainError("ConversationStore.CompareAndSwap", domain.ErrIdempotencyConflict, conv.ID)
	}
	conv.UpdatedAt = now
	conv.Version = nextVersion
	return conv, nil
}

func scanConversation(row rowScanner) (domain.LeadConversation, error) {
	var c domain.LeadConversation
	var channel, status, msgJSON, createdAt, updatedAt string
	err := row.Scan(&c.ID, &c.LeadID, &channel, &status, &c.CloseReason, &msgJSON, &createdAt, &updatedAt, &c.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LeadConversation{}, domain.NewDomainError("ConversationStore", domain.ErrNotFound, "conversation")
	}
	if err != nil {
		return domain.LeadConversation{}, err
	}
	c.Channel = domain.LeadChannel(channel)
	c.Status = domain.ConversationStatus(status)
	if err := json.Unmarshal([]byte(msgJSON), &c.Messages); err != nil {
		return domain.LeadConversation{}, fmt.Errorf("unmarshal conversation messages: %w", err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return c, nil
}
