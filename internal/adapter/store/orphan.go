package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"alfred-ai/internal/domain"
)

// OrphanReplyStore implements domain.OrphanReplyStore against SQLite.
type OrphanReplyStore struct {
	db *DB
}

func NewOrphanReplyStore(db *DB) *OrphanReplyStore { return &OrphanReplyStore{db: db} }

func (s *OrphanReplyStore) Create(ctx context.Context, o domain.OrphanReply) error {
	if o.ReceivedAt.IsZero() {
		o.ReceivedAt = time.Now().UTC()
	}
	metaJSON, err := json.Marshal(o.Metadata)
	if err != nil {
		return fmt.Errorf("marshal orphan reply metadata: %w", err)
	}
	_, err = s.db.sql.ExecContext(ctx, `
		INSERT INTO orphan_replies (id, channel, from_address, raw_payload, received_at, reason, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, string(o.Channel), o.FromAddress, o.RawPayload, o.ReceivedAt.Format(time.RFC3339Nano), o.Reason, string(metaJSON),
	)
	return err
}

func (s *OrphanReplyStore) List(ctx context.Context, limit int) ([]domain.OrphanReply, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT id, channel, from_address, raw_payload, received_at, reason, metadata
		FROM orphan_replies ORDER BY received_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OrphanReply
	for rows.Next() {
		var o domain.OrphanReply
		var channel, receivedAt, metaJSON string
		if err := rows.Scan(&o.ID, &channel, &o.FromAddress, &o.RawPayload, &receivedAt, &o.Reason, &metaJSON); err != nil {
			return nil, err
		}
		o.Channel = domain.LeadChannel(channel)
		o.ReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedAt)
		if err := json.Unmarshal([]byte(metaJSON), &o.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal orphan reply metadata: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
