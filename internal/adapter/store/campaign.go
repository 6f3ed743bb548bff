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

// CampaignStore implements domain.CampaignStore against SQLite. Campaigns are
// operator-managed configuration; this store is read-only at the domain
// boundary (spec.md has no CampaignStore.Create/Update operation), but
// carries an Upsert for seeding and the admin tooling that manages them.
type CampaignStore struct {
	db *DB
}

func NewCampaignStore(db *DB) *CampaignStore { return &CampaignStore{db: db} }

func (s *CampaignStore) Get(ctx context.Context, id string) (domain.Campaign, error) {
	row := s.db.sql.QueryRowContext(ctx, `
		SELECT id, name, agent_id, mode, sequence, settings, created_at, updated_at, version
		FROM campaigns WHERE id = ?`, id)
	return scanCampaign(row)
}

func (s *CampaignStore) List(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT id, name, agent_id, mode, sequence, settings, created_at, updated_at, version
		FROM campaigns ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Upsert inserts or replaces a Campaign row. Used by admin tooling and
// fixture seeding, not by the engagement runtime itself.
func (s *CampaignStore) Upsert(ctx context.Context, c domain.Campaign) (domain.Campaign, error) {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Version == 0 {
		c.Version = 1
	}

	seqJSON, err := json.Marshal(c.TouchSequence)
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("marshal touch sequence: %w", err)
	}
	settingsJSON, err := json.Marshal(c.Settings)
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("marshal campaign settings: %w", err)
	}

	_, err = s.db.sql.ExecContext(ctx, `
		INSERT INTO campaigns (id, name, agent_id, mode, sequence, settings, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, agent_id = excluded.agent_id, mode = excluded.mode,
			sequence = excluded.sequence, settings = excluded.settings,
			updated_at = excluded.updated_at, version = excluded.version`,
		c.ID, c.Name, c.AgentID, string(c.ConversationMode), string(seqJSON), string(settingsJSON),
		c.CreatedAt.Format(time.RFC3339Nano), c.UpdatedAt.Format(time.RFC3339Nano), c.Version,
	)
	if err != nil {
		return domain.Campaign{}, err
	}
	return c, nil
}

func scanCampaign(row rowScanner) (domain.Campaign, error) {
	var c domain.Campaign
	var mode, seqJSON, settingsJSON, createdAt, updatedAt string
	err := row.Scan(&c.ID, &c.Name, &c.AgentID, &mode, &seqJSON, &settingsJSON, &createdAt, &updatedAt, &c.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Campaign{}, domain.NewDomainError("CampaignStore", domain.ErrNotFound, "campaign")
	}
	if err != nil {
		return domain.Campaign{}, err
	}
	c.ConversationMode = domain.ConversationMode(mode)
	if err := json.Unmarshal([]byte(seqJSON), &c.TouchSequence); err != nil {
		return domain.Campaign{}, fmt.Errorf("unmarshal touch sequence: %w", err)
	}
	if err := json.Unmarshal([]byte(settingsJSON), &c.Settings); err != nil {
		return domain.Campaign{}, fmt.Errorf("unmarshal campaign settings: %w", err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return c, nil
}
