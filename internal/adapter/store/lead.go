package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"alfred-ai/internal/domain"
)

// LeadStore implements domain.LeadStore against SQLite.
type LeadStore struct {
	db *DB
}

// NewLeadStore builds a LeadStore on an already-open DB.
func NewLeadStore(db *DB) *LeadStore { return &LeadStore{db: db} }

func (s *LeadStore) Create(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	now := time.Now().UTC()
	lead.CreatedAt = now
	lead.UpdatedAt = now
	lead.Version = 1
	if lead.Phone != "" {
		lead.Phone = domain.NormalizePhone(lead.Phone)
	}

	metaJSON, err := json.Marshal(lead.Metadata)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("marshal lead metadata: %w", err)
	}

	_, err = s.db.sql.ExecContext(ctx, `
		INSERT INTO leads (id, name, email, phone, source, campaign_id, status, dedupe_key, metadata, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.Name, lead.Email, lead.Phone, lead.Source, lead.CampaignID, string(lead.Status),
		lead.DedupeKey(), string(metaJSON),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), lead.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Lead{}, domain.NewDomainError("LeadStore.Create", domain.ErrDuplicateLead, lead.DedupeKey())
		}
		return domain.Lead{}, err
	}
	return lead, nil
}

func (s *LeadStore) Get(ctx context.Context, id string) (domain.Lead, error) {
	row := s.db.sql.QueryRowContext(ctx, leadSelectColumns+" FROM leads WHERE id = ?", id)
	return scanLead(row)
}

func (s *LeadStore) FindByDedupeKey(ctx context.Context, key string) (domain.Lead, bool, error) {
	row := s.db.sql.QueryRowContext(ctx, leadSelectColumns+" FROM leads WHERE dedupe_key = ?", key)
	lead, err := scanLead(row)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Lead{}, false, nil
	}
	if err != nil {
		return domain.Lead{}, false, err
	}
	return lead, true, nil
}

func (s *LeadStore) FindByEmail(ctx context.Context, email string) ([]domain.Lead, error) {
	rows, err := s.db.sql.QueryContext(ctx, leadSelectColumns+" FROM leads WHERE email = ? ORDER BY created_at", email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLeadRows(rows)
}

func (s *LeadStore) FindByPhone(ctx context.Context, phone string) ([]domain.Lead, error) {
	rows, err := s.db.sql.QueryContext(ctx, leadSelectColumns+" FROM leads WHERE phone = ? ORDER BY created_at", domain.NormalizePhone(phone))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLeadRows(rows)
}

// CompareAndSwap updates lead iff the stored Version still matches
// lead.Version, mirroring the optimistic-concurrency contract spec.md §6
// requires of every versioned row.
func (s *LeadStore) CompareAndSwap(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	if lead.Phone != "" {
		lead.Phone = domain.NormalizePhone(lead.Phone)
	}
	metaJSON, err := json.Marshal(lead.Metadata)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("marshal lead metadata: %w", err)
	}
	now := time.Now().UTC()
	nextVersion := lead.Version + 1

	res, err := s.db.sql.ExecContext(ctx, `
		UPDATE leads SET name = ?, email = ?, phone = ?, source = ?, campaign_id = ?, status = ?,
			dedupe_key = ?, metadata = ?, updated_at = ?, version = ?
		WHERE id = ? AND version = ?`,
		lead.Name, lead.Email, lead.Phone, lead.Source, lead.CampaignID, string(lead.Status),
		lead.DedupeKey(), string(metaJSON), now.Format(time.RFC3339Nano), nextVersion,
		lead.ID, lead.Version,
	)
	if err != nil {
		return domain.Lead{}, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.Lead{}, domain.NewDomainError("LeadStore.CompareAndSwap", domain.ErrIdempotencyConflict, lead.ID)
	}
	lead.UpdatedAt = now
	lead.Version = nextVersion
	return lead, nil
}

const leadSelectColumns = `SELECT id, name, email, phone, source, campaign_id, status, metadata, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (domain.Lead, error) {
	var l domain.Lead
	var status, metaJSON, createdAt, updatedAt string
	err := row.Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.Source, &l.CampaignID, &status, &metaJSON, &createdAt, &updatedAt, &l.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Lead{}, domain.NewDomainError("LeadStore", domain.ErrNotFound, "lead")
	}
	if err != nil {
		return domain.Lead{}, err
	}
	l.Status = domain.LeadStatus(status)
	if err := json.Unmarshal([]byte(metaJSON), &l.Metadata); err != nil {
		return domain.Lead{}, fmt.Errorf("unmarshal lead metadata: %w", err)
	}
	l.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	l.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return l, nil
}

func scanLeadRows(rows *sql.Rows) ([]domain.Lead, error) {
	var out []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
