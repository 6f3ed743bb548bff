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

// TemplateStore implements domain.TemplateStore against SQLite.
type TemplateStore struct {
	db *DB
}

func NewTemplateStore(db *DB) *TemplateStore { return &TemplateStore{db: db} }

func (s *TemplateStore) Get(ctx context.Context, id string) (domain.Template, error) {
	row := s.db.sql.QueryRowContext(ctx, `
		SELECT id, name, subject, body, variables, category, created_at, updated_at, version
		FROM templates WHERE id = ?`, id)
	return scanTemplate(row)
}

// Upsert inserts or replaces a Template row, used by admin tooling and
// fixture seeding.
func (s *TemplateStore) Upsert(ctx context.Context, t domain.Template) (domain.Template, error) {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Version == 0 {
		t.Version = 1
	}

	varsJSON, err := json.Marshal(t.Variables)
	if err != nil {
		return domain.Template{}, fmt.Errorf("marshal template variables: %w", err)
	}

	_, err = s.db.sql.ExecContext(ctx, `
		INSERT INTO templates (id, name, subject, body, variables, category, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, subject = excluded.subject, body = excluded.body,
			variables = excluded.variables, category = excluded.category,
			updated_at = excluded.updated_at, version = excluded.version`,
		t.ID, t.Name, t.Subject, t.Body, string(varsJSON), t.Category,
		t.CreatedAt.Format(time.RFC3339Nano), t.UpdatedAt.Format(time.RFC3339Nano), t.Version,
	)
	if err != nil {
		return domain.Template{}, err
	}
	return t, nil
}

func scanTemplate(row rowScanner) (domain.Template, error) {
	var t domain.Template
	var varsJSON, createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.Name, &t.Subject, &t.Body, &varsJSON, &t.Category, &createdAt, &updatedAt, &t.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Template{}, domain.NewDomainError("TemplateStore", domain.ErrNotFound, "template")
	}
	if err != nil {
		return domain.Template{}, err
	}
	if err := json.Unmarshal([]byte(varsJSON), &t.Variables); err != nil {
		return domain.Template{}, fmt.Errorf("unmarshal template variables: %w", err)
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return t, nil
}
