package store

import (
	"context"
	"database/sql"
	"errors"

	"alfred-ai/internal/domain"
)

// BreakerStateStore implements domain.CircuitBreakerStateStore against
// SQLite. resilience.BreakerRegistry saves every breaker transition here but
// never calls Load, so a restarted or second worker does not pick the stored
// state up; each starts with closed breakers.
type BreakerStateStore struct {
	db *DB
}

func NewBreakerStateStore(db *DB) *BreakerStateStore { return &BreakerStateStore{db: db} }

func (s *BreakerStateStore) Load(ctx context.Context, service string) (domain.BreakerSnapshot, bool, error) {
	var snap domain.BreakerSnapshot
	err := s.db.sql.QueryRowContext(ctx, `
		SELECT service, state, failures, successes, opened_at_unix FROM breaker_snapshots WHERE service = ?`, service,
	).Scan(&snap.Service, &snap.State, &snap.Failures, &snap.Successes, &snap.OpenedAtUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BreakerSnapshot{}, false, nil
	}
	if err != nil {
		return domain.BreakerSnapshot{}, false, err
	}
	return snap, true, nil
}

func (s *BreakerStateStore) Save(ctx context.Context, service string, snap domain.BreakerSnapshot) error {
	_, err := s.db.sql.ExecContext(ctx, `
		INSERT INTO breaker_snapshots (service, state, failures, successes, opened_at_unix)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(service) DO UPDATE SET
			state = excluded.state, failures = excluded.failures,
			successes = excluded.successes, opened_at_unix = excluded.opened_at_unix`,
		service, snap.State, snap.Failures, snap.Successes, snap.OpenedAtUnix,
	)
	return err
}
