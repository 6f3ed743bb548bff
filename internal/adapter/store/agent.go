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

// EngagementAgentStore implements domain.EngagementAgentStore against SQLite.
type EngagementAgentStore struct {
	db *DB
}

func NewEngagementAgentStore(db *DB) *EngagementAgentStore { return &EngagementAgentStore{db: db} }

const agentSelectColumns = `SELECT id, kind, end_goal, personality, instructions, domain_expertise, created_at, updated_at, version`

func (s *EngagementAgentStore) Get(ctx context.Context, id string) (domain.EngagementAgent, error) {
	row := s.db.sql.QueryRowContext(ctx, agentSelectColumns+" FROM engagement_agents WHERE id = ?", id)
	return scanAgent(row)
}

func (s *EngagementAgentStore) GetByKind(ctx context.Context, kind domain.AgentKind) (domain.EngagementAgent, error) {
	row := s.db.sql.QueryRowContext(ctx, agentSelectColumns+" FROM engagement_agents WHERE kind = ? ORDER BY created_at LIMIT 1", string(kind))
	return scanAgent(row)
}

// Upsert inserts or replaces an EngagementAgent row, used by admin tooling
// and fixture seeding.
func (s *EngagementAgentStore) Upsert(ctx context.Context, a domain.EngagementAgent) (domain.EngagementAgent, error) {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Version == 0 {
		a.Version = 1
	}

	instrJSON, err := json.Marshal(a.Instructions)
	if err != nil {
		return domain.EngagementAgent{}, fmt.Errorf("marshal agent instructions: %w", err)
	}

	_, err = s.db.sql.ExecContext(ctx, `
		INSERT INTO engagement_agents (id, kind, end_goal, personality, instructions, domain_expertise, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind, end_goal = excluded.end_goal, personality = excluded.personality,
			instructions = excluded.instructions, domain_expertise = excluded.domain_expertise,
			updated_at = excluded.updated_at, version = excluded.version`,
		a.ID, string(a.Kind), a.EndGoal, a.Personality, string(instrJSON), a.DomainExpertise,
		a.CreatedAt.Format(time.RFC3339Nano), a.UpdatedAt.Format(time.RFC3339Nano), a.Version,
	)
	if err != nil {
		return domain.EngagementAgent{}, err
	}
	return a, nil
}

func scanAgent(row rowScanner) (domain.EngagementAgent, error) {
	var a domain.EngagementAgent
	var kind, instrJSON, createdAt, updatedAt string
	err := row.Scan(&a.ID, &kind, &a.EndGoal, &a.Personality, &instrJSON, &a.DomainExpertise, &createdAt, &updatedAt, &a.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EngagementAgent{}, domain.NewDomainError("EngagementAgentStore", domain.ErrNotFound, "agent")
	}
	if err != nil {
		return domain.EngagementAgent{}, err
	}
	a.Kind = domain.AgentKind(kind)
	if err := json.Unmarshal([]byte(instrJSON), &a.Instructions); err != nil {
		return domain.EngagementAgent{}, fmt.Errorf("unmarshal agent instructions: %w", err)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return a, nil
}
