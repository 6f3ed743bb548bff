package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"alfred-ai/internal/domain"
)

// DecisionStore implements domain.DecisionStore as an append-only audit log.
type DecisionStore struct {
	db *DB
}

func NewDecisionStore(db *DB) *DecisionStore { return &DecisionStore{db: db} }

func (s *DecisionStore) Append(ctx context.Context, d domain.Decision) error {
	dataJSON, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("marshal decision data: %w", err)
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	_, err = s.db.sql.ExecContext(ctx, `
		INSERT INTO decisions (lead_id, agent_kind, action, reasoning, data, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.LeadID, string(d.AgentKind), d.Action, d.Reasoning, string(dataJSON), d.Timestamp.Format(time.RFC3339Nano),
	)
	return err
}

func (s *DecisionStore) ListForLead(ctx context.Context, leadID string) ([]domain.Decision, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT lead_id, agent_kind, action, reasoning, data, timestamp
		FROM decisions WHERE lead_id = ? ORDER BY timestamp`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Decision
	for rows.Next() {
		var d domain.Decision
		var agentKind, dataJSON, ts string
		if err := rows.Scan(&d.LeadID, &agentKind, &d.Action, &d.Reasoning, &dataJSON, &ts); err != nil {
			return nil, err
		}
		d.AgentKind = domain.AgentKind(agentKind)
		if err := json.Unmarshal([]byte(dataJSON), &d.Data); err != nil {
			return nil, fmt.Errorf("unmarshal decision data: %w", err)
		}
		d.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, d)
	}
	return out, rows.Err()
}
