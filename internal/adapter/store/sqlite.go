// Package store implements the internal/domain store interfaces against
// SQLite, following the same raw database/sql + manual Scan approach as the
// teacher's internal/adapter/tenant.SQLiteTenantStore.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"alfred-ai/internal/domain"
)

var (
	_ domain.LeadStore                = (*LeadStore)(nil)
	_ domain.ConversationStore        = (*ConversationStore)(nil)
	_ domain.CampaignStore            = (*CampaignStore)(nil)
	_ domain.TemplateStore            = (*TemplateStore)(nil)
	_ domain.EngagementAgentStore     = (*EngagementAgentStore)(nil)
	_ domain.DecisionStore            = (*DecisionStore)(nil)
	_ domain.CommunicationStore       = (*CommunicationStore)(nil)
	_ domain.HandoverStore            = (*HandoverStore)(nil)
	_ domain.OrphanReplyStore         = (*OrphanReplyStore)(nil)
	_ domain.CircuitBreakerStateStore = (*BreakerStateStore)(nil)
)

// DB wraps the shared *sql.DB connection every per-aggregate store in this
// package is built on. One DB is opened per process; each store type below
// is a thin struct{ db *DB } wrapper so migrations run once.
type DB struct {
	sql *sql.DB
}

// Open opens (or creates) a SQLite database at path, enables WAL mode for
// concurrent reads, and runs every store's schema migration.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	db := &DB{sql: sqlDB}
	if err := db.migrate(context.Background()); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS leads (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			email         TEXT NOT NULL DEFAULT '',
			phone         TEXT NOT NULL DEFAULT '',
			source        TEXT NOT NULL,
			campaign_id   TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL,
			dedupe_key    TEXT NOT NULL DEFAULT '',
			metadata      TEXT NOT NULL DEFAULT '{}',
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,
			version       INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_dedupe ON leads(dedupe_key) WHERE dedupe_key != '|'`,
		`CREATE INDEX IF NOT EXISTS idx_leads_email ON leads(email) WHERE email != ''`,
		`CREATE INDEX IF NOT EXISTS idx_leads_phone ON leads(phone) WHERE phone != ''`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id           TEXT PRIMARY KEY,
			lead_id      TEXT NOT NULL,
			channel      TEXT NOT NULL,
			status       TEXT NOT NULL,
			close_reason TEXT NOT NULL DEFAULT '',
			messages     TEXT NOT NULL DEFAULT '[]',
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL,
			version      INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conv_lead_channel ON conversations(lead_id, channel)`,

		`CREATE TABLE IF NOT EXISTS campaigns (
			id       TEXT PRIMARY KEY,
			name     TEXT NOT NULL,
			agent_id TEXT NOT NULL DEFAULT '',
			mode     TEXT NOT NULL,
			sequence TEXT NOT NULL DEFAULT '[]',
			settings TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			version    INTEGER NOT NULL DEFAULT 1
		)`,

		`CREATE TABLE IF NOT EXISTS templates (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			subject    TEXT NOT NULL DEFAULT '',
			body       TEXT NOT NULL,
			variables  TEXT NOT NULL DEFAULT '[]',
			category   TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			version    INTEGER NOT NULL DEFAULT 1
		)`,

		`CREATE TABLE IF NOT EXISTS engagement_agents (
			id               TEXT PRIMARY KEY,
			kind             TEXT NOT NULL,
			end_goal         TEXT NOT NULL DEFAULT '',
			personality      TEXT NOT NULL DEFAULT '',
			instructions     TEXT NOT NULL DEFAULT '{}',
			domain_expertise TEXT NOT NULL DEFAULT '',
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL,
			version          INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agents_kind ON engagement_agents(kind)`,

		`CREATE TABLE IF NOT EXISTS decisions (
			lead_id    TEXT NOT NULL,
			agent_kind TEXT NOT NULL,
			action     TEXT NOT NULL,
			reasoning  TEXT NOT NULL DEFAULT '',
			data       TEXT NOT NULL DEFAULT 'null',
			timestamp  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_lead ON decisions(lead_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS communications (
			id              TEXT PRIMARY KEY,
			lead_id         TEXT NOT NULL,
			conversation_id TEXT NOT NULL DEFAULT '',
			channel         TEXT NOT NULL,
			external_id     TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL,
			idempotency_key TEXT NOT NULL,
			sent_at         INTEGER,
			delivered_at    INTEGER,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL,
			version         INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_comms_idempotency ON communications(idempotency_key)`,
		`CREATE INDEX IF NOT EXISTS idx_comms_external ON communications(external_id) WHERE external_id != ''`,
		`CREATE INDEX IF NOT EXISTS idx_comms_campaign_sent ON communications(lead_id, sent_at)`,

		`CREATE TABLE IF NOT EXISTS handover_executions (
			id              TEXT PRIMARY KEY,
			lead_id         TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			reason          TEXT NOT NULL DEFAULT '',
			dossier         TEXT NOT NULL DEFAULT '{}',
			destinations    TEXT NOT NULL DEFAULT '[]',
			attempts        TEXT NOT NULL DEFAULT '[]',
			confirmed_at    TEXT,
			follow_up_at    TEXT,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL,
			version         INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_handover_conv ON handover_executions(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_handover_followup ON handover_executions(follow_up_at) WHERE follow_up_at IS NOT NULL`,

		`CREATE TABLE IF NOT EXISTS orphan_replies (
			id           TEXT PRIMARY KEY,
			channel      TEXT NOT NULL,
			from_address TEXT NOT NULL DEFAULT '',
			raw_payload  TEXT NOT NULL DEFAULT '',
			received_at  TEXT NOT NULL,
			reason       TEXT NOT NULL DEFAULT '',
			metadata     TEXT NOT NULL DEFAULT '{}'
		)`,

		`CREATE TABLE IF NOT EXISTS breaker_snapshots (
			service       TEXT PRIMARY KEY,
			state         TEXT NOT NULL,
			failures      INTEGER NOT NULL DEFAULT 0,
			successes     INTEGER NOT NULL DEFAULT 0,
			opened_at_unix INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := d.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
