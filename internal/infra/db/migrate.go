package db

import (
	"context"
	"database/sql"
	"fmt"
)

// MigrateUp creates the session and interaction tables and their indexes.
// Every statement is idempotent.
func MigrateUp(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS user_sessions (
    session_id       TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_activity_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    ended_at         TIMESTAMPTZ
)`); err != nil {
		return fmt.Errorf("create user_sessions: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS interactions (
    id               BIGSERIAL PRIMARY KEY,
    user_id          TEXT NOT NULL,
    session_id       TEXT REFERENCES user_sessions(session_id) ON DELETE SET NULL,
    interaction_type VARCHAR(32) NOT NULL,
    content          TEXT,
    response         TEXT,
    duration_ms      BIGINT NOT NULL DEFAULT 0,
    success          BOOLEAN NOT NULL DEFAULT TRUE,
    error_message    TEXT,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return fmt.Errorf("create interactions: %w", err)
	}

	indexes := []string{
		// active session lookup by user
		`CREATE INDEX IF NOT EXISTS idx_user_sessions_user_id ON user_sessions(user_id) WHERE ended_at IS NULL`,
		// retention pruning
		`CREATE INDEX IF NOT EXISTS idx_user_sessions_last_activity ON user_sessions(last_activity_at)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_session_id ON interactions(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_created_at ON interactions(created_at)`,
		// per-user history, newest first
		`CREATE INDEX IF NOT EXISTS idx_interactions_user_created ON interactions(user_id, created_at DESC)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	return nil
}
