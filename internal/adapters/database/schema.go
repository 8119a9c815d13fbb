package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/zatekoja/quizfunnel/internal/infrastructure/clients/sqldb"
	"github.com/zatekoja/quizfunnel/pkg/config"
)

const sessionsTable = "quiz_sessions"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS quiz_sessions (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL UNIQUE,
	current_step     TEXT NOT NULL DEFAULT 'landing',
	income_range     TEXT,
	estimated_loss   DOUBLE PRECISION,
	clicked_offer    BOOLEAN NOT NULL DEFAULT FALSE,
	clicked_offer_at TIMESTAMPTZ,
	completed_at     TIMESTAMPTZ,
	utm_source       TEXT,
	utm_medium       TEXT,
	utm_campaign     TEXT,
	fbp              TEXT,
	fbc              TEXT,
	fbclid           TEXT,
	user_agent       TEXT,
	referrer         TEXT,
	started_at       TIMESTAMPTZ NOT NULL,
	last_active_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quiz_sessions_started_at ON quiz_sessions (started_at);
CREATE INDEX IF NOT EXISTS idx_quiz_sessions_clicked_offer_at ON quiz_sessions (clicked_offer_at);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS quiz_sessions (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL UNIQUE,
	current_step     TEXT NOT NULL DEFAULT 'landing',
	income_range     TEXT,
	estimated_loss   REAL,
	clicked_offer    BOOLEAN NOT NULL DEFAULT 0,
	clicked_offer_at TIMESTAMP,
	completed_at     TIMESTAMP,
	utm_source       TEXT,
	utm_medium       TEXT,
	utm_campaign     TEXT,
	fbp              TEXT,
	fbc              TEXT,
	fbclid           TEXT,
	user_agent       TEXT,
	referrer         TEXT,
	started_at       TIMESTAMP NOT NULL,
	last_active_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quiz_sessions_started_at ON quiz_sessions (started_at);
CREATE INDEX IF NOT EXISTS idx_quiz_sessions_clicked_offer_at ON quiz_sessions (clicked_offer_at);
`

// SchemaSQL returns the DDL of the session store for a driver.
func SchemaSQL(driver string) string {
	if driver == config.DriverSQLite {
		return sqliteSchema
	}
	return postgresSchema
}

// EnsureSchema creates the session table and its indexes if missing.
func EnsureSchema(ctx context.Context, client *sqldb.Client) error {
	for _, stmt := range strings.Split(SchemaSQL(client.Driver()), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := client.DB().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
