package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id              TEXT PRIMARY KEY,
		status          TEXT NOT NULL,
		stage           TEXT,
		progress        INT NOT NULL DEFAULT 0,
		input_ref       TEXT NOT NULL,
		style           TEXT NOT NULL DEFAULT '',
		external_run_id TEXT,
		result_ref      TEXT,
		error_message   TEXT,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status_updated_at ON jobs (status, updated_at)`,
}

// Migrate applies the schema. Statements are idempotent so running on every
// startup is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
