package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements: DDL таблицы блокировок. Все выражения идемпотентны.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS job_locks (
		job_name    TEXT PRIMARY KEY,
		holder_id   TEXT NOT NULL,
		acquired_at TIMESTAMPTZ NOT NULL,
		expires_at  TIMESTAMPTZ NOT NULL,
		CONSTRAINT job_locks_expiry_after_acquire CHECK (expires_at > acquired_at)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_job_locks_expires_at ON job_locks (expires_at)`,
}

// EnsureSchema создаёт таблицу job_locks, если её нет.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
