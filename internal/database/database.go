package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the submissions audit table if needed.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS submissions (
	id TEXT PRIMARY KEY,
	company TEXT NOT NULL DEFAULT '',
	folder_name TEXT NOT NULL DEFAULT '',
	folder_link TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	visiting_cards INTEGER NOT NULL DEFAULT 0,
	booth_photos INTEGER NOT NULL DEFAULT 0,
	catalogues INTEGER NOT NULL DEFAULT 0,
	row_index INTEGER NOT NULL DEFAULT -1,
	formula TEXT NOT NULL DEFAULT '',
	warnings TEXT[] NOT NULL DEFAULT '{}',
	error_kind TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
