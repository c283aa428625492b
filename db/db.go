// Package db provides database connection helpers, schema migration, and small data access helpers.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Connect opens a Postgres connection for dsn. The connection is lazy; callers
// that need it up front should PingContext.
func Connect(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("db: empty dsn")
	}
	return sql.Open("pgx", dsn)
}

// Migrate applies idempotent schema changes for all required tables and indices.
// It mirrors the versioned migrations and is used when those cannot run.
func Migrate(ctx context.Context, db *sql.DB) error { return migratePostgres(ctx, db) }

func migratePostgres(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS playlist_items (
			position INTEGER PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			media_id TEXT NOT NULL,
			title TEXT NOT NULL,
			channel TEXT,
			duration TEXT,
			thumbnail TEXT,
			url TEXT NOT NULL,
			added_by TEXT NOT NULL,
			added_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS playlist_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			current_index INTEGER,
			is_playing BOOLEAN NOT NULL DEFAULT FALSE,
			autoplay BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_playlist_items_added_by ON playlist_items(added_by)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// SetKV upserts a key/value pair.
func SetKV(ctx context.Context, dbx *sql.DB, key, value string) error {
	_, err := dbx.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES($1,$2,NOW())
		 ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`, key, value)
	return err
}

// GetKV returns the stored value for key; found is false when absent.
func GetKV(ctx context.Context, dbx *sql.DB, key string) (value string, found bool, err error) {
	err = dbx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// KV adapts the kv table to a small string store.
type KV struct{ DB *sql.DB }

func (k KV) Get(ctx context.Context, key string) (string, bool, error) {
	return GetKV(ctx, k.DB, key)
}

func (k KV) Set(ctx context.Context, key, value string) error {
	return SetKV(ctx, k.DB, key, value)
}
