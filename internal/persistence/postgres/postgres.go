// Package postgres implements program.Store and posestate.SavedPoseStore
// against a Postgres database, following the teacher's *sql.DB wrapper
// style: a thin embedding type, connection-pool tuning at construction,
// and wrapped errors at every driver boundary.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps a pooled Postgres connection shared by the Programs and
// SavedPoses stores.
type DB struct {
	*sql.DB
}

// Open connects to Postgres at dsn, tunes the pool, and verifies
// connectivity before returning.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &DB{DB: conn}, nil
}

// Migrate creates the programs and saved_poses tables if they do not
// already exist. Intentionally minimal: no migration framework, since
// the schema is two flat tables with a JSON payload column.
func (db *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS programs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			steps JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS saved_poses (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			joints JSONB NOT NULL,
			pose JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}

func (db *DB) Health(ctx context.Context) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("postgres: close: %w", err)
	}
	return nil
}
