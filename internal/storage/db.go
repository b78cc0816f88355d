package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Options configures the job store connection.
type Options struct {
	Driver          string // sqlite or postgres
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	var driver string
	switch opts.Driver {
	case "sqlite":
		driver = "sqlite3"
	case "postgres":
		driver = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", opts.Driver)
	}

	db, err := sql.Open(driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversion_jobs (
	id           TEXT PRIMARY KEY,
	source_name  TEXT NOT NULL,
	fingerprint  TEXT NOT NULL,
	dpi          INTEGER NOT NULL,
	language     TEXT NOT NULL,
	psm          INTEGER NOT NULL,
	status       TEXT NOT NULL,
	stage        TEXT NOT NULL DEFAULT '',
	pages_done   INTEGER NOT NULL DEFAULT 0,
	pages_total  INTEGER NOT NULL DEFAULT 0,
	output_name  TEXT NOT NULL DEFAULT '',
	error_kind   TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	cache_hit    BOOLEAN NOT NULL DEFAULT 0,
	created_at   TIMESTAMP NOT NULL,
	started_at   TIMESTAMP,
	completed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_conversion_jobs_created_at ON conversion_jobs (created_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS conversion_jobs (
	id           UUID PRIMARY KEY,
	source_name  TEXT NOT NULL,
	fingerprint  TEXT NOT NULL,
	dpi          INTEGER NOT NULL,
	language     TEXT NOT NULL,
	psm          INTEGER NOT NULL,
	status       TEXT NOT NULL,
	stage        TEXT NOT NULL DEFAULT '',
	pages_done   INTEGER NOT NULL DEFAULT 0,
	pages_total  INTEGER NOT NULL DEFAULT 0,
	output_name  TEXT NOT NULL DEFAULT '',
	error_kind   TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	cache_hit    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL,
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_conversion_jobs_created_at ON conversion_jobs (created_at);
`

// Migrate creates the job table if it does not exist.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	schema := sqliteSchema
	if driver == "postgres" {
		schema = postgresSchema
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate conversion_jobs: %w", err)
	}
	return nil
}
