// Package postgres implements the persistence contract: leads, benchmark
// records, and report records.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sitegrader/sitegrader/internal/config"
)

// DB wraps sqlx.DB with additional functionality
type DB struct {
	*sqlx.DB
}

// New creates a new database connection
func New(cfg config.DatabaseConfig) (*DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{DB: db}, nil
}

// NewFromDSN creates a new database connection from a DSN string
func NewFromDSN(dsn string) (*DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return &DB{DB: db}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// Health checks database connectivity
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Migrate applies the schema. Idempotent; meant for development and tests.
// Production deployments run migrations out of band.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS leads (
    id              UUID PRIMARY KEY,
    run_id          UUID NOT NULL,
    company_name    TEXT NOT NULL,
    industry        TEXT NOT NULL DEFAULT '',
    location        TEXT NOT NULL DEFAULT '',
    target_url      TEXT NOT NULL,
    letter          TEXT NOT NULL,
    overall_score   INT  NOT NULL,
    sub_scores      JSONB NOT NULL DEFAULT '{}',
    issue_count     INT  NOT NULL DEFAULT 0,
    quick_win_count INT  NOT NULL DEFAULT 0,
    report_url      TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_leads_company ON leads (company_name);
CREATE INDEX IF NOT EXISTS idx_leads_created ON leads (created_at DESC);

CREATE TABLE IF NOT EXISTS benchmarks (
    id            TEXT PRIMARY KEY,
    company_name  TEXT NOT NULL,
    url           TEXT NOT NULL,
    industry      TEXT NOT NULL,
    location      TEXT NOT NULL DEFAULT '',
    tier          TEXT NOT NULL,
    scores        JSONB NOT NULL DEFAULT '{}',
    strengths     JSONB NOT NULL DEFAULT '{}',
    screenshots   JSONB NOT NULL DEFAULT '{}',
    analyzed_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_benchmarks_industry ON benchmarks (industry);

CREATE TABLE IF NOT EXISTS reports (
    id         UUID PRIMARY KEY,
    lead_id    UUID NOT NULL REFERENCES leads (id) ON DELETE CASCADE,
    run_id     UUID NOT NULL,
    url        TEXT NOT NULL,
    format     TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_reports_lead ON reports (lead_id);
`
