// Package audit records handled deployment queries in Postgres.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Outcome labels for a handled query.
const (
	OutcomeOK               = "ok"
	OutcomeWrongArguments   = "wrong_arguments"
	OutcomeEmptyEnvironment = "empty_environment"
	OutcomeUnknownProject   = "unknown_project"
)

// Entry is one handled query.
type Entry struct {
	Requester   string
	Environment string
	Project     string
	Extended    bool
	Outcome     string
}

// Recorder writes query audit entries and reports backend connectivity.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	Ping(ctx context.Context) error
}

// Open connects to the audit database.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the audit table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS deployment_queries (
			id BIGSERIAL PRIMARY KEY,
			requester TEXT NOT NULL,
			environment TEXT NOT NULL,
			project TEXT NOT NULL DEFAULT '',
			extended BOOLEAN NOT NULL DEFAULT FALSE,
			outcome TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure deployment_queries: %w", err)
	}
	return nil
}

// Log writes query audit entries to Postgres.
type Log struct {
	db *sql.DB
}

var _ Recorder = (*Log)(nil)

// NewLog creates an audit log over an open database handle.
func NewLog(db *sql.DB) *Log {
	return &Log{db: db}
}

// Record inserts one handled query.
func (l *Log) Record(ctx context.Context, entry Entry) error {
	const insert = `
		INSERT INTO deployment_queries (requester, environment, project, extended, outcome)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := l.db.ExecContext(ctx, insert,
		entry.Requester, entry.Environment, entry.Project, entry.Extended, entry.Outcome); err != nil {
		return fmt.Errorf("insert query audit: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (l *Log) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}
