// Package pgstore archives acquisition records in Postgres.
package pgstore

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aluiziolira/go-bsr-leaderboard/models"
)

// DefaultTable holds one row per product URL.
const DefaultTable = "book_records"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Archive upserts records keyed by URL, so it always holds the latest
// outcome per product.
type Archive struct {
	pool  pool
	table string
}

// New connects a pool for dsn.
func New(ctx context.Context, dsn, table string) (*Archive, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a, err := NewWithPool(p, table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return a, nil
}

// NewWithPool constructs an archive from an existing pool.
func NewWithPool(p pool, table string) (*Archive, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Archive{pool: p, table: table}, nil
}

// Close releases the pool.
func (a *Archive) Close() {
	if a == nil || a.pool == nil {
		return
	}
	a.pool.Close()
}

// EnsureSchema creates the archive table when missing.
func (a *Archive) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	url TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	is_valid_format BOOLEAN NOT NULL,
	title TEXT NOT NULL,
	author TEXT NOT NULL,
	rank_value INTEGER NOT NULL,
	cover_url TEXT NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL,
	error TEXT
)`, a.table)
	if _, err := a.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", a.table, err)
	}
	return nil
}

// SaveRecords upserts records in a single transaction.
func (a *Archive) SaveRecords(ctx context.Context, runID string, records []*models.Record) error {
	if len(records) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (url, run_id, is_valid_format, title, author, rank_value, cover_url, captured_at, error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (url) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	is_valid_format = EXCLUDED.is_valid_format,
	title = EXCLUDED.title,
	author = EXCLUDED.author,
	rank_value = EXCLUDED.rank_value,
	cover_url = EXCLUDED.cover_url,
	captured_at = EXCLUDED.captured_at,
	error = EXCLUDED.error`, a.table)

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	for _, rec := range records {
		if _, err := tx.Exec(ctx, query,
			rec.URL,
			runID,
			rec.IsValidFormat,
			rec.Title,
			rec.Author,
			rec.RankValue,
			rec.CoverURL,
			rec.CapturedAt,
			nullable(rec.Error),
		); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("upsert %s: %w", rec.URL, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
