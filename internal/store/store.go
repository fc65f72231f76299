// Package store records finished builds in PostgreSQL.
//
// History is optional: the CLI and server only open a Store when a database
// URL is configured. Rows are append-only; nothing in the builder reads them
// back except the history listing.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/importset/internal/config"
	"github.com/JonMunkholm/importset/internal/core"
)

// DefaultListLimit is used when ListBuilds is called with a non-positive limit.
const DefaultListLimit = 50

// MaxListLimit caps a single ListBuilds call.
const MaxListLimit = 500

// DBTX is the subset of pgx used by Store. Both *pgxpool.Pool and pgx.Tx
// satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ core.HistoryStore = (*Store)(nil)

// Store persists build records.
type Store struct {
	db   DBTX
	pool *pgxpool.Pool // nil when constructed with New
}

// New wraps an existing connection or pool.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// Open connects a pool using cfg and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: pool, pool: pool}, nil
}

// Close releases the pool opened by Open. It is a no-op for stores built with New.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS import_set_builds (
	id            TEXT PRIMARY KEY,
	upstream      TEXT NOT NULL,
	run           TEXT NOT NULL,
	downstream    TEXT NOT NULL,
	keep_all_subs BOOLEAN NOT NULL DEFAULT FALSE,
	status        TEXT NOT NULL,
	parameters    INTEGER NOT NULL DEFAULT 0,
	output_path   TEXT,
	published_to  TEXT,
	error         TEXT,
	error_code    TEXT,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS import_set_builds_started_at_idx
	ON import_set_builds (started_at DESC);
`

// EnsureSchema creates the history table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const insertBuildSQL = `
INSERT INTO import_set_builds (
	id, upstream, run, downstream, keep_all_subs, status, parameters,
	output_path, published_to, error, error_code, started_at, finished_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO UPDATE SET
	status       = EXCLUDED.status,
	parameters   = EXCLUDED.parameters,
	output_path  = EXCLUDED.output_path,
	published_to = EXCLUDED.published_to,
	error        = EXCLUDED.error,
	error_code   = EXCLUDED.error_code,
	finished_at  = EXCLUDED.finished_at`

// RecordBuild stores rec, replacing the outcome of an earlier record with
// the same ID.
func (s *Store) RecordBuild(ctx context.Context, rec core.BuildRecord) error {
	if rec.ID == "" {
		return errors.New("record build: empty build id")
	}

	_, err := s.db.Exec(ctx, insertBuildSQL,
		rec.ID,
		rec.Upstream,
		rec.Run,
		rec.Downstream,
		rec.KeepAllSubs,
		string(rec.Status),
		rec.Parameters,
		toPgText(rec.OutputPath),
		toPgText(rec.PublishedTo),
		toPgText(rec.Error),
		toPgText(rec.ErrorCode),
		toPgTimestamptz(rec.StartedAt),
		toPgTimestamptz(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record build %s: %w", rec.ID, err)
	}
	return nil
}

const listBuildsSQL = `
SELECT id, upstream, run, downstream, keep_all_subs, status, parameters,
	output_path, published_to, error, error_code, started_at, finished_at
FROM import_set_builds
ORDER BY started_at DESC
LIMIT $1`

// ListBuilds returns up to limit records, newest first.
func (s *Store) ListBuilds(ctx context.Context, limit int) ([]core.BuildRecord, error) {
	limit = clampLimit(limit)

	rows, err := s.db.Query(ctx, listBuildsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	defer rows.Close()

	records := make([]core.BuildRecord, 0)
	for rows.Next() {
		rec, err := scanBuildRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	return records, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

func scanBuildRow(rows pgx.Rows) (core.BuildRecord, error) {
	var (
		rec         core.BuildRecord
		status      string
		parameters  int32
		outputPath  pgtype.Text
		publishedTo pgtype.Text
		errText     pgtype.Text
		errCode     pgtype.Text
		startedAt   pgtype.Timestamptz
		finishedAt  pgtype.Timestamptz
	)

	err := rows.Scan(
		&rec.ID, &rec.Upstream, &rec.Run, &rec.Downstream, &rec.KeepAllSubs,
		&status, &parameters,
		&outputPath, &publishedTo, &errText, &errCode,
		&startedAt, &finishedAt,
	)
	if err != nil {
		return core.BuildRecord{}, err
	}

	rec.Status = core.BuildStatus(status)
	rec.Parameters = int(parameters)
	rec.OutputPath = outputPath.String
	rec.PublishedTo = publishedTo.String
	rec.Error = errText.String
	rec.ErrorCode = errCode.String
	rec.StartedAt = startedAt.Time
	rec.FinishedAt = finishedAt.Time
	return rec, nil
}

// toPgText maps an empty string to SQL NULL.
func toPgText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// toPgTimestamptz maps the zero time to SQL NULL.
func toPgTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}
