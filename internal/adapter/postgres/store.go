// Package postgres archives conversion results as rows of a time-series table.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/couchcryptid/hydrometry-etl/internal/domain"
	"github.com/couchcryptid/hydrometry-etl/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `CREATE SCHEMA IF NOT EXISTS hydrometry;
CREATE TABLE IF NOT EXISTS hydrometry.series_values (
    result_id     TEXT        NOT NULL,
    request_id    TEXT        NOT NULL,
    operation     TEXT        NOT NULL,
    entity        TEXT        NOT NULL,
    quantity      TEXT        NOT NULL,
    ts            TIMESTAMPTZ NOT NULL,
    value         DOUBLE PRECISION,
    method        SMALLINT    NOT NULL,
    qualification SMALLINT    NOT NULL,
    continuity    SMALLINT    NOT NULL,
    status        SMALLINT    NOT NULL,
    produced_at   TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (result_id, ts)
)`

const upsertSQL = `INSERT INTO hydrometry.series_values
    (result_id, request_id, operation, entity, quantity, ts, value, method, qualification, continuity, status, produced_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (result_id, ts) DO UPDATE
SET value = EXCLUDED.value,
    method = EXCLUDED.method,
    qualification = EXCLUDED.qualification,
    continuity = EXCLUDED.continuity,
    status = EXCLUDED.status,
    produced_at = EXCLUDED.produced_at`

// db is the subset of *pgxpool.Pool the store uses.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store upserts every observation of a result keyed by (result_id, ts).
// It implements pipeline.BatchLoader.
type Store struct {
	db      db
	close   func()
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Open connects to databaseURL and makes sure the target table exists.
func Open(ctx context.Context, databaseURL string, metrics *observability.Metrics, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := newStore(pool, metrics, logger)
	s.close = pool.Close
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func newStore(conn db, metrics *observability.Metrics, logger *slog.Logger) *Store {
	return &Store{db: conn, close: func() {}, metrics: metrics, logger: logger}
}

// EnsureSchema creates the hydrometry schema and table if needed.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// LoadBatch writes the observations of all results in one round trip.
// Events without a series are skipped.
func (s *Store) LoadBatch(ctx context.Context, events []domain.OutputEvent) error {
	batch := queueRows(events)
	n := batch.Len()
	if n == 0 {
		return nil
	}

	res := s.db.SendBatch(ctx, batch)
	defer res.Close()

	for i := 0; i < n; i++ {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("upsert series value: %w", err)
		}
	}
	s.metrics.RowsWritten.Add(float64(n))
	s.logger.Debug("results archived", "rows", n, "results", len(events))
	return nil
}

func (s *Store) Close() {
	s.close()
}

func queueRows(events []domain.OutputEvent) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, e := range events {
		if e.Series == nil {
			continue
		}
		resultID := string(e.Key)
		requestID := e.Headers["request_id"]
		operation := e.Headers["operation"]
		producedAt := e.Series.ProducedAt
		if producedAt.IsZero() {
			producedAt = time.Now().UTC()
		}
		for _, o := range e.Series.Observations() {
			batch.Queue(upsertSQL,
				resultID, requestID, operation,
				e.Series.Entity, string(e.Series.Quantity),
				o.Time, nullable(o.Value),
				o.Method, o.Qualification, o.Continuity, o.Status,
				producedAt,
			)
		}
	}
	return batch
}

// nullable maps an undefined value to SQL NULL.
func nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
