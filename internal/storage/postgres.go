package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bosocmputer/swing_ocr/internal/metrics"
	_ "github.com/lib/pq"
)

const createMetricsTable = `
CREATE TABLE IF NOT EXISTS swing_metrics (
	id            BIGSERIAL PRIMARY KEY,
	run_id        UUID        NOT NULL,
	user_id       TEXT        NOT NULL DEFAULT '',
	position      INT         NOT NULL,
	title         TEXT        NOT NULL,
	canonical_key TEXT,
	value         TEXT        NOT NULL,
	descriptor    TEXT        NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS swing_metrics_run_id_idx ON swing_metrics (run_id);
CREATE INDEX IF NOT EXISTS swing_metrics_user_key_idx ON swing_metrics (user_id, canonical_key, created_at DESC);
`

// MetricStore writes extracted metric rows to Postgres.
type MetricStore struct {
	db *sql.DB
}

// OpenPostgres opens and pings the database behind dsn.
func OpenPostgres(ctx context.Context, dsn string) (*MetricStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open Postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}
	return &MetricStore{db: db}, nil
}

// EnsureSchema creates the metrics table if absent.
func (s *MetricStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createMetricsTable); err != nil {
		return fmt.Errorf("failed to create swing_metrics: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *MetricStore) Close() error {
	return s.db.Close()
}

// SaveMetrics replaces the rows of a run in one transaction.
func (s *MetricStore) SaveMetrics(ctx context.Context, runID, userID string, ms []metrics.StructuredMetric) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM swing_metrics WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("failed to clear metrics for run %s: %w", runID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO swing_metrics (run_id, user_id, position, title, canonical_key, value, descriptor)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range ms {
		var key sql.NullString
		if k, ok := metrics.Canonicalize(m.Title); ok {
			key = sql.NullString{String: k, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, runID, userID, i, m.Title, key, m.Value, m.Descriptor); err != nil {
			return fmt.Errorf("failed to insert metric %q: %w", m.Title, err)
		}
	}
	return tx.Commit()
}

// LoadMetrics returns a run's rows in extraction order.
func (s *MetricStore) LoadMetrics(ctx context.Context, runID string) ([]metrics.StructuredMetric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT title, value, descriptor FROM swing_metrics
		WHERE run_id = $1 ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var out []metrics.StructuredMetric
	for rows.Next() {
		var m metrics.StructuredMetric
		if err := rows.Scan(&m.Title, &m.Value, &m.Descriptor); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
