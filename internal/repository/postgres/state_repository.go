package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tophome-storefront/internal/domain"
	"tophome-storefront/internal/observability"
)

// Schema creates the client state table. Values are the JSON records
// written by the session store.
const Schema = `
	CREATE TABLE IF NOT EXISTS client_state (
		key        TEXT PRIMARY KEY,
		value      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

type StateRepository struct {
	db              *sql.DB
	getStmt         *sql.Stmt
	upsertStmt      *sql.Stmt
	deleteStmt      *sql.Stmt
	deleteStaleStmt *sql.Stmt
}

// NewStateRepository creates a StateRepository with prepared statements.
// The client_state table must already exist (see EnsureSchema).
func NewStateRepository(db *sql.DB) (*StateRepository, error) {
	repo := &StateRepository{db: db}

	var err error
	repo.getStmt, err = db.Prepare(`SELECT value FROM client_state WHERE key = $1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare get statement: %w", err)
	}

	repo.upsertStmt, err = db.Prepare(`
		INSERT INTO client_state (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare upsert statement: %w", err)
	}

	repo.deleteStmt, err = db.Prepare(`DELETE FROM client_state WHERE key = $1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	repo.deleteStaleStmt, err = db.Prepare(`DELETE FROM client_state WHERE updated_at <= $1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare deleteStale statement: %w", err)
	}

	return repo, nil
}

// EnsureSchema creates the client_state table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create client_state table: %w", err)
	}
	return nil
}

func (r *StateRepository) Get(ctx context.Context, key string) ([]byte, error) {
	defer observeQuery("select", time.Now())

	var value []byte
	err := r.getStmt.QueryRowContext(ctx, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, domain.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client state: %w", err)
	}
	return value, nil
}

func (r *StateRepository) Set(ctx context.Context, key string, value []byte) error {
	defer observeQuery("upsert", time.Now())

	if _, err := r.upsertStmt.ExecContext(ctx, key, string(value), time.Now()); err != nil {
		return fmt.Errorf("failed to set client state: %w", err)
	}
	return nil
}

func (r *StateRepository) Delete(ctx context.Context, key string) error {
	defer observeQuery("delete", time.Now())

	if _, err := r.deleteStmt.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("failed to delete client state: %w", err)
	}
	return nil
}

// DeleteStale removes records not written since before now minus retention.
func (r *StateRepository) DeleteStale(ctx context.Context, retention time.Duration) (int64, error) {
	defer observeQuery("delete_stale", time.Now())

	result, err := r.deleteStaleStmt.ExecContext(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale client state: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}

func (r *StateRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Stats reports pool statistics and refreshes the connection gauges.
func (r *StateRepository) Stats() sql.DBStats {
	stats := r.db.Stats()
	observability.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	observability.DBConnectionsInUse.Set(float64(stats.InUse))
	observability.DBConnectionsIdle.Set(float64(stats.Idle))
	return stats
}

func observeQuery(operation string, start time.Time) {
	observability.DBQueryDuration.WithLabelValues(operation, "client_state").Observe(time.Since(start).Seconds())
}

var _ domain.StateRepository = (*StateRepository)(nil)
