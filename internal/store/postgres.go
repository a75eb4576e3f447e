package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dayforge/dayforge/internal/domain"
)

// HistoryStore is an optional write-behind durability layer over the KV
// substrate. The KV substrate remains authoritative; this only appends
// completed-task and delegation history for later auditing, enabled when
// DAYFORGE_POSTGRES_DSN is set.
type HistoryStore struct {
	pool *pgxpool.Pool
}

// NewHistoryStore connects to Postgres and ensures the history tables exist.
func NewHistoryStore(ctx context.Context, dsn string) (*HistoryStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	hs := &HistoryStore{pool: pool}
	if err := hs.migrate(ctx); err != nil {
		return nil, err
	}
	return hs, nil
}

func (h *HistoryStore) migrate(ctx context.Context) error {
	_, err := h.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS task_history (
			task_id TEXT NOT NULL,
			title TEXT NOT NULL,
			final_status TEXT NOT NULL,
			estimated_duration INT NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (task_id, completed_at)
		);
		CREATE TABLE IF NOT EXISTS delegation_history (
			draft_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			task_type TEXT NOT NULL,
			status TEXT NOT NULL,
			cost_units DOUBLE PRECISION NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (draft_id, recorded_at)
		);
	`)
	return err
}

// RecordTaskCompletion appends a completed-task row. Best-effort:
// failures are returned for the caller to log and continue.
func (h *HistoryStore) RecordTaskCompletion(ctx context.Context, t *domain.Task) error {
	_, err := h.pool.Exec(ctx,
		`INSERT INTO task_history (task_id, title, final_status, estimated_duration, completed_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Title, string(t.Status), t.EstimatedMins, time.Now(),
	)
	return err
}

// RecordDelegationOutcome appends a delegation-history row.
func (h *HistoryStore) RecordDelegationOutcome(ctx context.Context, d *domain.Draft) error {
	_, err := h.pool.Exec(ctx,
		`INSERT INTO delegation_history (draft_id, task_id, task_type, status, cost_units, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.TaskID, d.TaskType, string(d.Status), d.CostUnits, time.Now(),
	)
	return err
}

func (h *HistoryStore) Close() { h.pool.Close() }
