// Package postgres implements the durable task queue on Postgres.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/moviefeed/release-crawler/internal/crawler"
)

// StaleResetMessage is written to tasks reclaimed by the stale sweep so the
// next reader can tell a timeout reset from an ordinary failure.
const StaleResetMessage = "task reset after claim timeout"

// PgxIface is the pool surface the queue needs. pgxmock satisfies it in tests.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// TaskQueue is the shared, crash-tolerant bookkeeping of which titles need
// processing. Every operation is a single statement; cross-instance safety
// comes from Postgres conflict handling, not in-process locks.
type TaskQueue struct {
	pool   PgxIface
	clock  crawler.Clock
	logger *zap.Logger
}

// NewTaskQueue constructs a TaskQueue over an existing pool.
func NewTaskQueue(pool PgxIface, clock crawler.Clock, logger *zap.Logger) *TaskQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskQueue{
		pool:   pool,
		clock:  clock,
		logger: logger,
	}
}

// EnqueueIfAbsent inserts a pending task for url. Re-discovering a known URL
// is a no-op regardless of its current status.
func (q *TaskQueue) EnqueueIfAbsent(ctx context.Context, url string) error {
	query := `
		INSERT INTO crawl_tasks (url, status, last_updated)
		VALUES ($1, $2, NOW())
		ON CONFLICT (url) DO NOTHING;
	`
	if _, err := q.pool.Exec(ctx, query, url, crawler.TaskStatusPending); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// Claim takes the task for instance, stamping started_at and clearing any
// previous error. Done and failed tasks may be re-claimed; that is how
// re-crawls happen. Concurrent claims of the same URL serialize at the row
// and the last writer wins, which is acceptable because the downstream
// persistence is idempotent.
func (q *TaskQueue) Claim(ctx context.Context, url, instance string) error {
	query := `
		INSERT INTO crawl_tasks (url, status, started_at, last_updated, assigned_instance)
		VALUES ($1, $2, NOW(), NOW(), $3)
		ON CONFLICT (url) DO UPDATE
		SET status = EXCLUDED.status,
			started_at = NOW(),
			last_updated = NOW(),
			assigned_instance = EXCLUDED.assigned_instance,
			error_message = NULL;
	`
	if _, err := q.pool.Exec(ctx, query, url, crawler.TaskStatusInProgress, instance); err != nil {
		return fmt.Errorf("claim task: %w", err)
	}
	return nil
}

// MarkDone resolves the task successfully.
func (q *TaskQueue) MarkDone(ctx context.Context, url string) error {
	query := `
		UPDATE crawl_tasks
		SET status = $2,
			finished_at = NOW(),
			last_updated = NOW(),
			error_message = NULL
		WHERE url = $1;
	`
	if _, err := q.pool.Exec(ctx, query, url, crawler.TaskStatusDone); err != nil {
		return fmt.Errorf("mark task done: %w", err)
	}
	return nil
}

// MarkFailed resolves the task with a reason. started_at and finished_at are
// left as they were so the failure window stays visible.
func (q *TaskQueue) MarkFailed(ctx context.Context, url, reason string) error {
	query := `
		UPDATE crawl_tasks
		SET status = $2,
			error_message = $3,
			last_updated = NOW()
		WHERE url = $1;
	`
	if _, err := q.pool.Exec(ctx, query, url, crawler.TaskStatusFailed, reason); err != nil {
		return fmt.Errorf("mark task failed: %w", err)
	}
	return nil
}

// ListClaimable snapshots every URL whose status is not in_progress. Done and
// failed tasks are included so each cycle refreshes and retries everything
// not currently owned.
func (q *TaskQueue) ListClaimable(ctx context.Context) ([]string, error) {
	query := `
		SELECT url
		FROM crawl_tasks
		WHERE status <> $1;
	`
	rows, err := q.pool.Query(ctx, query, crawler.TaskStatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("list claimable tasks: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}
	return urls, nil
}

// RecoverStale resets in_progress tasks whose last transition is older than
// timeout back to pending, regardless of which instance claimed them. It
// returns the number of tasks reset.
func (q *TaskQueue) RecoverStale(ctx context.Context, timeout time.Duration) (int64, error) {
	cutoff := q.clock.Now().Add(-timeout)
	query := `
		UPDATE crawl_tasks
		SET status = $1,
			started_at = NULL,
			assigned_instance = NULL,
			error_message = $2,
			last_updated = NOW()
		WHERE status = $3
		AND last_updated < $4;
	`
	tag, err := q.pool.Exec(ctx, query,
		crawler.TaskStatusPending,
		StaleResetMessage,
		crawler.TaskStatusInProgress,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("recover stale tasks: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		q.logger.Info("reset stale tasks", zap.Int64("count", n))
		return n, nil
	}
	return 0, nil
}
