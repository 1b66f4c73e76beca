package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sudeti/qkb/internal/models"
)

// Queue is the Postgres-backed scrape job queue. Claiming uses
// FOR UPDATE SKIP LOCKED so several workers can drain it concurrently.
type Queue struct {
	pool *pgxpool.Pool
}

func NewQueue(pool *pgxpool.Pool) *Queue {
	return &Queue{pool: pool}
}

// Enqueue submits a job and returns immediately; callers never wait for the
// job to run.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload []byte, maxAttempts int) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := q.pool.Exec(ctx, `
		INSERT INTO scrape_jobs (kind, payload, max_attempts) VALUES ($1, $2, $3)
	`, kind, payload, maxAttempts)
	if err != nil {
		return fmt.Errorf("enqueueing %s job: %w", kind, err)
	}
	return nil
}

// claimTx is the slice of pgx.Tx the claim needs; tests fake it to exercise
// the commit-failure path without a live database.
type claimTx interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ClaimNext locks the oldest runnable queued job and marks it running. The
// claim is only reported once the transaction has committed: a commit failure
// means the job is still queued for someone else.
func (q *Queue) ClaimNext(ctx context.Context) (models.ScrapeJob, bool, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return models.ScrapeJob{}, false, err
	}
	return claimNext(ctx, tx)
}

func claimNext(ctx context.Context, tx claimTx) (models.ScrapeJob, bool, error) {
	var job models.ScrapeJob
	// No-op after a successful commit.
	defer func() { _ = tx.Rollback(ctx) }()

	err := tx.QueryRow(ctx, `
		SELECT id, kind, payload, attempts, max_attempts
		FROM scrape_jobs
		WHERE status = 'queued' AND (run_after IS NULL OR run_after <= NOW())
		ORDER BY queued_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`).Scan(&job.ID, &job.Kind, &job.Payload, &job.Attempts, &job.MaxAttempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ScrapeJob{}, false, nil
	}
	if err != nil {
		return models.ScrapeJob{}, false, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE scrape_jobs SET status = 'running', started_at = NOW(), attempts = attempts + 1
		WHERE id = $1
	`, job.ID); err != nil {
		return models.ScrapeJob{}, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.ScrapeJob{}, false, fmt.Errorf("committing job claim: %w", err)
	}

	job.Attempts++
	job.Status = models.JobStatusRunning
	return job, true, nil
}

func (q *Queue) MarkCompleted(ctx context.Context, job models.ScrapeJob) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE scrape_jobs SET status = 'completed', finished_at = NOW() WHERE id = $1
	`, job.ID)
	return err
}

// MarkFailed records the failure and requeues the job with a delay while it
// still has attempts left; otherwise it is failed terminally.
func (q *Queue) MarkFailed(ctx context.Context, job models.ScrapeJob, reason string, retryDelay time.Duration) error {
	if job.Attempts < job.MaxAttempts {
		_, err := q.pool.Exec(ctx, `
			UPDATE scrape_jobs
			SET status = 'queued', last_error = $1, run_after = NOW() + $2::interval
			WHERE id = $3
		`, reason, fmt.Sprintf("%d seconds", int(retryDelay.Seconds())), job.ID)
		return err
	}
	_, err := q.pool.Exec(ctx, `
		UPDATE scrape_jobs SET status = 'failed', last_error = $1, finished_at = NOW() WHERE id = $2
	`, reason, job.ID)
	return err
}
