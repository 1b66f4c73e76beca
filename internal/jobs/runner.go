package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Sudeti/qkb/internal/db"
	"github.com/Sudeti/qkb/internal/models"
	"github.com/Sudeti/qkb/internal/scrape"
)

const pollInterval = 2 * time.Second

// Runner drains the scrape job queue. Each claimed job runs under its kind's
// hard timeout; between claims the runner sweeps scrape logs stranded in
// 'running' by a previous forced termination.
type Runner struct {
	Queue    *db.Queue
	Store    *db.Store
	Pipeline *scrape.Pipeline
}

func NewRunner(queue *db.Queue, store *db.Store, pipeline *scrape.Pipeline) *Runner {
	return &Runner{Queue: queue, Store: store, Pipeline: pipeline}
}

func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if swept, err := r.Store.FailStaleScrapeLogs(ctx, PolicyFor(KindFullScrape).HardTimeout); err != nil {
			log.Printf("[Worker] Stale-log sweep failed: %v", err)
		} else if swept > 0 {
			log.Printf("[Worker] Marked %d stale scrape logs as failed", swept)
		}

		job, found, err := r.Queue.ClaimNext(ctx)
		if err != nil {
			log.Printf("[Worker] Claim failed: %v", err)
		}
		if found {
			r.execute(ctx, job)
			continue // drain without waiting while work is available
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runner) execute(ctx context.Context, job models.ScrapeJob) {
	policy := PolicyFor(job.Kind)
	log.Printf("[Worker] Running %s job %s (attempt %d/%d)", job.Kind, job.ID, job.Attempts, job.MaxAttempts)

	jobCtx, cancel := context.WithTimeout(ctx, policy.HardTimeout)
	defer cancel()

	soft := time.AfterFunc(policy.SoftTimeout, func() {
		log.Printf("[Worker] Job %s exceeded soft timeout (%s)", job.ID, policy.SoftTimeout)
	})
	defer soft.Stop()

	err := r.runJob(jobCtx, job)
	if err != nil {
		log.Printf("[Worker] Job %s failed: %v", job.ID, err)
		if markErr := r.Queue.MarkFailed(ctx, job, err.Error(), policy.RetryDelay); markErr != nil {
			log.Printf("[Worker] Failed to mark job %s failed: %v", job.ID, markErr)
		}
		return
	}

	if markErr := r.Queue.MarkCompleted(ctx, job); markErr != nil {
		log.Printf("[Worker] Failed to mark job %s completed: %v", job.ID, markErr)
	}
}

func (r *Runner) runJob(ctx context.Context, job models.ScrapeJob) error {
	switch job.Kind {
	case KindFullScrape:
		var payload FullScrapePayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("bad payload: %w", err)
		}
		runLog, err := r.Pipeline.RunFull(ctx, payload.Categories, payload.Limit)
		if err != nil {
			return err
		}
		if runLog.Status == models.RunStatusFailed {
			return fmt.Errorf("run %s failed: %s", runLog.ID, lastError(runLog.Errors))
		}
		return nil

	case KindScrapeNIPT:
		var payload ScrapeNIPTPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("bad payload: %w", err)
		}
		id, found, err := r.Pipeline.ScrapeSingle(ctx, strings.ToUpper(payload.NIPT))
		if err != nil {
			return err
		}
		if !found {
			log.Printf("[Worker] NIPT %s not present at the registry", payload.NIPT)
			return nil
		}
		log.Printf("[Worker] Scraped %s -> company %s", payload.NIPT, id)
		return nil

	default:
		return fmt.Errorf("unknown job kind: %s", job.Kind)
	}
}

func lastError(errs []string) string {
	if len(errs) == 0 {
		return "unknown error"
	}
	return errs[len(errs)-1]
}
