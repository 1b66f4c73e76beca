// Package jobs defines the background job kinds, their retry/timeout
// policies, and the fire-and-forget submission surface used by the search and
// tender paths.
package jobs

import (
	"context"
	"encoding/json"
	"time"
)

const (
	// KindFullScrape runs the complete listing + detail pipeline.
	KindFullScrape = "full_scrape"
	// KindScrapeNIPT is the on-demand single-identifier scrape.
	KindScrapeNIPT = "scrape_nipt"
)

// Policy holds the per-kind retry budget and timeouts. The hard timeout kills
// a stuck run; the soft timeout fires a warning slightly before it.
type Policy struct {
	MaxRetries  int
	RetryDelay  time.Duration
	HardTimeout time.Duration
	SoftTimeout time.Duration
}

// MaxAttempts is the total number of executions a job may consume.
func (p Policy) MaxAttempts() int { return p.MaxRetries + 1 }

var policies = map[string]Policy{
	KindFullScrape: {
		MaxRetries:  1,
		RetryDelay:  60 * time.Second,
		HardTimeout: 4 * time.Hour,
		SoftTimeout: 3*time.Hour + 50*time.Minute,
	},
	KindScrapeNIPT: {
		MaxRetries:  2,
		RetryDelay:  10 * time.Second,
		HardTimeout: 120 * time.Second,
		SoftTimeout: 90 * time.Second,
	},
}

// PolicyFor returns the policy for a job kind; unknown kinds get a single
// attempt with the single-scrape timeouts.
func PolicyFor(kind string) Policy {
	if p, ok := policies[kind]; ok {
		return p
	}
	return Policy{MaxRetries: 0, RetryDelay: 10 * time.Second, HardTimeout: 120 * time.Second, SoftTimeout: 90 * time.Second}
}

type FullScrapePayload struct {
	Categories []string `json:"categories,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

type ScrapeNIPTPayload struct {
	NIPT string `json:"nipt"`
}

// Enqueuer is the raw queue surface (implemented by db.Queue).
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload []byte, maxAttempts int) error
}

// Submitter wraps an Enqueuer with typed, fire-and-forget submissions.
type Submitter struct {
	queue Enqueuer
}

func NewSubmitter(queue Enqueuer) *Submitter {
	return &Submitter{queue: queue}
}

func (s *Submitter) SubmitFullScrape(ctx context.Context, categories []string, limit int) error {
	payload, err := json.Marshal(FullScrapePayload{Categories: categories, Limit: limit})
	if err != nil {
		return err
	}
	return s.queue.Enqueue(ctx, KindFullScrape, payload, PolicyFor(KindFullScrape).MaxAttempts())
}

func (s *Submitter) SubmitScrapeNIPT(ctx context.Context, nipt string) error {
	payload, err := json.Marshal(ScrapeNIPTPayload{NIPT: nipt})
	if err != nil {
		return err
	}
	return s.queue.Enqueue(ctx, KindScrapeNIPT, payload, PolicyFor(KindScrapeNIPT).MaxAttempts())
}
