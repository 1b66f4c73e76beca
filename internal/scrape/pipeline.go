package scrape

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/google/uuid"

	"github.com/Sudeti/qkb/internal/models"
)

// checkpointEvery is how many processed NIPTs pass between partial-progress
// writes to the run log.
const checkpointEvery = 50

// RunCounters accumulates a run's progress locally; it is flushed to the log
// row only at checkpoints and at completion.
type RunCounters struct {
	Scraped int
	New     int
	Updated int
	Errors  []string
}

// Pipeline wires collector, detail parser, and upsert engine into the full
// two-phase scrape.
type Pipeline struct {
	Store    Store
	Client   *Client
	Registry *Registry
	Upserter *Upserter
}

func NewPipeline(store Store, client *Client) (*Pipeline, error) {
	reg, err := LoadRegistry()
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Store:    store,
		Client:   client,
		Registry: reg,
		Upserter: NewUpserter(store),
	}, nil
}

// RunFull executes collect -> per-NIPT fetch -> upsert, with per-record error
// isolation and periodic checkpoints. It always finalizes the log row it
// created: completed on a clean pass, failed when the driver's own control
// flow breaks (the per-record path can only add error strings).
func (p *Pipeline) RunFull(ctx context.Context, categories []string, limit int) (models.ScrapeLog, error) {
	logID, err := p.Store.CreateScrapeLog(ctx)
	if err != nil {
		return models.ScrapeLog{}, fmt.Errorf("creating scrape log: %w", err)
	}

	counters := RunCounters{}
	runErr := p.run(ctx, logID, categories, limit, &counters)

	status := models.RunStatusCompleted
	if runErr != nil {
		status = models.RunStatusFailed
		counters.Errors = append(counters.Errors, runErr.Error())
		log.Printf("[Pipeline] Full scrape failed: %v", runErr)
	}

	if err := p.Store.FinalizeScrapeLog(ctx, logID, status, counters.Scraped, counters.New, counters.Updated, counters.Errors); err != nil {
		return models.ScrapeLog{}, fmt.Errorf("finalizing scrape log: %w", err)
	}

	log.Printf("[Pipeline] Scrape complete: %d scraped, %d new, %d updated, %d errors",
		counters.Scraped, counters.New, counters.Updated, len(counters.Errors))

	return p.Store.GetScrapeLog(ctx, logID)
}

func (p *Pipeline) run(ctx context.Context, logID uuid.UUID, categories []string, limit int, counters *RunCounters) error {
	nipts, collectErrs := CollectNIPTs(ctx, p.Client, p.Registry, categories)
	counters.Errors = append(counters.Errors, collectErrs...)

	// Sorted before truncation so a limited run is reproducible.
	niptList := make([]string, 0, len(nipts))
	for nipt := range nipts {
		niptList = append(niptList, nipt)
	}
	sort.Strings(niptList)
	if limit > 0 && len(niptList) > limit {
		niptList = niptList[:limit]
	}

	log.Printf("[Pipeline] Starting detail scrape for %d companies", len(niptList))

	for i, nipt := range niptList {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run aborted: %w", err)
		}

		if err := p.scrapeOne(ctx, nipt, counters); err != nil {
			msg := fmt.Sprintf("error scraping %s: %v", nipt, err)
			log.Printf("[Pipeline] %s", msg)
			counters.Errors = append(counters.Errors, msg)
		}

		if (i+1)%checkpointEvery == 0 {
			log.Printf("[Pipeline] Progress: %d/%d scraped", i+1, len(niptList))
			if err := p.Store.CheckpointScrapeLog(ctx, logID, counters.Scraped, counters.New, counters.Updated, counters.Errors); err != nil {
				return fmt.Errorf("checkpoint failed: %w", err)
			}
		}

		if i < len(niptList)-1 {
			if err := sleep(ctx, p.Client.delay); err != nil {
				return fmt.Errorf("run aborted: %w", err)
			}
		}
	}

	return nil
}

// scrapeOne fetches and persists one NIPT. A nil record (404) leaves every
// counter untouched.
func (p *Pipeline) scrapeOne(ctx context.Context, nipt string, counters *RunCounters) error {
	rec, err := FetchCompanyDetail(ctx, p.Client, nipt)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	res, err := p.Upserter.Upsert(ctx, *rec)
	if err != nil {
		return err
	}

	counters.Scraped++
	if res.Created {
		counters.New++
	} else {
		counters.Updated++
	}
	return nil
}

// ScrapeSingle is the on-demand path: fetch and persist one NIPT outside any
// run log. Returns the company ID, or (uuid.Nil, false) when the registry has
// no such company.
func (p *Pipeline) ScrapeSingle(ctx context.Context, nipt string) (uuid.UUID, bool, error) {
	rec, err := FetchCompanyDetail(ctx, p.Client, nipt)
	if err != nil {
		return uuid.Nil, false, err
	}
	if rec == nil {
		return uuid.Nil, false, nil
	}

	res, err := p.Upserter.Upsert(ctx, *rec)
	if err != nil {
		return uuid.Nil, false, err
	}
	return res.CompanyID, true, nil
}
