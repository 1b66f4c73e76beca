package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Sudeti/qkb/internal/models"
)

// fakeStore is an in-memory Store for exercising the upsert and pipeline
// layers without Postgres.
type fakeStore struct {
	companies       map[string]*fakeCompany // keyed by NIPT
	byID            map[uuid.UUID]string
	shareholders    map[uuid.UUID][]models.Shareholder
	representatives map[uuid.UUID][]models.LegalRepresentative
	changes         []models.OwnershipChange
	logs            map[uuid.UUID]*models.ScrapeLog
	checkpoints     int

	upsertErr error // injected failure for the next UpsertCompany
}

type fakeCompany struct {
	id   uuid.UUID
	name string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		companies:       make(map[string]*fakeCompany),
		byID:            make(map[uuid.UUID]string),
		shareholders:    make(map[uuid.UUID][]models.Shareholder),
		representatives: make(map[uuid.UUID][]models.LegalRepresentative),
		logs:            make(map[uuid.UUID]*models.ScrapeLog),
	}
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(Store) error) error {
	return fn(f)
}

func (f *fakeStore) UpsertCompany(ctx context.Context, rec CompanyRecord, scrapedAt time.Time) (uuid.UUID, bool, error) {
	if f.upsertErr != nil {
		err := f.upsertErr
		f.upsertErr = nil
		return uuid.Nil, false, err
	}
	if c, ok := f.companies[rec.NIPT]; ok {
		if rec.Name != "" {
			c.name = rec.Name
		}
		return c.id, false, nil
	}
	c := &fakeCompany{id: uuid.New(), name: rec.Name}
	f.companies[rec.NIPT] = c
	f.byID[c.id] = rec.NIPT
	return c.id, true, nil
}

func (f *fakeStore) GetCompanyIDByNIPT(ctx context.Context, nipt string) (uuid.UUID, bool, error) {
	if c, ok := f.companies[nipt]; ok {
		return c.id, true, nil
	}
	return uuid.Nil, false, nil
}

func (f *fakeStore) ListOwnershipStakes(ctx context.Context, companyID uuid.UUID) ([]models.OwnershipStake, error) {
	var out []models.OwnershipStake
	for _, sh := range f.shareholders[companyID] {
		s := models.OwnershipStake{Name: sh.FullName}
		if sh.OwnershipPct != nil {
			pct := sh.OwnershipPct.String()
			s.Pct = &pct
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) ReplaceShareholders(ctx context.Context, companyID uuid.UUID, rows []models.Shareholder) error {
	f.shareholders[companyID] = rows
	return nil
}

func (f *fakeStore) RecordOwnershipChange(ctx context.Context, change models.OwnershipChange) error {
	f.changes = append(f.changes, change)
	return nil
}

func (f *fakeStore) ReplaceRepresentatives(ctx context.Context, companyID uuid.UUID, rows []models.LegalRepresentative) error {
	f.representatives[companyID] = rows
	return nil
}

func (f *fakeStore) CreateScrapeLog(ctx context.Context) (uuid.UUID, error) {
	id := uuid.New()
	f.logs[id] = &models.ScrapeLog{ID: id, StartedAt: time.Now(), Status: models.RunStatusRunning}
	return id, nil
}

func (f *fakeStore) CheckpointScrapeLog(ctx context.Context, id uuid.UUID, scraped, created, updated int, errs []string) error {
	log, ok := f.logs[id]
	if !ok {
		return fmt.Errorf("no such log %s", id)
	}
	f.checkpoints++
	log.CompaniesScraped = scraped
	log.CompaniesNew = created
	log.CompaniesUpdated = updated
	log.Errors = errs
	return nil
}

func (f *fakeStore) FinalizeScrapeLog(ctx context.Context, id uuid.UUID, status string, scraped, created, updated int, errs []string) error {
	log, ok := f.logs[id]
	if !ok {
		return fmt.Errorf("no such log %s", id)
	}
	now := time.Now()
	log.Status = status
	log.CompletedAt = &now
	log.CompaniesScraped = scraped
	log.CompaniesNew = created
	log.CompaniesUpdated = updated
	log.Errors = errs
	return nil
}

func (f *fakeStore) GetScrapeLog(ctx context.Context, id uuid.UUID) (models.ScrapeLog, error) {
	log, ok := f.logs[id]
	if !ok {
		return models.ScrapeLog{}, fmt.Errorf("no such log %s", id)
	}
	return *log, nil
}
