package scrape

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Sudeti/qkb/internal/models"
)

// CompanyRecord is the structured output of one detail-page parse. Empty
// strings and nil pointers mean "not present on the page"; the upsert layer
// never lets them overwrite stored values.
type CompanyRecord struct {
	NIPT             string
	SourceURL        string
	RawHTML          string
	Name             string
	LegalForm        string
	Status           string
	RegistrationDate *time.Time
	Capital          *decimal.Decimal
	Address          string
	City             string
	NaceDescription  string
	Administrators   []RepresentativeRecord
	Shareholders     []ShareholderRecord
}

// ShareholderRecord is one parsed ownership stake. ParentNIPT is set only when
// the entry text or link carried the parent's identifier.
type ShareholderRecord struct {
	FullName        string
	ShareholderType string
	OwnershipPct    *decimal.Decimal
	ParentNIPT      string
}

type RepresentativeRecord struct {
	FullName string
	Role     string
}

// Store is the persistence surface the scraper needs. *db.Store satisfies it;
// tests use an in-memory fake.
type Store interface {
	// WithTx runs fn against a transaction-bound Store. The upsert plus both
	// sync steps for one company execute inside a single call.
	WithTx(ctx context.Context, fn func(Store) error) error

	UpsertCompany(ctx context.Context, rec CompanyRecord, scrapedAt time.Time) (id uuid.UUID, created bool, err error)
	GetCompanyIDByNIPT(ctx context.Context, nipt string) (uuid.UUID, bool, error)

	ListOwnershipStakes(ctx context.Context, companyID uuid.UUID) ([]models.OwnershipStake, error)
	ReplaceShareholders(ctx context.Context, companyID uuid.UUID, rows []models.Shareholder) error
	RecordOwnershipChange(ctx context.Context, change models.OwnershipChange) error
	ReplaceRepresentatives(ctx context.Context, companyID uuid.UUID, rows []models.LegalRepresentative) error

	CreateScrapeLog(ctx context.Context) (uuid.UUID, error)
	CheckpointScrapeLog(ctx context.Context, id uuid.UUID, scraped, created, updated int, errs []string) error
	FinalizeScrapeLog(ctx context.Context, id uuid.UUID, status string, scraped, created, updated int, errs []string) error
	GetScrapeLog(ctx context.Context, id uuid.UUID) (models.ScrapeLog, error)
}
