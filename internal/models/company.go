package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Legal form codes as registered at QKB.
const (
	LegalFormShpk  = "shpk"  // Sh.P.K. (LLC)
	LegalFormSha   = "sha"   // Sh.A. (joint stock)
	LegalFormPf    = "pf"    // Person Fizik (sole proprietor)
	LegalFormDeg   = "deg"   // Degë e Shoqërisë së Huaj (foreign branch)
	LegalFormOther = "other"
)

// Registry status codes.
const (
	StatusActive        = "active"
	StatusSuspended     = "suspended"
	StatusDissolved     = "dissolved"
	StatusBankruptcy    = "bankruptcy"
	StatusInLiquidation = "in_liquidation"
)

// Company is one registered business, keyed by its NIPT/NUIS tax identifier.
type Company struct {
	ID               uuid.UUID        `json:"id"`
	NIPT             string           `json:"nipt"`
	Name             string           `json:"name"`
	NameLatin        string           `json:"name_latin"`
	LegalForm        string           `json:"legal_form"`
	Status           string           `json:"status"`
	NaceCode         string           `json:"nace_code"`
	NaceDescription  string           `json:"nace_description"`
	RegistrationDate *time.Time       `json:"registration_date"`
	Capital          *decimal.Decimal `json:"capital"`
	CapitalCurrency  string           `json:"capital_currency"`
	Address          string           `json:"address"`
	City             string           `json:"city"`
	Municipality     string           `json:"municipality"`
	SourceURL        string           `json:"source_url"`
	LastScraped      *time.Time       `json:"last_scraped"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Shareholder types.
const (
	ShareholderIndividual = "individual"
	ShareholderCompany    = "company"
)

// Shareholder is one live ownership stake in a company. The set for a company
// is replaced wholesale on every detected change, never edited row by row.
type Shareholder struct {
	ID                uuid.UUID        `json:"id"`
	CompanyID         uuid.UUID        `json:"company_id"`
	ShareholderType   string           `json:"shareholder_type"`
	FullName          string           `json:"full_name"`
	ParentCompanyID   *uuid.UUID       `json:"parent_company_id"`
	ParentCompanyName string           `json:"parent_company_name"`
	OwnershipPct      *decimal.Decimal `json:"ownership_pct"`
	CreatedAt         time.Time        `json:"created_at"`
}

type LegalRepresentative struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// OwnershipStake is the normalized (name, percentage) pair stored in
// OwnershipChange snapshots.
type OwnershipStake struct {
	Name string  `json:"name"`
	Pct  *string `json:"pct"`
}

// OwnershipChange is an append-only snapshot of a detected difference between
// two successive scrapes' shareholder sets.
type OwnershipChange struct {
	ID              uuid.UUID        `json:"id"`
	CompanyID       uuid.UUID        `json:"company_id"`
	ChangeDate      time.Time        `json:"change_date"`
	Description     string           `json:"description"`
	OldShareholders []OwnershipStake `json:"old_shareholders"`
	NewShareholders []OwnershipStake `json:"new_shareholders"`
	Source          string           `json:"source"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Scrape run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ScrapeLog is one pipeline run. It is mutated at checkpoints while the run is
// in flight and finalized exactly once.
type ScrapeLog struct {
	ID               uuid.UUID  `json:"id"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	Status           string     `json:"status"`
	CompaniesScraped int        `json:"companies_scraped"`
	CompaniesNew     int        `json:"companies_new"`
	CompaniesUpdated int        `json:"companies_updated"`
	Errors           []string   `json:"errors"`
}

// Tender references its winner both by the denormalized name/NIPT pair from
// the procurement source and, once resolvable, by company ID.
type Tender struct {
	ID              uuid.UUID        `json:"id"`
	Title           string           `json:"title"`
	Authority       string           `json:"authority"`
	Value           *decimal.Decimal `json:"value"`
	AwardDate       *time.Time       `json:"award_date"`
	WinnerName      string           `json:"winner_name"`
	WinnerNIPT      string           `json:"winner_nipt"`
	WinnerCompanyID *uuid.UUID       `json:"winner_company_id"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Job statuses for the scrape job queue.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// ScrapeJob is one queued unit of background work (full pipeline run or a
// single-NIPT on-demand scrape).
type ScrapeJob struct {
	ID          uuid.UUID  `json:"id"`
	Kind        string     `json:"kind"`
	Payload     []byte     `json:"payload"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	QueuedAt    time.Time  `json:"queued_at"`
	RunAfter    *time.Time `json:"run_after"`
	StartedAt   *time.Time `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`
	LastError   string     `json:"last_error"`
}
