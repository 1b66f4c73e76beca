package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sudeti/qkb/internal/models"
	"github.com/Sudeti/qkb/internal/scrape"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so Store methods run
// identically inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	q    querier
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{q: pool, pool: pool}
}

// WithTx runs fn against a transaction-bound Store. Nested calls reuse the
// already-open transaction.
func (s *Store) WithTx(ctx context.Context, fn func(scrape.Store) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}

	if err := fn(&Store{q: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// UpsertCompany creates or updates the row for rec.NIPT. Empty or nil scraped
// fields never overwrite stored values; last_scraped always moves forward.
// The search vector is refreshed for the row on every write.
func (s *Store) UpsertCompany(ctx context.Context, rec scrape.CompanyRecord, scrapedAt time.Time) (uuid.UUID, bool, error) {
	var id uuid.UUID
	var created bool

	rawText := scrape.SanitizeRawPage(rec.RawHTML)

	err := s.q.QueryRow(ctx, `
		INSERT INTO companies (
			nipt, name, legal_form, status, registration_date, capital,
			address, city, nace_description, raw_page_text, source_url, last_scraped
		) VALUES (
			$1, $2, COALESCE(NULLIF($3, ''), 'other'), COALESCE(NULLIF($4, ''), 'active'), $5, $6,
			$7, $8, $9, $10, $11, $12
		)
		ON CONFLICT (nipt) DO UPDATE SET
			updated_at = NOW(),
			name = COALESCE(NULLIF(EXCLUDED.name, ''), companies.name),
			legal_form = CASE WHEN $3 <> '' THEN $3 ELSE companies.legal_form END,
			status = CASE WHEN $4 <> '' THEN $4 ELSE companies.status END,
			registration_date = COALESCE(EXCLUDED.registration_date, companies.registration_date),
			capital = COALESCE(EXCLUDED.capital, companies.capital),
			address = COALESCE(NULLIF(EXCLUDED.address, ''), companies.address),
			city = COALESCE(NULLIF(EXCLUDED.city, ''), companies.city),
			nace_description = COALESCE(NULLIF(EXCLUDED.nace_description, ''), companies.nace_description),
			raw_page_text = COALESCE(NULLIF(EXCLUDED.raw_page_text, ''), companies.raw_page_text),
			source_url = COALESCE(NULLIF(EXCLUDED.source_url, ''), companies.source_url),
			last_scraped = EXCLUDED.last_scraped
		RETURNING id, (xmax = 0)
	`,
		rec.NIPT, rec.Name, rec.LegalForm, rec.Status, rec.RegistrationDate, rec.Capital,
		rec.Address, rec.City, rec.NaceDescription, rawText, rec.SourceURL, scrapedAt,
	).Scan(&id, &created)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("upserting %s: %w", rec.NIPT, err)
	}

	if _, err := s.q.Exec(ctx, `
		UPDATE companies
		SET search_vector = to_tsvector('simple',
			coalesce(name, '') || ' ' || coalesce(name_latin, '') || ' ' || nipt || ' ' || coalesce(city, ''))
		WHERE id = $1
	`, id); err != nil {
		return uuid.Nil, false, fmt.Errorf("refreshing search vector for %s: %w", rec.NIPT, err)
	}

	return id, created, nil
}

func (s *Store) GetCompanyIDByNIPT(ctx context.Context, nipt string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := s.q.QueryRow(ctx, `SELECT id FROM companies WHERE nipt = $1`, nipt).Scan(&id)
	if err == pgx.ErrNoRows {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

const companyCols = `id, nipt, name, name_latin, legal_form, status, nace_code, nace_description,
	registration_date, capital, capital_currency, address, city, municipality,
	source_url, last_scraped, created_at, updated_at`

func scanCompany(row pgx.Row) (models.Company, error) {
	var c models.Company
	var regDate, lastScraped *time.Time
	err := row.Scan(
		&c.ID, &c.NIPT, &c.Name, &c.NameLatin, &c.LegalForm, &c.Status, &c.NaceCode, &c.NaceDescription,
		&regDate, &c.Capital, &c.CapitalCurrency, &c.Address, &c.City, &c.Municipality,
		&c.SourceURL, &lastScraped, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return c, err
	}
	c.RegistrationDate = regDate
	c.LastScraped = lastScraped
	return c, nil
}

func (s *Store) GetCompanyByNIPT(ctx context.Context, nipt string) (models.Company, bool, error) {
	c, err := scanCompany(s.q.QueryRow(ctx,
		`SELECT `+companyCols+` FROM companies WHERE lower(nipt) = lower($1)`, nipt))
	if err == pgx.ErrNoRows {
		return models.Company{}, false, nil
	}
	if err != nil {
		return models.Company{}, false, err
	}
	return c, true, nil
}

// SearchCompanies implements the layered lookup: exact NIPT first, then
// ranked full-text search, then an ILIKE fallback that also matches
// shareholder and representative names.
func (s *Store) SearchCompanies(ctx context.Context, query string, limit int) ([]models.Company, error) {
	if limit <= 0 {
		limit = 50
	}

	if c, ok, err := s.GetCompanyByNIPT(ctx, query); err != nil {
		return nil, err
	} else if ok {
		return []models.Company{c}, nil
	}

	rows, err := s.q.Query(ctx, `
		SELECT `+companyCols+`
		FROM companies
		WHERE search_vector @@ plainto_tsquery('simple', $1)
		ORDER BY ts_rank(search_vector, plainto_tsquery('simple', $1)) DESC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}
	companies, err := collectCompanies(rows)
	if err != nil {
		return nil, err
	}
	if len(companies) > 0 {
		return companies, nil
	}

	// Fallback for rows without a populated search vector.
	rows, err = s.q.Query(ctx, `
		SELECT DISTINCT `+prefixCols("c.", companyCols)+`
		FROM companies c
		LEFT JOIN shareholders sh ON sh.company_id = c.id
		LEFT JOIN legal_representatives lr ON lr.company_id = c.id
		WHERE c.name ILIKE '%' || $1 || '%'
		   OR c.name_latin ILIKE '%' || $1 || '%'
		   OR sh.full_name ILIKE '%' || $1 || '%'
		   OR lr.full_name ILIKE '%' || $1 || '%'
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fallback search failed: %w", err)
	}
	return collectCompanies(rows)
}

func collectCompanies(rows pgx.Rows) ([]models.Company, error) {
	defer rows.Close()
	var out []models.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func prefixCols(prefix, cols string) string {
	out := ""
	for i, col := range splitCols(cols) {
		if i > 0 {
			out += ", "
		}
		out += prefix + col
	}
	return out
}

func splitCols(cols string) []string {
	var out []string
	field := ""
	for _, r := range cols {
		switch r {
		case ',':
			out = append(out, field)
			field = ""
		case ' ', '\n', '\t':
			// skip
		default:
			field += string(r)
		}
	}
	if field != "" {
		out = append(out, field)
	}
	return out
}

// ── Shareholders, representatives, ownership history ──

func (s *Store) ListOwnershipStakes(ctx context.Context, companyID uuid.UUID) ([]models.OwnershipStake, error) {
	rows, err := s.q.Query(ctx,
		`SELECT full_name, ownership_pct::text FROM shareholders WHERE company_id = $1`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.OwnershipStake
	for rows.Next() {
		var st models.OwnershipStake
		if err := rows.Scan(&st.Name, &st.Pct); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) ReplaceShareholders(ctx context.Context, companyID uuid.UUID, rowsIn []models.Shareholder) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM shareholders WHERE company_id = $1`, companyID); err != nil {
		return fmt.Errorf("clearing shareholders: %w", err)
	}
	for _, sh := range rowsIn {
		if _, err := s.q.Exec(ctx, `
			INSERT INTO shareholders (company_id, shareholder_type, full_name, parent_company_id, parent_company_name, ownership_pct)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, companyID, sh.ShareholderType, sh.FullName, sh.ParentCompanyID, sh.ParentCompanyName, sh.OwnershipPct); err != nil {
			return fmt.Errorf("inserting shareholder %q: %w", sh.FullName, err)
		}
	}
	return nil
}

func (s *Store) RecordOwnershipChange(ctx context.Context, change models.OwnershipChange) error {
	oldJSON, err := json.Marshal(change.OldShareholders)
	if err != nil {
		return err
	}
	newJSON, err := json.Marshal(change.NewShareholders)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO ownership_changes (company_id, change_date, description, old_shareholders, new_shareholders, source)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, change.CompanyID, change.ChangeDate, change.Description, oldJSON, newJSON, orDefault(change.Source, "qkb_scrape"))
	return err
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (s *Store) ReplaceRepresentatives(ctx context.Context, companyID uuid.UUID, rowsIn []models.LegalRepresentative) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM legal_representatives WHERE company_id = $1`, companyID); err != nil {
		return fmt.Errorf("clearing representatives: %w", err)
	}
	for _, rep := range rowsIn {
		if _, err := s.q.Exec(ctx, `
			INSERT INTO legal_representatives (company_id, full_name, role)
			VALUES ($1, $2, $3)
		`, companyID, rep.FullName, rep.Role); err != nil {
			return fmt.Errorf("inserting representative %q: %w", rep.FullName, err)
		}
	}
	return nil
}

func (s *Store) ListShareholders(ctx context.Context, companyID uuid.UUID) ([]models.Shareholder, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, company_id, shareholder_type, full_name, parent_company_id, parent_company_name, ownership_pct, created_at
		FROM shareholders WHERE company_id = $1 ORDER BY full_name
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Shareholder
	for rows.Next() {
		var sh models.Shareholder
		if err := rows.Scan(&sh.ID, &sh.CompanyID, &sh.ShareholderType, &sh.FullName,
			&sh.ParentCompanyID, &sh.ParentCompanyName, &sh.OwnershipPct, &sh.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *Store) ListRepresentatives(ctx context.Context, companyID uuid.UUID) ([]models.LegalRepresentative, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, company_id, full_name, role, created_at
		FROM legal_representatives WHERE company_id = $1 ORDER BY role, full_name
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LegalRepresentative
	for rows.Next() {
		var rep models.LegalRepresentative
		if err := rows.Scan(&rep.ID, &rep.CompanyID, &rep.FullName, &rep.Role, &rep.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (s *Store) ListOwnershipChanges(ctx context.Context, companyID uuid.UUID, limit int) ([]models.OwnershipChange, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.q.Query(ctx, `
		SELECT id, company_id, change_date, description, old_shareholders, new_shareholders, source, created_at
		FROM ownership_changes WHERE company_id = $1
		ORDER BY change_date DESC LIMIT $2
	`, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.OwnershipChange
	for rows.Next() {
		var ch models.OwnershipChange
		var oldJSON, newJSON []byte
		if err := rows.Scan(&ch.ID, &ch.CompanyID, &ch.ChangeDate, &ch.Description, &oldJSON, &newJSON, &ch.Source, &ch.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(oldJSON, &ch.OldShareholders)
		_ = json.Unmarshal(newJSON, &ch.NewShareholders)
		out = append(out, ch)
	}
	return out, rows.Err()
}

// ── Scrape logs ──

func (s *Store) CreateScrapeLog(ctx context.Context) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.q.QueryRow(ctx,
		`INSERT INTO scrape_logs (status) VALUES ('running') RETURNING id`).Scan(&id)
	return id, err
}

func (s *Store) CheckpointScrapeLog(ctx context.Context, id uuid.UUID, scraped, created, updated int, errs []string) error {
	errsJSON, err := json.Marshal(stringsOrEmpty(errs))
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx, `
		UPDATE scrape_logs
		SET companies_scraped = $1, companies_new = $2, companies_updated = $3, errors = $4
		WHERE id = $5
	`, scraped, created, updated, errsJSON, id)
	return err
}

func (s *Store) FinalizeScrapeLog(ctx context.Context, id uuid.UUID, status string, scraped, created, updated int, errs []string) error {
	errsJSON, err := json.Marshal(stringsOrEmpty(errs))
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx, `
		UPDATE scrape_logs
		SET status = $1, companies_scraped = $2, companies_new = $3, companies_updated = $4,
		    errors = $5, completed_at = NOW()
		WHERE id = $6
	`, status, scraped, created, updated, errsJSON, id)
	return err
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *Store) GetScrapeLog(ctx context.Context, id uuid.UUID) (models.ScrapeLog, error) {
	return scanScrapeLog(s.q.QueryRow(ctx, `
		SELECT id, started_at, completed_at, status, companies_scraped, companies_new, companies_updated, errors
		FROM scrape_logs WHERE id = $1
	`, id))
}

func (s *Store) ListScrapeLogs(ctx context.Context, limit int) ([]models.ScrapeLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.q.Query(ctx, `
		SELECT id, started_at, completed_at, status, companies_scraped, companies_new, companies_updated, errors
		FROM scrape_logs ORDER BY started_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScrapeLog
	for rows.Next() {
		l, err := scanScrapeLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanScrapeLog(row pgx.Row) (models.ScrapeLog, error) {
	var l models.ScrapeLog
	var errsJSON []byte
	err := row.Scan(&l.ID, &l.StartedAt, &l.CompletedAt, &l.Status,
		&l.CompaniesScraped, &l.CompaniesNew, &l.CompaniesUpdated, &errsJSON)
	if err != nil {
		return l, err
	}
	_ = json.Unmarshal(errsJSON, &l.Errors)
	return l, nil
}

// FailStaleScrapeLogs marks logs still 'running' after olderThan as failed.
// A forced job-runtime termination can strand a run in 'running'; this sweep
// reconciles those rows.
func (s *Store) FailStaleScrapeLogs(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE scrape_logs
		SET status = 'failed',
		    errors = errors || to_jsonb(ARRAY['run terminated externally; marked failed by reconciliation sweep']),
		    completed_at = NOW()
		WHERE status = 'running' AND started_at < NOW() - $1::interval
	`, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ── Tenders ──

// SaveTender persists a tender, resolving the winner company by NIPT when it
// is already known locally. Returns the saved tender and whether the winner
// reference is still unresolved despite a NIPT being present — the caller
// schedules the on-demand scrape in that case.
func (s *Store) SaveTender(ctx context.Context, t models.Tender) (models.Tender, bool, error) {
	if t.WinnerNIPT != "" && t.WinnerCompanyID == nil {
		if id, ok, err := s.GetCompanyIDByNIPT(ctx, t.WinnerNIPT); err != nil {
			return t, false, err
		} else if ok {
			t.WinnerCompanyID = &id
		}
	}

	err := s.q.QueryRow(ctx, `
		INSERT INTO tenders (title, authority, value, award_date, winner_name, winner_nipt, winner_company_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, t.Title, t.Authority, t.Value, t.AwardDate, t.WinnerName, t.WinnerNIPT, t.WinnerCompanyID).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return t, false, fmt.Errorf("saving tender: %w", err)
	}

	unresolved := t.WinnerNIPT != "" && t.WinnerCompanyID == nil
	return t, unresolved, nil
}

// ListUnlinkedTenders returns tenders with a winner NIPT but no resolved
// company reference.
func (s *Store) ListUnlinkedTenders(ctx context.Context) ([]models.Tender, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, title, authority, value, award_date, winner_name, winner_nipt, winner_company_id, created_at
		FROM tenders
		WHERE winner_company_id IS NULL AND winner_nipt <> ''
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Tender
	for rows.Next() {
		var t models.Tender
		if err := rows.Scan(&t.ID, &t.Title, &t.Authority, &t.Value, &t.AwardDate,
			&t.WinnerName, &t.WinnerNIPT, &t.WinnerCompanyID, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) LinkTender(ctx context.Context, tenderID, companyID uuid.UUID) error {
	_, err := s.q.Exec(ctx,
		`UPDATE tenders SET winner_company_id = $1 WHERE id = $2`, companyID, tenderID)
	return err
}
