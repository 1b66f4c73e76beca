package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Sudeti/qkb/internal/models"
)

// UpsertResult reports what one persisted record did to the graph.
type UpsertResult struct {
	CompanyID        uuid.UUID
	Created          bool
	OwnershipChanged bool
}

// Upserter persists parsed records: company row, shareholder set, legal
// representatives, search index.
type Upserter struct {
	store Store
	now   func() time.Time
}

func NewUpserter(store Store) *Upserter {
	return &Upserter{store: store, now: time.Now}
}

// Upsert creates or updates the company for rec and synchronizes its
// ownership graph. The whole sequence runs in one transaction scope so
// concurrent runs over the same NIPT stay last-write-wins consistent.
func (u *Upserter) Upsert(ctx context.Context, rec CompanyRecord) (UpsertResult, error) {
	var res UpsertResult
	err := u.store.WithTx(ctx, func(st Store) error {
		id, created, err := st.UpsertCompany(ctx, rec, u.now())
		if err != nil {
			return fmt.Errorf("upserting company %s: %w", rec.NIPT, err)
		}
		res.CompanyID = id
		res.Created = created

		changed, err := syncShareholders(ctx, st, id, rec.Shareholders)
		if err != nil {
			return fmt.Errorf("syncing shareholders for %s: %w", rec.NIPT, err)
		}
		res.OwnershipChanged = changed

		if err := syncAdministrators(ctx, st, id, rec.Administrators); err != nil {
			return fmt.Errorf("syncing administrators for %s: %w", rec.NIPT, err)
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}
	return res, nil
}

// stakeKey is the normalized identity of one stake for set comparison:
// name plus percentage rendered as a string, or empty for no percentage.
type stakeKey struct {
	name string
	pct  string
}

func stakeSet(stakes []models.OwnershipStake) map[stakeKey]struct{} {
	set := make(map[stakeKey]struct{}, len(stakes))
	for _, s := range stakes {
		k := stakeKey{name: s.Name}
		if s.Pct != nil {
			k.pct = *s.Pct
		}
		set[k] = struct{}{}
	}
	return set
}

func recordStakes(records []ShareholderRecord) []models.OwnershipStake {
	out := make([]models.OwnershipStake, 0, len(records))
	for _, r := range records {
		s := models.OwnershipStake{Name: r.FullName}
		if r.OwnershipPct != nil {
			pct := r.OwnershipPct.String()
			s.Pct = &pct
		}
		out = append(out, s)
	}
	return out
}

func sameStakes(a, b map[stakeKey]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// syncShareholders diffs the stored shareholder set against the newly parsed
// one. An empty parse is a no-op: it means "couldn't read the section", never
// "the company now has zero shareholders". On any difference the live set is
// replaced wholesale; a history snapshot is appended first, but only when
// there was prior data to diff against.
func syncShareholders(ctx context.Context, st Store, companyID uuid.UUID, incoming []ShareholderRecord) (bool, error) {
	if len(incoming) == 0 {
		return false, nil
	}

	current, err := st.ListOwnershipStakes(ctx, companyID)
	if err != nil {
		return false, err
	}

	newStakes := recordStakes(incoming)
	if sameStakes(stakeSet(current), stakeSet(newStakes)) {
		return false, nil
	}

	if len(current) > 0 {
		change := models.OwnershipChange{
			CompanyID:       companyID,
			ChangeDate:      time.Now().UTC().Truncate(24 * time.Hour),
			Description:     "Ownership change detected during scrape",
			OldShareholders: current,
			NewShareholders: newStakes,
			Source:          "qkb_scrape",
		}
		if err := st.RecordOwnershipChange(ctx, change); err != nil {
			return false, err
		}
	}

	rows := make([]models.Shareholder, 0, len(incoming))
	for _, r := range incoming {
		row := models.Shareholder{
			CompanyID:       companyID,
			ShareholderType: r.ShareholderType,
			FullName:        r.FullName,
			OwnershipPct:    r.OwnershipPct,
		}
		if r.ShareholderType == models.ShareholderCompany {
			row.ParentCompanyName = r.FullName
		}
		if r.ParentNIPT != "" {
			// Resolve the parent only when already known locally; otherwise
			// the free-text name is all we keep.
			if parentID, ok, err := st.GetCompanyIDByNIPT(ctx, r.ParentNIPT); err != nil {
				return false, err
			} else if ok {
				id := parentID
				row.ParentCompanyID = &id
			}
		}
		rows = append(rows, row)
	}

	if err := st.ReplaceShareholders(ctx, companyID, rows); err != nil {
		return false, err
	}
	return true, nil
}

// syncAdministrators replaces the representative set with the latest scrape.
// An empty parse keeps the old list: no history is kept for representatives,
// so a parse failure must not erase them.
func syncAdministrators(ctx context.Context, st Store, companyID uuid.UUID, incoming []RepresentativeRecord) error {
	if len(incoming) == 0 {
		return nil
	}

	rows := make([]models.LegalRepresentative, 0, len(incoming))
	for _, r := range incoming {
		role := r.Role
		if role == "" {
			role = "Administrator"
		}
		rows = append(rows, models.LegalRepresentative{
			CompanyID: companyID,
			FullName:  r.FullName,
			Role:      role,
		})
	}
	return st.ReplaceRepresentatives(ctx, companyID, rows)
}
