package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Sudeti/qkb/internal/models"
)

// registrySite serves a fake listing endpoint plus detail pages for the given
// NIPTs. NIPTs listed in broken return 500s; NIPTs absent from pages 404.
type registrySite struct {
	listed []string
	pages  map[string]string
	broken map[string]bool
}

func (s *registrySite) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sq/company/any" {
			var rows []string
			for _, nipt := range s.listed {
				rows = append(rows, fmt.Sprintf(`{"NIPT":%q}`, nipt))
			}
			fmt.Fprintf(w, `{"data":[%s],"recordsTotal":%d}`, strings.Join(rows, ","), len(s.listed))
			return
		}
		if nipt, ok := strings.CutPrefix(r.URL.Path, "/en/nipt/"); ok {
			if s.broken[nipt] {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			page, ok := s.pages[nipt]
			if !ok {
				http.NotFound(w, r)
				return
			}
			fmt.Fprint(w, page)
			return
		}
		http.NotFound(w, r)
	}
}

func detailPage(name string) string {
	return fmt.Sprintf(`<html><head><title>%s</title></head><body>
<table><tr><th>Status:</th><td>Aktiv</td></tr></table>
</body></html>`, name)
}

func newTestPipeline(t *testing.T, store *fakeStore, site *registrySite) *Pipeline {
	t.Helper()
	srv := httptest.NewServer(site.handler())
	t.Cleanup(srv.Close)

	client := NewClientWithBase(srv.URL)
	client.delay = 0

	pipeline, err := NewPipeline(store, client)
	if err != nil {
		t.Fatal(err)
	}
	// Only the one listing endpoint exists in the fake site.
	pipeline.Registry = &Registry{Endpoints: []ListingEndpoint{{Category: "company", Path: "/sq/company/any"}}}
	return pipeline
}

func TestRunFull_CountsAndCompletes(t *testing.T) {
	store := newFakeStore()
	site := &registrySite{
		listed: []string{"L91713032R", "J61827501H"},
		pages: map[string]string{
			"L91713032R": detailPage("ALPHA SHPK"),
			"J61827501H": detailPage("BETA SHPK"),
		},
	}
	pipeline := newTestPipeline(t, store, site)

	result, err := pipeline.RunFull(context.Background(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != models.RunStatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if result.CompaniesScraped != 2 || result.CompaniesNew != 2 || result.CompaniesUpdated != 0 {
		t.Fatalf("unexpected counters: %+v", result)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", result.Errors)
	}
	if result.CompletedAt == nil {
		t.Fatal("expected a completion timestamp")
	}
}

func TestRunFull_LimitKeepsLexicographicallySmallest(t *testing.T) {
	store := newFakeStore()
	site := &registrySite{
		listed: []string{"M00000003C", "K00000001A", "L00000002B"},
		pages: map[string]string{
			"K00000001A": detailPage("FIRST"),
			"L00000002B": detailPage("SECOND"),
			"M00000003C": detailPage("THIRD"),
		},
	}
	pipeline := newTestPipeline(t, store, site)

	result, err := pipeline.RunFull(context.Background(), nil, 2)
	if err != nil {
		t.Fatal(err)
	}
	if result.CompaniesScraped != 2 {
		t.Fatalf("expected 2 scraped, got %d", result.CompaniesScraped)
	}
	if _, ok := store.companies["K00000001A"]; !ok {
		t.Fatal("expected the smallest NIPT to be scraped")
	}
	if _, ok := store.companies["M00000003C"]; ok {
		t.Fatal("the largest NIPT must fall outside the limit")
	}
}

func TestRunFull_PerRecordErrorIsolation(t *testing.T) {
	store := newFakeStore()
	site := &registrySite{
		listed: []string{"K00000001A", "L00000002B", "M00000003C"},
		pages: map[string]string{
			"K00000001A": detailPage("FIRST"),
			"M00000003C": detailPage("THIRD"),
		},
		broken: map[string]bool{"L00000002B": true},
	}
	pipeline := newTestPipeline(t, store, site)

	result, err := pipeline.RunFull(context.Background(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	// One record failing must not fail the run or stop later records.
	if result.Status != models.RunStatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if result.CompaniesScraped != 2 {
		t.Fatalf("expected 2 scraped, got %d", result.CompaniesScraped)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "L00000002B") {
		t.Fatalf("expected the failed NIPT in the error list, got %v", result.Errors)
	}
}

func TestRunFull_NotFoundIsSilent(t *testing.T) {
	store := newFakeStore()
	site := &registrySite{
		listed: []string{"K00000001A", "L00000002B"},
		pages:  map[string]string{"K00000001A": detailPage("FIRST")},
	}
	pipeline := newTestPipeline(t, store, site)

	result, err := pipeline.RunFull(context.Background(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	// The 404 neither errors nor counts.
	if result.CompaniesScraped != 1 {
		t.Fatalf("expected 1 scraped, got %d", result.CompaniesScraped)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", result.Errors)
	}
}

func TestRunFull_CheckpointCadence(t *testing.T) {
	var listed []string
	pages := make(map[string]string)
	for i := 0; i < 120; i++ {
		nipt := fmt.Sprintf("K%08dA", i)
		listed = append(listed, nipt)
		pages[nipt] = detailPage(fmt.Sprintf("COMPANY %d", i))
	}

	store := newFakeStore()
	pipeline := newTestPipeline(t, store, &registrySite{listed: listed, pages: pages})

	result, err := pipeline.RunFull(context.Background(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.CompaniesScraped != 120 {
		t.Fatalf("expected 120 scraped, got %d", result.CompaniesScraped)
	}
	// 120 records cross the every-50 boundary twice.
	if store.checkpoints != 2 {
		t.Fatalf("expected 2 checkpoints, got %d", store.checkpoints)
	}
}

func TestRunFull_UpsertFailureRecordedPerRecord(t *testing.T) {
	store := newFakeStore()
	store.upsertErr = fmt.Errorf("connection reset")
	site := &registrySite{
		listed: []string{"K00000001A", "L00000002B"},
		pages: map[string]string{
			"K00000001A": detailPage("FIRST"),
			"L00000002B": detailPage("SECOND"),
		},
	}
	pipeline := newTestPipeline(t, store, site)

	result, err := pipeline.RunFull(context.Background(), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != models.RunStatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if result.CompaniesScraped != 1 {
		t.Fatalf("expected 1 scraped, got %d", result.CompaniesScraped)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "connection reset") {
		t.Fatalf("expected the upsert failure recorded, got %v", result.Errors)
	}
}

func TestScrapeSingle(t *testing.T) {
	store := newFakeStore()
	site := &registrySite{
		listed: []string{},
		pages:  map[string]string{"K41424801U": detailPage("RAIFFEISEN BANK SH.A")},
	}
	pipeline := newTestPipeline(t, store, site)
	ctx := context.Background()

	id, found, err := pipeline.ScrapeSingle(ctx, "K41424801U")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected the company to be found")
	}
	if store.byID[id] != "K41424801U" {
		t.Fatal("expected the stored company to match the scraped NIPT")
	}

	_, found, err = pipeline.ScrapeSingle(ctx, "A00000000A")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected a missing NIPT to report not found")
	}
}
