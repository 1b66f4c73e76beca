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

const detailPageHTML = `<!DOCTYPE html>
<html>
<head><title>BANKA KOMBËTARE TREGTARE</title></head>
<body>
<h1>Open Corporates Albania</h1>
<table>
  <tr><th>Legal form:</th><td>Shoqëri Aksionare SH.A</td></tr>
  <tr><th>Status:</th><td>Aktiv</td></tr>
  <tr><th>Foundation Year:</th><td>15/03/2020</td></tr>
  <tr><th>Initial Capital:</th><td>14 178 593 030,00</td></tr>
  <tr><th>District:</th><td>Tiranë, Durrës</td></tr>
  <tr><th>Address:</th><td>Bulevardi Zhan D'Ark, Tiranë</td></tr>
  <tr><th>Scope:</th><td>%s</td></tr>
  <tr><th>Administrators:</th><td>Seyhan Pencabligil; Plarent Gjergji</td></tr>
  <tr><th>Board Members:</th><td>Mehmet Usta, Ali Koç</td></tr>
  <tr><th>Parent Company / Owner:</th><td>&quot;Çalık Finansal Hizmetler A.Ş.&quot;, shoqëri turke, NIPT K41424801U, 100%%</td></tr>
</table>
</body>
</html>`

func serveDetail(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithBase(srv.URL)
}

func TestFetchCompanyDetail(t *testing.T) {
	scope := strings.Repeat("Veprimtari bankare. ", 40) // > 500 bytes
	page := fmt.Sprintf(detailPageHTML, scope)

	client := serveDetail(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/en/nipt/K41424801U" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, page)
	})

	rec, err := FetchCompanyDetail(context.Background(), client, "K41424801U")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil {
		t.Fatal("expected a record")
	}

	if rec.NIPT != "K41424801U" {
		t.Fatalf("unexpected NIPT %q", rec.NIPT)
	}
	if rec.Name != "BANKA KOMBËTARE TREGTARE" {
		t.Fatalf("unexpected name %q", rec.Name)
	}
	if rec.LegalForm != models.LegalFormSha {
		t.Fatalf("unexpected legal form %q", rec.LegalForm)
	}
	if rec.Status != models.StatusActive {
		t.Fatalf("unexpected status %q", rec.Status)
	}
	if rec.RegistrationDate == nil || rec.RegistrationDate.Format("2006-01-02") != "2020-03-15" {
		t.Fatalf("unexpected registration date %v", rec.RegistrationDate)
	}
	if rec.Capital == nil || rec.Capital.String() != "14178593030" {
		t.Fatalf("unexpected capital %v", rec.Capital)
	}
	if rec.City != "Tiranë" {
		t.Fatalf("expected first district only, got %q", rec.City)
	}
	if rec.Address != "Bulevardi Zhan D'Ark, Tiranë" {
		t.Fatalf("unexpected address %q", rec.Address)
	}
	if len(rec.NaceDescription) > 500 {
		t.Fatalf("scope not capped: %d bytes", len(rec.NaceDescription))
	}
	if !strings.HasPrefix(rec.NaceDescription, "Veprimtari bankare.") {
		t.Fatalf("unexpected scope %q", rec.NaceDescription)
	}
	if !strings.HasSuffix(rec.SourceURL, "/en/nipt/K41424801U") {
		t.Fatalf("unexpected source URL %q", rec.SourceURL)
	}

	if len(rec.Administrators) != 4 {
		t.Fatalf("expected 4 representatives, got %d: %+v", len(rec.Administrators), rec.Administrators)
	}
	if rec.Administrators[0].FullName != "Seyhan Pencabligil" || rec.Administrators[0].Role != "Administrator" {
		t.Fatalf("unexpected first representative %+v", rec.Administrators[0])
	}
	if rec.Administrators[2].FullName != "Mehmet Usta" || rec.Administrators[2].Role != "Board Member" {
		t.Fatalf("unexpected board member %+v", rec.Administrators[2])
	}

	if len(rec.Shareholders) != 1 {
		t.Fatalf("expected 1 shareholder, got %d", len(rec.Shareholders))
	}
	sh := rec.Shareholders[0]
	if sh.FullName != "Çalık Finansal Hizmetler A.Ş." {
		t.Fatalf("unexpected shareholder %q", sh.FullName)
	}
	if sh.ShareholderType != models.ShareholderCompany {
		t.Fatalf("expected company shareholder, got %q", sh.ShareholderType)
	}
	if sh.ParentNIPT != "K41424801U" {
		t.Fatalf("unexpected parent NIPT %q", sh.ParentNIPT)
	}
	if sh.OwnershipPct == nil || sh.OwnershipPct.String() != "100" {
		t.Fatalf("unexpected ownership %v", sh.OwnershipPct)
	}
}

func TestFetchCompanyDetail_NotFound(t *testing.T) {
	client := serveDetail(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	rec, err := FetchCompanyDetail(context.Background(), client, "A00000000A")
	if err != nil {
		t.Fatalf("404 must not be an error, got %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record for 404, got %+v", rec)
	}
}

func TestFetchCompanyDetail_ServerError(t *testing.T) {
	client := serveDetail(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	rec, err := FetchCompanyDetail(context.Background(), client, "A00000000A")
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

func TestFetchCompanyDetail_ListFallback(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<head><title>TIRANA HOLDING</title></head>
<body>
<table>
  <tr><th>Status:</th><td>Aktiv</td></tr>
  <tr><th>Parent Company / Owner:</th><td>Nuk ka të dhëna</td></tr>
</table>
<div class="title-divider"><span>Shareholders</span></div>
<ul class="list-group">
  <li class="list-group-item"><a href="/en/nipt/J61827501H">ALBA INVEST SHPK - 75%</a></li>
  <li class="list-group-item">Dritan Cela - 25%</li>
</ul>
</body>
</html>`

	client := serveDetail(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	})

	rec, err := FetchCompanyDetail(context.Background(), client, "L91713032R")
	if err != nil {
		t.Fatal(err)
	}

	// The structured owner field is boilerplate, so the list section wins.
	if len(rec.Shareholders) != 2 {
		t.Fatalf("expected 2 shareholders from the list fallback, got %d", len(rec.Shareholders))
	}
	if rec.Shareholders[0].FullName != "ALBA INVEST SHPK" || rec.Shareholders[0].ParentNIPT != "J61827501H" {
		t.Fatalf("unexpected fallback shareholder %+v", rec.Shareholders[0])
	}
}
