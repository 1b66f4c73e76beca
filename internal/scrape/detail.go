package scrape

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FetchCompanyDetail fetches and parses the detail page for one NIPT.
// A 404 yields (nil, nil): not-found is an expected outcome, not an error.
// Any other failure yields (nil, err); the caller decides whether the run
// records it. No automatic retry happens at this level.
func FetchCompanyDetail(ctx context.Context, client *Client, nipt string) (*CompanyRecord, error) {
	path := "/en/nipt/" + nipt

	body, err := client.GetHTML(ctx, path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Printf("[Detail] Company not found: %s", nipt)
			return nil, nil
		}
		return nil, fmt.Errorf("fetching %s: %w", nipt, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", nipt, err)
	}

	rec := &CompanyRecord{
		NIPT:      nipt,
		SourceURL: client.baseURL + path,
		RawHTML:   body,
	}

	// The page <h1> carries the site name; the company name lives in <title>.
	rec.Name = strings.TrimSpace(doc.Find("title").First().Text())

	parseDetailTable(doc, rec)

	return rec, nil
}

// parseDetailTable reads the first data table on the page: <tr> rows with a
// <th> label cell and a <td> value cell, labels bilingual (English/Albanian).
func parseDetailTable(doc *goquery.Document, rec *CompanyRecord) {
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return
	}

	fields := make(map[string]string)
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		th := row.Find("th").First()
		td := row.Find("td").First()
		if th.Length() == 0 || td.Length() == 0 {
			return
		}
		label := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(th.Text())), ":")
		value := strings.TrimSpace(td.Text())
		if label != "" && value != "" {
			fields[label] = value
		}
	})

	pick := func(labels ...string) (string, bool) {
		for _, l := range labels {
			if v, ok := fields[l]; ok {
				return v, true
			}
		}
		return "", false
	}

	if v, ok := pick("legal form", "forma ligjore"); ok {
		rec.LegalForm = mapLegalForm(v)
	}
	if v, ok := pick("status", "statusi"); ok {
		rec.Status = mapStatus(v)
	}
	if v, ok := pick("foundation year", "data e themelimit"); ok {
		rec.RegistrationDate = parseDate(v)
	}
	if v, ok := pick("initial capital", "kapitali fillestar"); ok {
		rec.Capital = parseCapital(v)
	}
	if v, ok := pick("district", "rrethi"); ok {
		// First district when several are listed.
		rec.City = strings.TrimSpace(strings.SplitN(v, ",", 2)[0])
	}
	if v, ok := pick("address", "adresa"); ok {
		rec.Address = v
	}
	if v, ok := pick("scope", "objekti"); ok {
		rec.NaceDescription = truncate(v, 500)
	}

	if v, ok := pick("administrators", "administratori"); ok {
		for _, name := range splitNames(v) {
			rec.Administrators = append(rec.Administrators, RepresentativeRecord{
				FullName: name,
				Role:     "Administrator",
			})
		}
	}
	if v, ok := pick("board members", "anëtarë të bordit"); ok {
		for _, name := range splitNames(v) {
			rec.Administrators = append(rec.Administrators, RepresentativeRecord{
				FullName: name,
				Role:     "Board Member",
			})
		}
	}

	ownerStr, _ := pick("parent company / owner", "shoqëria mëmë/ ortaku")
	rec.Shareholders = parseOwnerString(ownerStr)

	// Fallback only when the structured field yielded nothing; the two
	// strategies are never merged.
	if len(rec.Shareholders) == 0 {
		rec.Shareholders = parseShareholderList(doc)
	}
}
