package scrape

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// listingResponse is the JSON shape of the /sq/{category}/any endpoints.
type listingResponse struct {
	Data         []listingRecord `json:"data"`
	RecordsTotal int             `json:"recordsTotal"`
}

type listingRecord struct {
	NIPT string `json:"NIPT"`
}

var stripMarkup = bluemonday.StrictPolicy()

// cleanNIPT extracts the plain identifier from a possibly HTML-wrapped cell
// value, e.g. `<a href="/en/nipt/L91713032R">L91713032R</a>`.
func cleanNIPT(raw string) string {
	text := raw
	if strings.Contains(raw, "<") {
		text = stripMarkup.Sanitize(raw)
	}
	return strings.TrimSpace(html.UnescapeString(text))
}

// CollectNIPTs hits the listing APIs for the given categories (all known
// categories when nil) and returns a deduplicated NIPT set plus one error
// string per endpoint that failed. A failed endpoint never aborts collection.
func CollectNIPTs(ctx context.Context, client *Client, reg *Registry, categories []string) (map[string]struct{}, []string) {
	if len(categories) == 0 {
		categories = reg.Categories()
	}

	all := make(map[string]struct{})
	var errs []string

	for i, category := range categories {
		endpoint, ok := reg.Endpoint(category)
		if !ok {
			log.Printf("[Collector] Unknown category: %s", category)
			errs = append(errs, fmt.Sprintf("unknown category: %s", category))
			continue
		}

		if i > 0 {
			if err := sleep(ctx, client.delay); err != nil {
				errs = append(errs, fmt.Sprintf("collection aborted: %v", err))
				break
			}
		}

		log.Printf("[Collector] Fetching %s listing from %s", category, endpoint.Path)

		var resp listingResponse
		if err := client.GetJSON(ctx, endpoint.Path, &resp); err != nil {
			log.Printf("[Collector] Failed to fetch %s: %v", category, err)
			errs = append(errs, fmt.Sprintf("listing %s failed: %v", category, err))
			continue
		}

		log.Printf("[Collector] %s: %d records fetched (total: %d)", category, len(resp.Data), resp.RecordsTotal)

		for _, rec := range resp.Data {
			if nipt := cleanNIPT(rec.NIPT); nipt != "" {
				all[nipt] = struct{}{}
			}
		}
	}

	log.Printf("[Collector] Collected %d unique NIPTs", len(all))
	return all, errs
}
