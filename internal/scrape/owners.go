package scrape

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sudeti/qkb/internal/models"
)

// companyMarkers classify a shareholder as a legal entity rather than an
// individual. Matched case-insensitively.
var companyMarkers = []string{
	"SH.A", "SHPK", "SH.P.K", "LLC", "GMBH", "SRL", "LTD", "INC",
	"S.R.L", "S.P.A", "NYRT", "B.V", "A.G", "HOLDING", "BANK",
	"GROUP", "CORP", "SHOQËRI", "KOMPANI",
}

// listMarkers is the subset used by the list-section fallback, which only has
// the bare name to inspect.
var listMarkers = companyMarkers[:17]

var noisePrefixes = []string{"nuk ka", "no data", "sipas"}

var (
	// Roman numeral list markers I.–XII., longest alternatives first so the
	// regexp engine never takes a partial match.
	romanSplitRe = regexp.MustCompile(`(?:^|[\s\n])(?:VIII|VII|VI|IV|IX|III|II|XI|XII|X|V|I)\.\s*\t?\s*`)

	quotedNameRe  = regexp.MustCompile(`^["\x{201c}]([^"\x{201d}]+)["\x{201d}]`)
	leadingNameRe = regexp.MustCompile(`^([^,]+)`)
	parentNIPTRe  = regexp.MustCompile(`NIPT\s+([A-Z]\d{7,9}[A-Z])`)
	hrefNIPTRe    = regexp.MustCompile(`([A-Z]\d{7,9}[A-Z])`)
)

func isNoise(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range noisePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func hasMarker(text string, markers []string) bool {
	upper := strings.ToUpper(text)
	for _, m := range markers {
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}

// parseOwnerString parses the "Parent Company / Owner" table field.
//
// Common shapes:
//  1. Single owner: `"Raiffeisen SEE Region Holding GmbH", shoqëri e themeluar...`
//  2. Multiple owners with Roman numerals: `I.\t"ARMAAR GROUP", ... II.\t"E D R O", ...`
//  3. Plain name list: `Edmond Leka dhe Niko Leka`
func parseOwnerString(ownerStr string) []ShareholderRecord {
	if ownerStr == "" {
		return nil
	}

	entries := romanSplitRe.Split(ownerStr, -1)
	if len(entries) <= 1 {
		entries = []string{ownerStr}
	}

	var shareholders []ShareholderRecord
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if len(entry) < 3 {
			continue
		}

		var name string
		if m := quotedNameRe.FindStringSubmatch(entry); m != nil {
			name = strings.TrimSpace(m[1])
		} else if m := leadingNameRe.FindStringSubmatch(entry); m != nil {
			name = strings.TrimSpace(m[1])
		} else {
			name = truncate(entry, 100)
		}

		if name == "" || isNoise(name) {
			continue
		}

		// Classification looks at the name plus the opening of the entry so
		// descriptive phrases like "shoqëri e themeluar..." count.
		context := name + " " + truncate(entry, 200)

		sh := ShareholderRecord{
			FullName:        truncate(name, 300),
			ShareholderType: models.ShareholderIndividual,
			OwnershipPct:    parsePercentage(entry),
		}
		if hasMarker(context, companyMarkers) {
			sh.ShareholderType = models.ShareholderCompany
		}
		if m := parentNIPTRe.FindStringSubmatch(entry); m != nil {
			sh.ParentNIPT = m[1]
		}

		shareholders = append(shareholders, sh)
	}

	return shareholders
}

// parseShareholderList is the fallback strategy: the <ul class="list-group">
// under the "Shareholders/Ownership" heading, one stake per list item, name
// and percentage separated by the last " - ".
func parseShareholderList(doc *goquery.Document) []ShareholderRecord {
	heading := findShareholderHeading(doc)
	if heading == nil {
		return nil
	}

	container := heading.Closest("div.title-divider")
	if container.Length() == 0 {
		container = heading.Parent()
	}

	list := container.NextAllFiltered("ul.list-group").First()
	if list.Length() == 0 {
		list = container.Parent().Find("ul.list-group").First()
	}
	if list.Length() == 0 {
		return nil
	}

	var shareholders []ShareholderRecord
	list.Find("li.list-group-item").Each(func(_ int, li *goquery.Selection) {
		link := li.Find("a").First()
		text := strings.TrimSpace(li.Text())
		// The linked anchor carries the whole entry, percentage included.
		if linkText := strings.TrimSpace(link.Text()); linkText != "" {
			text = linkText
		}
		if len(text) < 2 {
			return
		}

		name := text
		pctText := ""
		if idx := strings.LastIndex(text, " - "); idx >= 0 {
			name = strings.TrimSpace(text[:idx])
			pctText = text[idx+3:]
		}
		if name == "" || isNoise(name) {
			return
		}

		sh := ShareholderRecord{
			FullName:        truncate(name, 300),
			ShareholderType: models.ShareholderIndividual,
			OwnershipPct:    parsePercentage(pctText),
		}
		if hasMarker(name, listMarkers) {
			sh.ShareholderType = models.ShareholderCompany
		}
		if href, ok := link.Attr("href"); ok {
			if m := hrefNIPTRe.FindStringSubmatch(href); m != nil {
				sh.ParentNIPT = m[1]
			}
		}

		shareholders = append(shareholders, sh)
	})

	return shareholders
}

// findShareholderHeading locates the section heading span whose text contains
// "Shareholders" or the Albanian "Ortakë".
func findShareholderHeading(doc *goquery.Document) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("span").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		text := span.Text()
		if strings.Contains(text, "Shareholders") || strings.Contains(text, "Ortakë") {
			found = span
			return false
		}
		return true
	})
	return found
}
