package scrape

import (
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// rawPageCap bounds the stored source snapshot per company.
const rawPageCap = 50000

var rawPagePolicy = bluemonday.UGCPolicy()

// SanitizeRawPage prepares a fetched page for storage: scripts and unsafe
// markup stripped, invalid UTF-8 removed, length capped.
func SanitizeRawPage(html string) string {
	if html == "" {
		return ""
	}
	clean := rawPagePolicy.Sanitize(html)
	if !utf8.ValidString(clean) {
		clean = strings.ToValidUTF8(clean, "")
	}
	return truncate(clean, rawPageCap)
}
