package scrape

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/Sudeti/qkb/internal/models"
)

// Canonical phrase tables for the registry's free-text fields. Exact match is
// tried first, then substring match, in declaration order.
var legalFormTable = []struct {
	phrase string
	code   string
}{
	{"shoqëri me përgjegjësi të kufizuar", models.LegalFormShpk},
	{"shoqëri aksionare", models.LegalFormSha},
	{"shoqëri aksionare sh.a", models.LegalFormSha},
	{"person fizik", models.LegalFormPf},
	{"degë e shoqërisë së huaj", models.LegalFormDeg},
}

var statusTable = []struct {
	phrase string
	code   string
}{
	{"aktiv", models.StatusActive},
	{"pezulluar", models.StatusSuspended},
	{"çregjistruar", models.StatusDissolved},
	{"falimentuar", models.StatusBankruptcy},
	{"në likuidim", models.StatusInLiquidation},
}

func mapLegalForm(value string) string {
	cleaned := strings.ToLower(strings.TrimSpace(value))
	for _, e := range legalFormTable {
		if cleaned == e.phrase {
			return e.code
		}
	}
	for _, e := range legalFormTable {
		if strings.Contains(cleaned, e.phrase) {
			return e.code
		}
	}
	return models.LegalFormOther
}

func mapStatus(value string) string {
	cleaned := strings.ToLower(strings.TrimSpace(value))
	for _, e := range statusTable {
		if cleaned == e.phrase {
			return e.code
		}
	}
	for _, e := range statusTable {
		if strings.Contains(cleaned, e.phrase) {
			return e.code
		}
	}
	return models.StatusActive
}

var (
	dmyDateRe = regexp.MustCompile(`(\d{1,2})[./](\d{1,2})[./](\d{4})`)
	isoDateRe = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	numberRe  = regexp.MustCompile(`\d+`)
)

// monthNames maps English and Albanian month names to month numbers, in the
// order they are tried against the input.
var monthNames = []struct {
	name  string
	month time.Month
}{
	{"january", time.January}, {"february", time.February}, {"march", time.March},
	{"april", time.April}, {"may", time.May}, {"june", time.June},
	{"july", time.July}, {"august", time.August}, {"september", time.September},
	{"october", time.October}, {"november", time.November}, {"december", time.December},
	{"janar", time.January}, {"shkurt", time.February}, {"mars", time.March},
	{"prill", time.April}, {"maj", time.May}, {"qershor", time.June},
	{"korrik", time.July}, {"gusht", time.August}, {"shtator", time.September},
	{"tetor", time.October}, {"nëntor", time.November}, {"dhjetor", time.December},
}

// parseDate tries DD/MM/YYYY and DD.MM.YYYY, then YYYY-MM-DD, then a
// bilingual month-name form. Returns nil when nothing matches; never errors.
func parseDate(value string) *time.Time {
	if m := dmyDateRe.FindStringSubmatch(value); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if t, ok := makeDate(year, month, day); ok {
			return &t
		}
	}

	if m := isoDateRe.FindStringSubmatch(value); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if t, ok := makeDate(year, month, day); ok {
			return &t
		}
	}

	// "Month DD, YYYY" or "DD Month YYYY", English or Albanian.
	lower := strings.ToLower(value)
	for _, mn := range monthNames {
		if !strings.Contains(lower, mn.name) {
			continue
		}
		nums := numberRe.FindAllString(value, -1)
		if len(nums) < 2 {
			continue
		}
		day, _ := strconv.Atoi(nums[0])
		if day > 31 {
			day, _ = strconv.Atoi(nums[1])
		}
		year, _ := strconv.Atoi(nums[len(nums)-1])
		if t, ok := makeDate(year, int(mn.month), day); ok {
			return &t
		}
	}

	return nil
}

// makeDate validates the components by round-tripping through time.Date,
// which silently normalizes out-of-range values.
func makeDate(year, month, day int) (time.Time, bool) {
	if year < 1 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

var nonCapitalRe = regexp.MustCompile(`[^\d,]`)

// parseCapital extracts a numeric capital value from the Albanian format
// "14 178 593 030,00": spaces as thousands separators, comma as the decimal
// separator. Returns nil on parse failure.
func parseCapital(value string) *decimal.Decimal {
	cleaned := nonCapitalRe.ReplaceAllString(value, "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if cleaned == "" {
		return nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	return &d
}

var percentageRe = regexp.MustCompile(`([\d.]+)\s*%`)

// parsePercentage extracts a percentage from text like "51%" or "51.5 %".
// Returns nil when no % figure is present.
func parsePercentage(value string) *decimal.Decimal {
	m := percentageRe.FindStringSubmatch(value)
	if m == nil {
		return nil
	}
	d, err := decimal.NewFromString(m[1])
	if err != nil {
		return nil
	}
	return &d
}

// splitNames splits a multi-name string on semicolons, falling back to commas
// only when no semicolon is present.
func splitNames(s string) []string {
	var parts []string
	if strings.Contains(s, ";") {
		parts = strings.Split(s, ";")
	} else {
		parts = strings.Split(s, ",")
	}

	var names []string
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if len(name) > 1 {
			names = append(names, name)
		}
	}
	return names
}

// truncate caps s at n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
