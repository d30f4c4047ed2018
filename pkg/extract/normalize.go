package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	fieldNameRe   = regexp.MustCompile(`[^a-zA-Z0-9]+`)
	amountJunkRe  = regexp.MustCompile(`[^0-9.]`)
	intJunkRe     = regexp.MustCompile(`[^0-9]`)
	performanceRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*\(.*?\)\s*of\s*(\d+)`)
)

// dateLayouts covers the formats the dashboard has been seen rendering.
var dateLayouts = []string{
	"01/02/2006",
	"1/2/2006",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"02-Jan-2006",
}

// NormalizeFieldName lowercases a display label and collapses every
// non-alphanumeric run to a single underscore: "Funding Date" →
// "funding_date", "Receivables Purchased Amount" →
// "receivables_purchased_amount".
func NormalizeFieldName(label string) string {
	name := fieldNameRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(label)), "_")
	return strings.Trim(name, "_")
}

// ParseAmount parses dashboard money strings like "$400,000.00",
// "400,000.00", and "400000 (1.30)" into an exact decimal. Returns false
// when nothing numeric is present.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	// A trailing parenthetical like "(1.30)" is a factor, not an amount.
	if i := strings.IndexByte(raw, '('); i >= 0 {
		raw = raw[:i]
	}
	cleaned := amountJunkRe.ReplaceAllString(raw, "")
	cleaned = strings.Trim(cleaned, ".")
	if cleaned == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseInt strips non-digits and parses what remains.
func ParseInt(raw string) (int, bool) {
	cleaned := intJunkRe.ReplaceAllString(raw, "")
	if cleaned == "" {
		return 0, false
	}
	n := 0
	for _, c := range cleaned {
		n = n*10 + int(c-'0')
		if n < 0 {
			return 0, false
		}
	}
	return n, true
}

// ParseDate normalizes a dashboard date string to ISO (2006-01-02).
// Returns false for empty or unrecognizable input.
func ParseDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// ParsePerformance splits the dashboard's "12.5 (31%) of 40" performance
// text into payments made and payments expected.
func ParsePerformance(raw string) (made string, expected string, ok bool) {
	m := performanceRe.FindStringSubmatch(raw)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
