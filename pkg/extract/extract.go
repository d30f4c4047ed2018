// Package extract turns captured dashboard HTML into typed portfolio
// records. Extraction is offline and deterministic: the same markup always
// produces the same record set, so pages snapshotted for post-mortems can
// be re-extracted exactly.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/cslcapital/portsync/pkg/record"
)

// dealIDRe splits an identifier like "MCA # 12345" into type and number.
var dealIDRe = regexp.MustCompile(`^(MCA|LOAN|MORTGAGE)\s*#\s*(\d+)`)

// Config holds the selectors the extractor walks. Defaults match the
// current dashboard markup; they live in config so layout drift is an ops
// change.
type Config struct {
	// CardSelector matches one record's container. Default "div.app-card".
	CardSelector string
	// IDSelector matches the identifier link inside a card. Default
	// "span.customer a".
	IDSelector string
	// LabelSelector matches the bold field labels inside a card. Default "b".
	LabelSelector string
}

func (c *Config) defaults() {
	if c.CardSelector == "" {
		c.CardSelector = "div.app-card"
	}
	if c.IDSelector == "" {
		c.IDSelector = "span.customer a"
	}
	if c.LabelSelector == "" {
		c.LabelSelector = "b"
	}
}

// Extractor parses listing pages into records.
type Extractor struct {
	cfg Config
}

// New creates an extractor.
func New(cfg Config) *Extractor {
	cfg.defaults()
	return &Extractor{cfg: cfg}
}

// Extract parses one captured page. Records whose identifier cannot be
// recovered are dropped and counted in skipped; any other missing field is
// simply absent from the record. fetchedAt stamps LastSeen so output stays
// a pure function of the inputs.
func (e *Extractor) Extract(source string, fetchedAt time.Time) ([]record.Record, int) {
	doc, err := Parse(source)
	if err != nil {
		// x/net/html only fails on reader errors; a string reader cannot.
		return nil, 0
	}

	var records []record.Record
	skipped := 0
	for _, card := range QueryAll(doc, e.cfg.CardSelector) {
		rec, ok := e.extractCard(card, fetchedAt)
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}

// extractCard pulls one record out of a card node.
func (e *Extractor) extractCard(card *html.Node, fetchedAt time.Time) (record.Record, bool) {
	idLink := Query(card, e.cfg.IDSelector)
	if idLink == nil {
		return record.Record{}, false
	}
	id := Text(idLink)
	if id == "" {
		return record.Record{}, false
	}

	fields := make(map[string]string)
	if href := Attr(idLink, "href"); href != "" {
		fields["detail_url"] = href
	}
	if m := dealIDRe.FindStringSubmatch(id); m != nil {
		fields["deal_type"] = m[1]
		fields["deal_number"] = m[2]
	}

	for _, label := range QueryAll(card, e.cfg.LabelSelector) {
		name := NormalizeFieldName(strings.TrimSuffix(Text(label), ":"))
		value := labelValue(label)
		if name != "" && value != "" {
			fields[name] = value
		}
	}

	standardize(fields)

	return record.Record{ID: id, Fields: fields, LastSeen: fetchedAt}, true
}

// labelValue finds the text that follows a bold label: the label's
// trailing sibling text when present, otherwise the parent's text with the
// label removed. Mirrors how the dashboard renders "<b>Status:</b> Active".
func labelValue(label *html.Node) string {
	if sib := label.NextSibling; sib != nil && sib.Type == html.TextNode {
		if v := strings.Join(strings.Fields(sib.Data), " "); v != "" {
			return v
		}
	}
	if parent := label.Parent; parent != nil {
		parentText := Text(parent)
		labelText := Text(label)
		return strings.TrimSpace(strings.Replace(parentText, labelText, "", 1))
	}
	return ""
}

// amountAliases maps canonical money fields to the source labels that feed
// them, in priority order. The dashboard renders different labels per
// funding type for the same economic quantity.
var amountAliases = map[string][]string{
	"purchase_price":     {"purchase_price", "principal_amount"},
	"receivables_amount": {"receivables_purchased_amount", "repayment_amount"},
	"current_balance":    {"rtr_balance", "current_balance"},
	"past_due_amount":    {"payment_amount_past_due"},
}

var dateFields = []string{"funding_date", "next_payment_due_date"}

// standardize rewrites raw label/value pairs into the canonical field set:
// exact decimals for money, ISO dates, split performance metrics.
// Unparseable values are dropped rather than propagated; for
// reconciliation, absent beats wrong.
func standardize(fields map[string]string) {
	for canonical, aliases := range amountAliases {
		for _, alias := range aliases {
			raw, ok := fields[alias]
			if !ok {
				continue
			}
			d, parsed := ParseAmount(raw)
			for _, a := range aliases {
				delete(fields, a)
			}
			if parsed {
				fields[canonical] = d.String()
			}
			break
		}
	}

	for _, name := range dateFields {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		if iso, ok := ParseDate(raw); ok {
			fields[name] = iso
		} else {
			delete(fields, name)
		}
	}

	if raw, ok := fields["years_in_business"]; ok {
		if n, ok := ParseInt(raw); ok {
			fields["years_in_business"] = strconv.Itoa(n)
		} else {
			delete(fields, "years_in_business")
		}
	}

	if perf, ok := fields["performance"]; ok {
		if made, expected, ok := ParsePerformance(perf); ok {
			fields["payments_made"] = made
			fields["total_payments_expected"] = expected
		}
	}
}
