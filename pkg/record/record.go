// Package record defines the portfolio data model shared by the extractor
// and the sync engine: scraped deal records, ordered batches, and sync
// outcome accounting.
package record

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one scraped portfolio deal. ID is the identifier assigned by
// the source dashboard (e.g. "MCA # 12345") and is the sole reconciliation
// key across runs. Fields maps normalized field names to their raw string
// values; absent fields are simply missing keys.
type Record struct {
	ID       string            `json:"deal_id"`
	Fields   map[string]string `json:"fields"`
	LastSeen time.Time         `json:"last_seen"`
}

// Field returns the named field value and whether it was present.
func (r Record) Field(name string) (string, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// Decimal parses the named field as an exact decimal amount. Returns
// decimal.Zero and false when the field is absent or unparseable.
func (r Record) Decimal(name string) (decimal.Decimal, bool) {
	v, ok := r.Fields[name]
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Equal reports whether two records carry the same identifier and
// field-for-field identical values. LastSeen is bookkeeping, not content,
// and is excluded from the comparison.
func (r Record) Equal(other Record) bool {
	if r.ID != other.ID || len(r.Fields) != len(other.Fields) {
		return false
	}
	for k, v := range r.Fields {
		ov, ok := other.Fields[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	fields := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Record{ID: r.ID, Fields: fields, LastSeen: r.LastSeen}
}

// FieldNames returns the record's field names in sorted order. Used by
// deterministic serialization and by tests.
func (r Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Batch is the ordered set of records extracted in one run, in source
// pagination order.
type Batch struct {
	Records []Record
}

// Append adds records to the end of the batch.
func (b *Batch) Append(recs ...Record) {
	b.Records = append(b.Records, recs...)
}

// Len returns the number of records currently in the batch.
func (b *Batch) Len() int {
	return len(b.Records)
}

// Dedupe collapses duplicate identifiers, keeping the last occurrence in
// batch order and preserving the relative order of first appearance. The
// source occasionally repeats a card across page boundaries; last write
// wins.
func (b *Batch) Dedupe() {
	if len(b.Records) == 0 {
		return
	}
	last := make(map[string]Record, len(b.Records))
	order := make([]string, 0, len(b.Records))
	for _, rec := range b.Records {
		if _, seen := last[rec.ID]; !seen {
			order = append(order, rec.ID)
		}
		last[rec.ID] = rec
	}
	deduped := make([]Record, 0, len(order))
	for _, id := range order {
		deduped = append(deduped, last[id])
	}
	b.Records = deduped
}

// SyncResult accounts for the outcome of one sync pass over a batch.
type SyncResult struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Total returns the number of records the sync pass attempted.
func (s SyncResult) Total() int {
	return s.Created + s.Updated + s.Unchanged + s.Failed
}

// Partial reports whether some, but not all, records failed to write.
func (s SyncResult) Partial() bool {
	return s.Failed > 0 && s.Failed < s.Total()
}

// Merge adds the counts from another result into this one.
func (s *SyncResult) Merge(other SyncResult) {
	s.Created += other.Created
	s.Updated += other.Updated
	s.Unchanged += other.Unchanged
	s.Failed += other.Failed
	s.Skipped += other.Skipped
}
