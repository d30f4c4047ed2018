package record

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordEqual(t *testing.T) {
	a := Record{ID: "MCA # 1", Fields: map[string]string{"dba": "Acme", "status": "active"}}
	b := Record{ID: "MCA # 1", Fields: map[string]string{"dba": "Acme", "status": "active"}}

	assert.True(t, a.Equal(b))

	b.Fields["status"] = "closed"
	assert.False(t, a.Equal(b))

	c := Record{ID: "MCA # 2", Fields: map[string]string{"dba": "Acme", "status": "active"}}
	assert.False(t, a.Equal(c))

	d := Record{ID: "MCA # 1", Fields: map[string]string{"dba": "Acme"}}
	assert.False(t, a.Equal(d))
}

func TestRecordEqualIgnoresLastSeen(t *testing.T) {
	a := Record{ID: "MCA # 1", Fields: map[string]string{"dba": "Acme"}, LastSeen: time.Now()}
	b := Record{ID: "MCA # 1", Fields: map[string]string{"dba": "Acme"}, LastSeen: time.Now().Add(-24 * time.Hour)}

	assert.True(t, a.Equal(b))
}

func TestRecordDecimal(t *testing.T) {
	r := Record{ID: "MCA # 1", Fields: map[string]string{
		"purchase_price":  "400000.00",
		"current_balance": "not-a-number",
	}}

	d, ok := r.Decimal("purchase_price")
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.RequireFromString("400000.00")))

	_, ok = r.Decimal("current_balance")
	assert.False(t, ok)

	_, ok = r.Decimal("missing")
	assert.False(t, ok)
}

func TestRecordClone(t *testing.T) {
	a := Record{ID: "MCA # 1", Fields: map[string]string{"dba": "Acme"}}
	b := a.Clone()
	b.Fields["dba"] = "Other"

	assert.Equal(t, "Acme", a.Fields["dba"])
}

func TestBatchDedupeLastWins(t *testing.T) {
	b := Batch{}
	b.Append(
		Record{ID: "A1", Fields: map[string]string{"status": "active"}},
		Record{ID: "A2", Fields: map[string]string{"status": "active"}},
		Record{ID: "A1", Fields: map[string]string{"status": "closed"}},
	)

	b.Dedupe()

	require.Equal(t, 2, b.Len())
	assert.Equal(t, "A1", b.Records[0].ID)
	assert.Equal(t, "closed", b.Records[0].Fields["status"])
	assert.Equal(t, "A2", b.Records[1].ID)
}

func TestBatchDedupeEmpty(t *testing.T) {
	b := Batch{}
	b.Dedupe()
	assert.Equal(t, 0, b.Len())
}

func TestSyncResult(t *testing.T) {
	s := SyncResult{Created: 2, Updated: 1, Unchanged: 3, Failed: 1}

	assert.Equal(t, 7, s.Total())
	assert.True(t, s.Partial())

	allFailed := SyncResult{Failed: 4}
	assert.False(t, allFailed.Partial())

	none := SyncResult{Unchanged: 4}
	assert.False(t, none.Partial())

	s.Merge(SyncResult{Created: 1, Skipped: 2})
	assert.Equal(t, 3, s.Created)
	assert.Equal(t, 2, s.Skipped)
}
