package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllMetrics(t *testing.T) {
	m := New()

	m.RunsTotal.WithLabelValues("success").Inc()
	m.RunDuration.Observe(42)
	m.LoginAttemptsTotal.WithLabelValues("success").Inc()
	m.SessionReusedTotal.Inc()
	m.PagesScrapedTotal.Add(4)
	m.RecordsExtractedTotal.Add(53)
	m.RecordsSkippedTotal.Inc()
	m.SyncRecordsTotal.WithLabelValues("created").Add(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.PagesScrapedTotal))
	assert.Equal(t, float64(53), testutil.ToFloat64(m.RecordsExtractedTotal))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.SyncRecordsTotal.WithLabelValues("created")))
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New()
	m.RunsTotal.WithLabelValues("partial").Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "portsync_runs_total")
}

func TestSeparateRegistries(t *testing.T) {
	a := New()
	b := New()

	a.PagesScrapedTotal.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(a.PagesScrapedTotal))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.PagesScrapedTotal))
}
