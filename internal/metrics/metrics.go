// Package metrics holds the Prometheus instrumentation for the pipeline.
// One-shot runs push nothing, since the structured run summary is the
// record; daemon mode serves these on /metrics for scrape-side alerting.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	registry *prometheus.Registry

	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram

	// Auth metrics
	LoginAttemptsTotal *prometheus.CounterVec
	SessionReusedTotal prometheus.Counter

	// Scrape metrics
	PagesScrapedTotal     prometheus.Counter
	RecordsExtractedTotal prometheus.Counter
	RecordsSkippedTotal   prometheus.Counter

	// Sync metrics
	SyncRecordsTotal *prometheus.CounterVec
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portsync_runs_total",
				Help: "Total pipeline runs by final status",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "portsync_run_duration_seconds",
				Help:    "Duration of full pipeline runs in seconds",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
			},
		),

		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portsync_login_attempts_total",
				Help: "Interactive login attempts by result",
			},
			[]string{"result"},
		),
		SessionReusedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portsync_session_reused_total",
				Help: "Runs that reused a stored session without logging in",
			},
		),

		PagesScrapedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portsync_pages_scraped_total",
				Help: "Listing pages captured across all runs",
			},
		),
		RecordsExtractedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portsync_records_extracted_total",
				Help: "Records successfully extracted from captured pages",
			},
		),
		RecordsSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portsync_records_skipped_total",
				Help: "Cards dropped because no identifier could be recovered",
			},
		),

		SyncRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portsync_sync_records_total",
				Help: "Reconciled records by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.LoginAttemptsTotal,
		m.SessionReusedTotal,
		m.PagesScrapedTotal,
		m.RecordsExtractedTotal,
		m.RecordsSkippedTotal,
		m.SyncRecordsTotal,
	)

	return m
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the underlying registry, used by tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
