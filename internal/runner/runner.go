// Package runner wires the pipeline stages into a single run: session
// restore, authentication, traversal, extraction, and reconciliation, with
// the run ledger, diagnostics capture, and metrics around them.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cslcapital/portsync/internal/config"
	"github.com/cslcapital/portsync/internal/metrics"
	"github.com/cslcapital/portsync/pkg/auth"
	"github.com/cslcapital/portsync/pkg/browser"
	"github.com/cslcapital/portsync/pkg/extract"
	"github.com/cslcapital/portsync/pkg/record"
	"github.com/cslcapital/portsync/pkg/scrape"
	"github.com/cslcapital/portsync/pkg/session"
	"github.com/cslcapital/portsync/pkg/store"
	syncpkg "github.com/cslcapital/portsync/pkg/sync"
)

// Outcome classifies a finished run.
type Outcome string

const (
	// OutcomeSuccess means every extracted record reconciled cleanly.
	OutcomeSuccess Outcome = "success"
	// OutcomePartial means the run produced data but lost some of it: a
	// page failed to load, or individual records failed to sync.
	OutcomePartial Outcome = "partial"
	// OutcomeFailure means the run produced nothing usable.
	OutcomeFailure Outcome = "failure"
)

// ExitCode maps an outcome to a process exit code, so schedulers can tell
// a degraded run from a dead one.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeSuccess:
		return 0
	case OutcomePartial:
		return 3
	default:
		return 1
	}
}

// Summary is the result of one run.
type Summary struct {
	RunID    string
	Outcome  Outcome
	Pages    int
	Skipped  int
	Result   record.SyncResult
	Duration time.Duration
	// SessionReused is true when the stored session passed the probe and
	// no login was submitted.
	SessionReused bool
	// Err carries the failure that degraded or killed the run, if any.
	Err error
}

// The stage interfaces carve out exactly what Run consumes, so tests drive
// the orchestration with scripted stages instead of a live browser.

type authenticator interface {
	Authenticate(ctx context.Context, preferred *session.Session, creds auth.Credentials) (*session.Session, error)
}

type traverser interface {
	Traverse(ctx context.Context, sess *session.Session, visit scrape.VisitFunc) error
	LastPage() (html, url string)
	LastScreenshot() []byte
}

type pageExtractor interface {
	Extract(source string, fetchedAt time.Time) ([]record.Record, int)
}

type reconciler interface {
	Sync(ctx context.Context, batch record.Batch) (record.SyncResult, error)
}

type runLedger interface {
	StartRun(ctx context.Context, runID string, startedAt time.Time) error
	FinishRun(ctx context.Context, runID, status string, pages int, result record.SyncResult, errMsg string) error
}

// Runner executes pipeline runs.
type Runner struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics

	browser   *browser.Manager
	sessions  session.Store
	auth      authenticator
	nav       traverser
	extractor pageExtractor
	rec       reconciler
	ledger    runLedger
	snapshots *Snapshotter

	dealStore store.Store
	sqlite    *store.SQLiteStore

	now func() time.Time
}

// New builds a fully wired runner from configuration. The sqlite database
// always opens for the run ledger; it doubles as the deal store when the
// sqlite backend is selected.
func New(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) (*Runner, error) {
	if m == nil {
		m = metrics.New()
	}

	sqlite, err := store.NewSQLiteStore(cfg.Store.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open run ledger: %w", err)
	}

	var deals store.Store
	switch cfg.Store.Backend {
	case config.BackendSupabase:
		deals, err = store.NewSupabaseStore(store.SupabaseConfig{
			URL:        cfg.Store.Supabase.URL,
			ServiceKey: cfg.Store.Supabase.ServiceKey,
			Table:      cfg.Store.Supabase.Table,
			KeyColumn:  cfg.Store.Supabase.KeyColumn,
		})
		if err != nil {
			sqlite.Close()
			return nil, err
		}
	case config.BackendSQLite:
		deals = sqlite
	case config.BackendMemory:
		deals = store.NewMemStore()
	default:
		sqlite.Close()
		return nil, fmt.Errorf("runner: unknown store backend %q", cfg.Store.Backend)
	}

	b := browser.NewManager(browser.Config{
		Headless:    cfg.Browser.Headless,
		NoSandbox:   cfg.Browser.NoSandbox,
		ChromePath:  cfg.Browser.ChromePath,
		UserDataDir: cfg.Browser.UserDataDir,
		PageTimeout: time.Duration(cfg.Browser.PageTimeoutSeconds) * time.Second,
	}, logger)

	classifier := auth.NewClassifier(auth.Markers{
		Login:         cfg.Dashboard.Markers.Login,
		SecondFactor:  cfg.Dashboard.Markers.SecondFactor,
		Authenticated: cfg.Dashboard.Markers.Authenticated,
		LoginFailed:   cfg.Dashboard.Markers.LoginFailed,
	})
	sessions := session.NewFileStore(cfg.Dashboard.SessionFile)

	authn := auth.New(auth.Config{
		BaseURL:          cfg.Dashboard.BaseURL,
		LoginPath:        cfg.Dashboard.LoginPath,
		ProbePath:        cfg.Dashboard.ListPath,
		SecondFactorWait: cfg.Dashboard.SecondFactorWait(),
	}, b, sessions, classifier, logger)

	nav := scrape.New(scrape.Config{
		BaseURL:      cfg.Dashboard.BaseURL,
		ListPath:     cfg.Dashboard.ListPath,
		CardSelector: cfg.Scrape.CardSelector,
		NextText:     cfg.Scrape.NextText,
		SettleWait:   time.Duration(cfg.Scrape.SettleWaitSeconds) * time.Second,
		RetryBackoff: time.Duration(cfg.Scrape.RetryBackoffSeconds) * time.Second,
		MaxPages:     cfg.Scrape.MaxPages,
	}, b, classifier.LoggedIn, logger)

	extractor := extract.New(extract.Config{
		CardSelector:  cfg.Scrape.CardSelector,
		IDSelector:    cfg.Scrape.IDSelector,
		LabelSelector: cfg.Scrape.LabelSelector,
	})

	rec := syncpkg.New(deals, syncpkg.Config{Workers: cfg.Sync.Workers}, logger)

	return &Runner{
		cfg:       cfg,
		logger:    logger.With().Str("component", "runner").Logger(),
		metrics:   m,
		browser:   b,
		sessions:  sessions,
		auth:      authn,
		nav:       nav,
		extractor: extractor,
		rec:       rec,
		ledger:    sqlite,
		snapshots: NewSnapshotter(cfg.Diagnostics.Dir, cfg.Diagnostics.Keep, logger),
		dealStore: deals,
		sqlite:    sqlite,
		now:       time.Now,
	}, nil
}

// Close releases the runner's resources.
func (r *Runner) Close() error {
	if r.browser != nil {
		r.browser.Close()
	}
	if r.sqlite != nil {
		return r.sqlite.Close()
	}
	return nil
}

// Ledger exposes the run history store.
func (r *Runner) Ledger() *store.SQLiteStore {
	return r.sqlite
}

// Run executes one full pipeline pass.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	runID := uuid.NewString()
	started := r.now()
	logger := r.logger.With().Str("run_id", runID).Logger()

	summary := &Summary{RunID: runID}

	if r.ledger != nil {
		if err := r.ledger.StartRun(ctx, runID, started); err != nil {
			logger.Warn().Err(err).Msg("record run start failed")
		}
	}

	if r.browser != nil {
		if err := r.browser.Start(ctx); err != nil {
			return r.finish(ctx, logger, summary, started, fmt.Errorf("start browser: %w", err))
		}
		defer r.browser.Close()
	}

	preferred := r.loadSession(logger)
	creds := auth.Credentials{
		Username: r.cfg.Dashboard.Username,
		Password: r.cfg.Dashboard.Password,
	}

	sess, err := r.auth.Authenticate(ctx, preferred, creds)
	if err != nil {
		r.metrics.LoginAttemptsTotal.WithLabelValues("failure").Inc()
		return r.finish(ctx, logger, summary, started, fmt.Errorf("authenticate: %w", err))
	}
	summary.SessionReused = preferred != nil && sess == preferred
	if summary.SessionReused {
		r.metrics.SessionReusedTotal.Inc()
	} else {
		r.metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	}

	batch, travErr := r.traverse(ctx, logger, sess, summary)

	if errors.Is(travErr, scrape.ErrSessionExpired) {
		// One recovery cycle per run: force a fresh interactive login and
		// restart the traversal from page one. Reconciliation is
		// idempotent, so revisited pages cost nothing.
		logger.Warn().Msg("session expired mid-run, re-authenticating")
		sess, err = r.auth.Authenticate(ctx, nil, creds)
		if err != nil {
			r.metrics.LoginAttemptsTotal.WithLabelValues("failure").Inc()
			return r.finish(ctx, logger, summary, started, fmt.Errorf("re-authenticate: %w", err))
		}
		r.metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()

		summary.Pages = 0
		summary.Skipped = 0
		batch, travErr = r.traverse(ctx, logger, sess, summary)
		if errors.Is(travErr, scrape.ErrSessionExpired) {
			r.snapshot(logger, runID)
			return r.finish(ctx, logger, summary, started, travErr)
		}
	}

	switch {
	case travErr == nil:
	case errors.Is(travErr, scrape.ErrPageLoad):
		// Later pages are gone for this run; everything already extracted
		// still syncs.
		r.snapshot(logger, runID)
		logger.Warn().Err(travErr).Int("pages", summary.Pages).
			Msg("traversal cut short, syncing what was extracted")
		summary.Err = travErr
	default:
		r.snapshot(logger, runID)
		return r.finish(ctx, logger, summary, started, travErr)
	}

	result, err := r.rec.Sync(ctx, batch)
	summary.Result = result
	if err != nil {
		return r.finish(ctx, logger, summary, started, fmt.Errorf("sync: %w", err))
	}

	return r.finish(ctx, logger, summary, started, summary.Err)
}

// traverse walks the listing and extracts every visited page into a batch.
func (r *Runner) traverse(ctx context.Context, logger zerolog.Logger, sess *session.Session, summary *Summary) (record.Batch, error) {
	var batch record.Batch
	err := r.nav.Traverse(ctx, sess, func(p scrape.RawPage) error {
		recs, skipped := r.extractor.Extract(p.HTML, p.FetchedAt)
		batch.Append(recs...)
		summary.Pages++
		summary.Skipped += skipped

		r.metrics.PagesScrapedTotal.Inc()
		r.metrics.RecordsExtractedTotal.Add(float64(len(recs)))
		r.metrics.RecordsSkippedTotal.Add(float64(skipped))

		logger.Debug().Int("page", p.Number).Int("records", len(recs)).
			Int("skipped", skipped).Msg("page extracted")
		return nil
	})
	return batch, err
}

// loadSession returns the preferred session: the environment bundle when
// set, otherwise the stored file. A missing or unreadable session is not an
// error; it just forces the interactive path.
func (r *Runner) loadSession(logger zerolog.Logger) *session.Session {
	if bundle := r.cfg.Dashboard.SessionBundle; bundle != "" {
		sess, err := session.Decode(bundle)
		if err != nil {
			logger.Warn().Err(err).Msg("environment session bundle unreadable")
		} else {
			return sess
		}
	}
	if r.sessions == nil {
		return nil
	}
	sess, err := r.sessions.Load()
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			logger.Warn().Err(err).Msg("stored session unreadable")
		}
		return nil
	}
	return sess
}

// snapshot captures the last page the navigator saw.
func (r *Runner) snapshot(logger zerolog.Logger, runID string) {
	if r.snapshots == nil {
		return
	}
	html, url := r.nav.LastPage()
	if err := r.snapshots.Capture(runID, url, html, r.nav.LastScreenshot()); err != nil {
		logger.Warn().Err(err).Msg("diagnostics capture failed")
	}
}

// finish classifies the run, records it, and emits the summary log line.
func (r *Runner) finish(ctx context.Context, logger zerolog.Logger, summary *Summary, started time.Time, err error) (*Summary, error) {
	summary.Duration = r.now().Sub(started)
	if err != nil {
		summary.Err = err
	}
	summary.Result.Skipped = summary.Skipped
	summary.Outcome = classify(summary)

	r.metrics.RunsTotal.WithLabelValues(string(summary.Outcome)).Inc()
	r.metrics.RunDuration.Observe(summary.Duration.Seconds())
	res := summary.Result
	r.metrics.SyncRecordsTotal.WithLabelValues("created").Add(float64(res.Created))
	r.metrics.SyncRecordsTotal.WithLabelValues("updated").Add(float64(res.Updated))
	r.metrics.SyncRecordsTotal.WithLabelValues("unchanged").Add(float64(res.Unchanged))
	r.metrics.SyncRecordsTotal.WithLabelValues("failed").Add(float64(res.Failed))

	if r.ledger != nil {
		errMsg := ""
		if summary.Err != nil {
			errMsg = summary.Err.Error()
		}
		if ferr := r.ledger.FinishRun(ctx, summary.RunID, string(summary.Outcome), summary.Pages, summary.Result, errMsg); ferr != nil {
			logger.Warn().Err(ferr).Msg("record run finish failed")
		}
	}

	evt := logger.Info()
	if summary.Outcome == OutcomeFailure {
		evt = logger.Error()
	}
	evt.Str("outcome", string(summary.Outcome)).
		Int("pages", summary.Pages).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("unchanged", res.Unchanged).
		Int("failed", res.Failed).
		Int("skipped", summary.Skipped).
		Bool("session_reused", summary.SessionReused).
		Dur("duration", summary.Duration).
		Err(summary.Err).
		Msg("run finished")

	if summary.Outcome == OutcomeFailure {
		return summary, summary.Err
	}
	return summary, nil
}

// classify decides the outcome. A run that synced nothing and carries an
// error is dead; a run that synced data despite an error or per-record
// failures is degraded; everything else is clean.
func classify(s *Summary) Outcome {
	switch {
	case s.Err != nil && s.Result.Total() == 0:
		return OutcomeFailure
	case s.Err != nil, s.Result.Failed > 0:
		return OutcomePartial
	default:
		return OutcomeSuccess
	}
}
