package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cslcapital/portsync/internal/config"
	"github.com/cslcapital/portsync/internal/metrics"
	"github.com/cslcapital/portsync/pkg/auth"
	"github.com/cslcapital/portsync/pkg/record"
	"github.com/cslcapital/portsync/pkg/scrape"
	"github.com/cslcapital/portsync/pkg/session"
	"github.com/cslcapital/portsync/pkg/store"
	syncpkg "github.com/cslcapital/portsync/pkg/sync"
)

type fakeAuth struct {
	calls      int
	preferreds []*session.Session
	fn         func(call int, preferred *session.Session) (*session.Session, error)
}

func (f *fakeAuth) Authenticate(_ context.Context, preferred *session.Session, _ auth.Credentials) (*session.Session, error) {
	call := f.calls
	f.calls++
	f.preferreds = append(f.preferreds, preferred)
	return f.fn(call, preferred)
}

type navScript struct {
	pages []scrape.RawPage
	err   error
}

type fakeNav struct {
	scripts  []navScript
	call     int
	lastHTML string
	lastURL  string
	shot     []byte
}

func (f *fakeNav) Traverse(_ context.Context, _ *session.Session, visit scrape.VisitFunc) error {
	idx := f.call
	if idx >= len(f.scripts) {
		idx = len(f.scripts) - 1
	}
	f.call++
	s := f.scripts[idx]
	for _, p := range s.pages {
		if err := visit(p); err != nil {
			return err
		}
	}
	return s.err
}

func (f *fakeNav) LastPage() (string, string) { return f.lastHTML, f.lastURL }
func (f *fakeNav) LastScreenshot() []byte     { return f.shot }

// fakeExtractor turns a comma-separated page body into one record per token.
type fakeExtractor struct {
	skipPerPage int
}

func (f fakeExtractor) Extract(source string, fetchedAt time.Time) ([]record.Record, int) {
	if source == "" {
		return nil, 0
	}
	var recs []record.Record
	for _, id := range strings.Split(source, ",") {
		recs = append(recs, record.Record{
			ID:       id,
			Fields:   map[string]string{"deal_id": id, "status": "Active"},
			LastSeen: fetchedAt,
		})
	}
	return recs, f.skipPerPage
}

func page(n int, body string) scrape.RawPage {
	return scrape.RawPage{Number: n, URL: fmt.Sprintf("https://x/list?page=%d", n), HTML: body, FetchedAt: time.Now()}
}

func newTestRunner(t *testing.T, a authenticator, nav traverser) (*Runner, *store.MemStore) {
	t.Helper()
	mem := store.NewMemStore()
	cfg := config.DefaultConfig()
	cfg.Store.Backend = config.BackendMemory
	return &Runner{
		cfg:       cfg,
		logger:    zerolog.Nop(),
		metrics:   metrics.New(),
		auth:      a,
		nav:       nav,
		extractor: fakeExtractor{},
		rec:       syncpkg.New(mem, syncpkg.Config{}, zerolog.Nop()),
		snapshots: NewSnapshotter(t.TempDir(), 5, zerolog.Nop()),
		dealStore: mem,
		now:       time.Now,
	}, mem
}

func loginAuth() *fakeAuth {
	return &fakeAuth{fn: func(int, *session.Session) (*session.Session, error) {
		return &session.Session{Token: "fresh"}, nil
	}}
}

func TestRunSuccess(t *testing.T) {
	nav := &fakeNav{scripts: []navScript{
		{pages: []scrape.RawPage{page(1, "MCA-1,MCA-2"), page(2, "MCA-3")}},
	}}
	r, mem := newTestRunner(t, loginAuth(), nav)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, summary.Outcome)
	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 3, summary.Result.Created)
	assert.Equal(t, 0, summary.Result.Failed)
	assert.Equal(t, 3, mem.Len())
	assert.False(t, summary.SessionReused)
	assert.NotEmpty(t, summary.RunID)
}

func TestRunReusesSessionBundle(t *testing.T) {
	var reused *session.Session
	a := &fakeAuth{fn: func(_ int, preferred *session.Session) (*session.Session, error) {
		reused = preferred
		return preferred, nil
	}}
	nav := &fakeNav{scripts: []navScript{{pages: []scrape.RawPage{page(1, "MCA-1")}}}}
	r, _ := newTestRunner(t, a, nav)

	bundle, err := session.Encode(&session.Session{
		Cookies:  []session.Cookie{{Name: "JSESSIONID", Value: "abc"}},
		IssuedAt: time.Now(),
	})
	require.NoError(t, err)
	r.cfg.Dashboard.SessionBundle = bundle

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, reused)
	assert.True(t, summary.SessionReused)
	assert.Equal(t, OutcomeSuccess, summary.Outcome)
}

func TestRunPartialOnPageLoadFailure(t *testing.T) {
	nav := &fakeNav{
		scripts:  []navScript{{pages: []scrape.RawPage{page(1, "MCA-1,MCA-2")}, err: fmt.Errorf("page 2: %w", scrape.ErrPageLoad)}},
		lastHTML: "<html>timeout</html>",
	}
	r, mem := newTestRunner(t, loginAuth(), nav)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomePartial, summary.Outcome)
	assert.Equal(t, 2, summary.Result.Created)
	assert.Equal(t, 2, mem.Len())
	assert.ErrorIs(t, summary.Err, scrape.ErrPageLoad)
	assert.Equal(t, 3, summary.Outcome.ExitCode())
}

func TestRunReauthenticatesOnceOnExpiry(t *testing.T) {
	a := loginAuth()
	nav := &fakeNav{scripts: []navScript{
		{pages: []scrape.RawPage{page(1, "MCA-1")}, err: fmt.Errorf("page 2: %w", scrape.ErrSessionExpired)},
		{pages: []scrape.RawPage{page(1, "MCA-1"), page(2, "MCA-2")}},
	}}
	r, mem := newTestRunner(t, a, nav)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, a.calls)
	// The recovery login must not trust the session that just expired.
	assert.Nil(t, a.preferreds[1])
	assert.Equal(t, OutcomeSuccess, summary.Outcome)
	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 2, mem.Len())
}

func TestRunFailsAfterSecondExpiry(t *testing.T) {
	nav := &fakeNav{
		scripts:  []navScript{{err: fmt.Errorf("probe: %w", scrape.ErrSessionExpired)}},
		lastHTML: "<html>login form</html>",
		lastURL:  "https://x/n/login",
		shot:     []byte{0x89, 0x50},
	}
	r, _ := newTestRunner(t, loginAuth(), nav)
	dir := r.snapshots.dir

	summary, err := r.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, OutcomeFailure, summary.Outcome)
	assert.Equal(t, 1, summary.Outcome.ExitCode())

	htmls, err := filepath.Glob(filepath.Join(dir, "*.html"))
	require.NoError(t, err)
	pngs, err := filepath.Glob(filepath.Join(dir, "*.png"))
	require.NoError(t, err)
	assert.NotEmpty(t, htmls)
	assert.NotEmpty(t, pngs)
}

func TestRunAuthFailureIsFatal(t *testing.T) {
	a := &fakeAuth{fn: func(int, *session.Session) (*session.Session, error) {
		return nil, fmt.Errorf("bad credentials: %w", auth.ErrAuthentication)
	}}
	nav := &fakeNav{scripts: []navScript{{}}}
	r, _ := newTestRunner(t, a, nav)

	summary, err := r.Run(context.Background())
	require.Error(t, err)

	assert.ErrorIs(t, err, auth.ErrAuthentication)
	assert.Equal(t, OutcomeFailure, summary.Outcome)
	assert.Equal(t, 0, nav.call)
}

func TestRunCountsSkippedCards(t *testing.T) {
	nav := &fakeNav{scripts: []navScript{
		{pages: []scrape.RawPage{page(1, "MCA-1"), page(2, "MCA-2")}},
	}}
	r, _ := newTestRunner(t, loginAuth(), nav)
	r.extractor = fakeExtractor{skipPerPage: 1}

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, OutcomeSuccess, summary.Outcome)
}

func TestRunSecondPassIsIdempotent(t *testing.T) {
	nav := &fakeNav{scripts: []navScript{
		{pages: []scrape.RawPage{page(1, "MCA-1,MCA-2")}},
	}}
	r, mem := newTestRunner(t, loginAuth(), nav)

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	nav.call = 0
	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Result.Created)
	assert.Equal(t, 2, summary.Result.Unchanged)
	assert.Equal(t, 2, mem.Len())
}

func TestOutcomeExitCodes(t *testing.T) {
	assert.Equal(t, 0, OutcomeSuccess.ExitCode())
	assert.Equal(t, 3, OutcomePartial.ExitCode())
	assert.Equal(t, 1, OutcomeFailure.ExitCode())
}
