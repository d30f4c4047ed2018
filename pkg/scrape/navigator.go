// Package scrape drives the authenticated browser through the dashboard's
// listing pages. Traversal is sequential and single-session, because the
// dashboard does not tolerate concurrent sessions. Every page fetch embeds
// an authentication check, because a logged-out page renders successfully
// but contains no real data.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cslcapital/portsync/pkg/browser"
	"github.com/cslcapital/portsync/pkg/extract"
	"github.com/cslcapital/portsync/pkg/session"
)

var (
	// ErrSessionExpired means a mid-traversal page rendered as logged-out
	// content. The traversal stops immediately; nothing from that page or
	// later is emitted.
	ErrSessionExpired = errors.New("scrape: session expired mid-traversal")

	// ErrPageLoad means a page failed to load twice (original attempt plus
	// one retry). Fatal for the traversal, not for the run: records already
	// extracted still sync.
	ErrPageLoad = errors.New("scrape: page failed to load")
)

// RawPage is one captured listing page, handed to the extractor.
type RawPage struct {
	Number    int
	URL       string
	HTML      string
	FetchedAt time.Time
}

// Config holds traversal settings.
type Config struct {
	// BaseURL of the dashboard.
	BaseURL string
	// ListPath is the first listing page. Default "/n/cashadvance/list".
	ListPath string
	// CardSelector marks real listing content; its absence after the settle
	// wait means an empty page. Default "div.app-card".
	CardSelector string
	// NextText matches the pagination affordance by its visible text.
	// Default "Next". A match carrying the disabled class is end-of-list.
	NextText string
	// SettleWait bounds how long a lazily rendered page gets to produce
	// cards before fields are treated as absent. Default 3s.
	SettleWait time.Duration
	// RetryBackoff is the fixed pause before the single page-load retry.
	// Default 5s.
	RetryBackoff time.Duration
	// MaxPages caps a traversal as a runaway guard. 0 means unbounded;
	// termination comes from the structural end-of-list signal, never from
	// a fixed page count.
	MaxPages int
}

func (c *Config) defaults() {
	if c.ListPath == "" {
		c.ListPath = "/n/cashadvance/list"
	}
	if c.CardSelector == "" {
		c.CardSelector = "div.app-card"
	}
	if c.NextText == "" {
		c.NextText = "Next"
	}
	if c.SettleWait <= 0 {
		c.SettleWait = 3 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 5 * time.Second
	}
}

// VisitFunc receives pages in pagination order. Returning an error stops
// the traversal.
type VisitFunc func(RawPage) error

// driver is the slice of browser behavior the traversal needs. The rod
// implementation lives in driver.go; tests substitute a scripted one.
type driver interface {
	// Load navigates to the first listing page and waits for content.
	Load(url string) error
	// HTML returns the current rendered document.
	HTML() (string, error)
	// URL returns the current page URL.
	URL() string
	// ClickNext activates the pagination affordance and waits for content.
	ClickNext() error
	// Screenshot captures the viewport, best effort.
	Screenshot() []byte
	// Close releases the page.
	Close()
}

// Navigator walks the listing pagination.
type Navigator struct {
	cfg      Config
	loggedIn func(string) bool
	logger   zerolog.Logger

	// newDriver opens a page carrying the session's cookies. Swapped out
	// in tests.
	newDriver func(ctx context.Context, sess *session.Session) (driver, error)

	lastHTML       string
	lastURL        string
	lastScreenshot []byte
}

// New creates a navigator. loggedIn classifies captured HTML as usable
// authenticated content; the auth package provides it.
func New(cfg Config, b *browser.Manager, loggedIn func(string) bool, logger zerolog.Logger) *Navigator {
	cfg.defaults()
	return &Navigator{
		cfg:       cfg,
		loggedIn:  loggedIn,
		logger:    logger.With().Str("component", "navigator").Logger(),
		newDriver: rodDriverFactory(b, cfg),
	}
}

// Traverse walks listing pages from the beginning, calling visit for each.
// Each call starts a fresh traversal; there is no mid-sequence resume.
func (n *Navigator) Traverse(ctx context.Context, sess *session.Session, visit VisitFunc) error {
	d, err := n.newDriver(ctx, sess)
	if err != nil {
		return err
	}
	defer d.Close()

	startURL := n.cfg.BaseURL + n.cfg.ListPath
	if err := n.loadWithRetry(ctx, func() error { return d.Load(startURL) }); err != nil {
		return err
	}

	for pageNum := 1; ; pageNum++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scrape: cancelled: %w", err)
		}

		source, err := d.HTML()
		if err != nil {
			return fmt.Errorf("%w: capture page %d: %v", ErrPageLoad, pageNum, err)
		}
		n.lastHTML = source
		n.lastURL = d.URL()

		if !n.loggedIn(source) {
			n.lastScreenshot = d.Screenshot()
			n.logger.Warn().Int("page", pageNum).Msg("Page rendered as logged-out content")
			return fmt.Errorf("%w: page %d", ErrSessionExpired, pageNum)
		}

		raw := RawPage{
			Number:    pageNum,
			URL:       d.URL(),
			HTML:      source,
			FetchedAt: time.Now().UTC(),
		}
		n.logger.Debug().Int("page", pageNum).Msg("Page captured")
		if err := visit(raw); err != nil {
			return err
		}

		if n.cfg.MaxPages > 0 && pageNum >= n.cfg.MaxPages {
			n.logger.Warn().Int("max_pages", n.cfg.MaxPages).Msg("Traversal page cap reached")
			return nil
		}
		if !n.hasNext(source) {
			n.logger.Info().Int("pages", pageNum).Msg("End of pagination")
			return nil
		}

		if err := n.loadWithRetry(ctx, d.ClickNext); err != nil {
			n.lastScreenshot = d.Screenshot()
			return err
		}
	}
}

// LastPage returns the most recently captured page content and URL, for
// the diagnostics snapshot after a failed traversal.
func (n *Navigator) LastPage() (html, url string) {
	return n.lastHTML, n.lastURL
}

// LastScreenshot returns the screenshot captured at the failure point, if
// any.
func (n *Navigator) LastScreenshot() []byte {
	return n.lastScreenshot
}

// loadWithRetry runs a load step, retrying exactly once after a fixed
// backoff. Nothing in the pipeline retries more than once.
func (n *Navigator) loadWithRetry(ctx context.Context, load func() error) error {
	err := load()
	if err == nil {
		return nil
	}

	n.logger.Warn().Err(err).Dur("backoff", n.cfg.RetryBackoff).Msg("Page load failed, retrying once")
	select {
	case <-ctx.Done():
		return fmt.Errorf("scrape: cancelled: %w", ctx.Err())
	case <-time.After(n.cfg.RetryBackoff):
	}

	if err := load(); err != nil {
		return fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	return nil
}

// hasNext inspects captured HTML for a usable pagination affordance: an
// anchor with the configured text that is not disabled.
func (n *Navigator) hasNext(source string) bool {
	doc, err := extract.Parse(source)
	if err != nil {
		return false
	}
	for _, a := range extract.QueryAll(doc, "a") {
		if !strings.Contains(extract.Text(a), n.cfg.NextText) {
			continue
		}
		if extract.HasClass(a, "disabled") {
			return false
		}
		return true
	}
	return false
}
