// Package browser manages the Chrome process the scraper drives: launch,
// CDP connection, stealth page creation, and moving cookies between the
// live browser and the persisted session bundle.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"

	"github.com/cslcapital/portsync/pkg/session"
)

// Config holds browser launch settings.
type Config struct {
	// Headless runs Chrome without a window. Capture mode turns this off
	// so a human can complete the second factor.
	Headless bool
	// NoSandbox is required in most container environments.
	NoSandbox bool
	// ChromePath overrides the binary rod's launcher would pick.
	ChromePath string
	// UserDataDir isolates the automation profile from any local Chrome.
	UserDataDir string
	// WindowWidth / WindowHeight set the viewport. Defaults 1920x1080;
	// the dashboard collapses its card layout below desktop widths.
	WindowWidth  int
	WindowHeight int
	// PageTimeout bounds every page operation. Default 30s.
	PageTimeout time.Duration
}

func (c *Config) defaults() {
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1920
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 1080
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 30 * time.Second
	}
}

// Manager owns one Chrome process and its rod connection.
type Manager struct {
	cfg      Config
	logger   zerolog.Logger
	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewManager creates a manager. Call Start to launch Chrome.
func NewManager(cfg Config, logger zerolog.Logger) *Manager {
	cfg.defaults()
	return &Manager{
		cfg:    cfg,
		logger: logger.With().Str("component", "browser").Logger(),
	}
}

// Start launches Chrome and connects over CDP.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		return nil
	}

	l := launcher.New().
		Headless(m.cfg.Headless).
		Set("window-size", fmt.Sprintf("%d,%d", m.cfg.WindowWidth, m.cfg.WindowHeight)).
		Set("disable-gpu").
		Set("disable-dev-shm-usage")

	if m.cfg.NoSandbox {
		l = l.NoSandbox(true)
	}
	if m.cfg.ChromePath != "" {
		l = l.Bin(m.cfg.ChromePath)
	}
	if m.cfg.UserDataDir != "" {
		l = l.UserDataDir(m.cfg.UserDataDir)
	}

	url, err := l.Launch()
	if err != nil {
		return fmt.Errorf("browser: launch chrome: %w", err)
	}

	b := rod.New().ControlURL(url).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return fmt.Errorf("browser: connect CDP: %w", err)
	}

	m.launcher = l
	m.browser = b

	m.logger.Info().
		Bool("headless", m.cfg.Headless).
		Msg("Chrome started")

	return nil
}

// Close shuts Chrome down and cleans up the launcher's temp state.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.logger.Warn().Err(err).Msg("Browser close failed")
		}
		m.browser = nil
	}
	if m.launcher != nil {
		m.launcher.Cleanup()
		m.launcher = nil
	}
}

// NewPage opens a stealth page with the manager's default timeout. The
// stealth patches cover the fingerprints a bare headless Chrome leaks
// (navigator.webdriver and friends).
func (m *Manager) NewPage(ctx context.Context) (*rod.Page, error) {
	m.mu.Lock()
	b := m.browser
	m.mu.Unlock()

	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	return page.Context(ctx).Timeout(m.cfg.PageTimeout), nil
}

// ApplyCookies installs the session's cookie bundle into a page before any
// navigation, so the first request is already authenticated.
func ApplyCookies(page *rod.Page, sess *session.Session) error {
	if sess == nil || len(sess.Cookies) == 0 {
		return nil
	}
	params := make([]*proto.NetworkCookieParam, len(sess.Cookies))
	for i, c := range sess.Cookies {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if !c.Expires.IsZero() {
			p.Expires = proto.TimeSinceEpoch(c.Expires.Unix())
		}
		params[i] = p
	}
	if err := page.SetCookies(params); err != nil {
		return fmt.Errorf("browser: set cookies: %w", err)
	}
	return nil
}

// HarvestCookies reads the page's current cookies into a session bundle.
func HarvestCookies(page *rod.Page) ([]session.Cookie, error) {
	cookies, err := page.Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("browser: read cookies: %w", err)
	}
	out := make([]session.Cookie, 0, len(cookies))
	for _, c := range cookies {
		cookie := session.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			cookie.Expires = time.Unix(int64(c.Expires), 0).UTC()
		}
		out = append(out, cookie)
	}
	return out, nil
}
