// Package auth establishes a valid dashboard session: replay a stored
// cookie bundle when the dashboard still accepts it, fall back to an
// interactive login otherwise, and wait out the manual second factor when
// the dashboard demands one. Session reuse is the point, since it keeps
// scheduled runs from tripping a second-factor challenge every time.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cslcapital/portsync/pkg/browser"
	"github.com/cslcapital/portsync/pkg/session"
)

// Credentials is the username/password pair for interactive login.
type Credentials struct {
	Username string
	Password string
}

// Empty reports whether no credentials were supplied.
func (c Credentials) Empty() bool {
	return c.Username == "" || c.Password == ""
}

// Config holds the authenticator's target URLs, form selectors, and waits.
type Config struct {
	// BaseURL of the dashboard, e.g. https://1workforce.com.
	BaseURL string
	// LoginPath is the credential form page. Default "/n/login".
	LoginPath string
	// ProbePath is a page only an authenticated session can see, used both
	// to validate stored sessions and to confirm login. Default
	// "/n/cashadvance/list".
	ProbePath string

	// UsernameSelector / PasswordSelector / SubmitSelector address the
	// login form controls.
	UsernameSelector string
	PasswordSelector string
	SubmitSelector   string

	// SecondFactorWait bounds the whole post-submit wait, including the
	// manual one-time-code step. Default 3m.
	SecondFactorWait time.Duration
	// PollInterval is how often the post-submit page is re-inspected.
	// Default 2s.
	PollInterval time.Duration
}

func (c *Config) defaults() {
	if c.LoginPath == "" {
		c.LoginPath = "/n/login"
	}
	if c.ProbePath == "" {
		c.ProbePath = "/n/cashadvance/list"
	}
	if c.UsernameSelector == "" {
		c.UsernameSelector = `input[name="username"]`
	}
	if c.PasswordSelector == "" {
		c.PasswordSelector = `input[name="password"]`
	}
	if c.SubmitSelector == "" {
		c.SubmitSelector = `input[type="submit"], button[type="submit"]`
	}
	if c.SecondFactorWait <= 0 {
		c.SecondFactorWait = 3 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
}

// Authenticator produces valid sessions.
type Authenticator struct {
	cfg        Config
	store      session.Store
	classifier *Classifier
	logger     zerolog.Logger

	// newPage opens a browser page. Swapped out in tests.
	newPage func(ctx context.Context) (page, error)
}

// New creates an authenticator.
func New(cfg Config, b *browser.Manager, st session.Store, classifier *Classifier, logger zerolog.Logger) *Authenticator {
	cfg.defaults()
	return &Authenticator{
		cfg:        cfg,
		store:      st,
		classifier: classifier,
		logger:     logger.With().Str("component", "auth").Logger(),
		newPage:    rodPageFactory(b),
	}
}

// Authenticate returns a session the dashboard currently accepts. A usable
// preferred session is returned unchanged with zero login submissions; only
// when the probe fails does the interactive flow run. Freshly captured
// sessions are persisted before returning so the next run gets the fast
// path.
func (a *Authenticator) Authenticate(ctx context.Context, preferred *session.Session, creds Credentials) (*session.Session, error) {
	if preferred != nil {
		ok, err := a.Probe(ctx, preferred)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, err
		case err != nil:
			// The probe could not complete, which says nothing about the
			// session either way. With credentials on hand, a fresh login
			// settles it.
			a.logger.Warn().Err(err).Msg("Session probe failed, falling back to login")
		case ok:
			a.logger.Info().
				Time("issued_at", preferred.IssuedAt).
				Msg("Stored session accepted")
			return preferred, nil
		default:
			a.logger.Info().Msg("Stored session rejected by dashboard, falling back to login")
		}
	}

	if creds.Empty() {
		if preferred == nil {
			return nil, fmt.Errorf("%w: no stored session and no credentials", ErrSessionProbe)
		}
		return nil, fmt.Errorf("%w: stored session is unusable and no credentials to refresh it", ErrSessionProbe)
	}

	sess, err := a.login(ctx, creds)
	if err != nil {
		return nil, err
	}

	if err := a.store.Save(sess); err != nil {
		// A session that works but could not be persisted is still a
		// session; the next run just pays for a fresh login.
		a.logger.Warn().Err(err).Msg("Could not persist fresh session")
	}
	return sess, nil
}

// Probe checks whether the dashboard still accepts a session by loading the
// authenticated listing page and classifying what actually rendered.
func (a *Authenticator) Probe(ctx context.Context, sess *session.Session) (bool, error) {
	p, err := a.newPage(ctx)
	if err != nil {
		return false, err
	}
	defer p.Close()

	if err := p.ApplyCookies(sess); err != nil {
		return false, err
	}

	source, err := a.capture(p, a.cfg.BaseURL+a.cfg.ProbePath)
	if err != nil {
		return false, fmt.Errorf("auth: probe: %w", err)
	}
	return a.classifier.LoggedIn(source), nil
}

// login drives the interactive credential flow on a fresh page.
func (a *Authenticator) login(ctx context.Context, creds Credentials) (*session.Session, error) {
	a.logger.Info().Str("user", creds.Username).Msg("Performing interactive login")

	p, err := a.newPage(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	if err := p.Navigate(a.cfg.BaseURL + a.cfg.LoginPath); err != nil {
		return nil, fmt.Errorf("auth: open login page: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("auth: login page load: %w", err)
	}

	if err := a.submitCredentials(p, creds); err != nil {
		return nil, err
	}

	return a.awaitLoginOutcome(ctx, p)
}

func (a *Authenticator) submitCredentials(p page, creds Credentials) error {
	if err := p.Fill(a.cfg.UsernameSelector, creds.Username); err != nil {
		return fmt.Errorf("%w: username field: %v", ErrSessionProbe, err)
	}
	if err := p.Fill(a.cfg.PasswordSelector, creds.Password); err != nil {
		return fmt.Errorf("%w: password field: %v", ErrSessionProbe, err)
	}
	if err := p.Click(a.cfg.SubmitSelector); err != nil {
		return fmt.Errorf("%w: submit control: %v", ErrSessionProbe, err)
	}
	return nil
}

// awaitLoginOutcome polls the post-submit page until it becomes
// authenticated content, a credential rejection, or the bounded wait runs
// out. The second factor is completed by a human out of band; this loop
// just notices when they are done.
func (a *Authenticator) awaitLoginOutcome(ctx context.Context, p page) (*session.Session, error) {
	deadline := time.NewTimer(a.cfg.SecondFactorWait)
	defer deadline.Stop()
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	secondFactorSeen := false
	for {
		source, err := p.HTML()
		if err != nil {
			// The post-submit navigation replaces the document under the
			// reader, so a failed read means "not settled yet", not a dead
			// login. The deadline still bounds the whole wait.
			a.logger.Debug().Err(err).Msg("Post-login page not readable yet")
		} else {
			switch a.classifier.Classify(source) {
			case KindAuthenticated:
				return a.harvest(p)
			case KindSecondFactor:
				if !secondFactorSeen {
					secondFactorSeen = true
					a.logger.Warn().
						Dur("wait", a.cfg.SecondFactorWait).
						Msg("Second factor required, waiting for manual completion")
				}
			case KindLogin:
				if a.classifier.LoginRejected(source) {
					return nil, ErrAuthentication
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("auth: cancelled: %w", ctx.Err())
		case <-deadline.C:
			if secondFactorSeen {
				return nil, ErrSecondFactorTimeout
			}
			return nil, fmt.Errorf("%w: login did not complete", ErrAuthentication)
		case <-ticker.C:
		}
	}
}

// harvest captures the live cookie jar into a fresh session.
func (a *Authenticator) harvest(p page) (*session.Session, error) {
	cookies, err := p.Cookies()
	if err != nil {
		return nil, err
	}
	sess := &session.Session{Cookies: cookies, IssuedAt: time.Now().UTC()}
	a.logger.Info().Int("cookies", len(cookies)).Msg("Login successful, session captured")
	return sess, nil
}

// capture navigates and returns the rendered HTML after load.
func (a *Authenticator) capture(p page, url string) (string, error) {
	if err := p.Navigate(url); err != nil {
		return "", err
	}
	if err := p.WaitLoad(); err != nil {
		return "", err
	}
	return p.HTML()
}

// IsFatal reports whether an authentication failure should abort the run
// without any scrape attempt.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthentication) ||
		errors.Is(err, ErrSecondFactorTimeout) ||
		errors.Is(err, ErrSessionProbe)
}
