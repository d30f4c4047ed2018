package auth

import "github.com/cslcapital/portsync/pkg/extract"

// PageKind is what a rendered dashboard page looks like to the pipeline.
// A logged-out page renders perfectly well, so classification is structural,
// never by HTTP status or URL alone.
type PageKind int

const (
	// KindUnknown is a page matching none of the markers: treated as not
	// authenticated, because extracting from it would silently yield nothing.
	KindUnknown PageKind = iota
	// KindLogin is the credential form.
	KindLogin
	// KindSecondFactor is the one-time-code challenge shown after a
	// successful credential submit.
	KindSecondFactor
	// KindAuthenticated is a page only a logged-in session can see.
	KindAuthenticated
)

// Markers holds the structural selectors classification keys on. Defaults
// match the dashboard's current markup and live in config so drift is an
// ops change.
type Markers struct {
	// Login matches an element unique to the credential form.
	// Default `input[name=username]`.
	Login string
	// SecondFactor matches the challenge page. Default `input[name=otp]`.
	SecondFactor string
	// Authenticated matches content only a logged-in session sees.
	// Default `div.app-card`.
	Authenticated string
	// LoginFailed matches the credential-rejection notice on the login
	// page. Default `div.alert-danger`.
	LoginFailed string
}

func (m *Markers) defaults() {
	if m.Login == "" {
		m.Login = "input[name=username]"
	}
	if m.SecondFactor == "" {
		m.SecondFactor = "input[name=otp]"
	}
	if m.Authenticated == "" {
		m.Authenticated = "div.app-card"
	}
	if m.LoginFailed == "" {
		m.LoginFailed = "div.alert-danger"
	}
}

// Classifier decides what kind of page a captured HTML document is.
type Classifier struct {
	markers Markers
}

// NewClassifier creates a classifier with defaults filled in.
func NewClassifier(markers Markers) *Classifier {
	markers.defaults()
	return &Classifier{markers: markers}
}

// Classify inspects captured page HTML. Order matters: the second-factor
// page also carries login chrome, so it is checked first.
func (c *Classifier) Classify(source string) PageKind {
	doc, err := extract.Parse(source)
	if err != nil {
		return KindUnknown
	}
	switch {
	case extract.Query(doc, c.markers.SecondFactor) != nil:
		return KindSecondFactor
	case extract.Query(doc, c.markers.Login) != nil:
		return KindLogin
	case extract.Query(doc, c.markers.Authenticated) != nil:
		return KindAuthenticated
	default:
		return KindUnknown
	}
}

// LoggedIn reports whether the page is usable authenticated content. The
// navigator embeds this check in every page fetch.
func (c *Classifier) LoggedIn(source string) bool {
	return c.Classify(source) == KindAuthenticated
}

// LoginRejected reports whether the login page is showing a credential
// rejection notice.
func (c *Classifier) LoginRejected(source string) bool {
	doc, err := extract.Parse(source)
	if err != nil {
		return false
	}
	return extract.Query(doc, c.markers.Login) != nil &&
		extract.Query(doc, c.markers.LoginFailed) != nil
}
