// Package session holds the authenticated dashboard session: the cookie
// bundle captured after a successful login, its persistence on disk, and a
// watcher that picks up out-of-band re-captures. The bundle is opaque to
// everything above this package; validity is the authenticator's concern.
package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// bundleVersion is bumped when the serialized envelope changes shape.
// Decode rejects unknown versions instead of guessing.
const bundleVersion = 1

// Cookie is one browser cookie from the authenticated session.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"http_only,omitempty"`
}

// Session is the opaque authenticated state reusable across runs without
// re-submitting credentials.
type Session struct {
	Cookies  []Cookie  `json:"cookies"`
	Token    string    `json:"token,omitempty"`
	IssuedAt time.Time `json:"issued_at"`
}

// envelope is the versioned on-disk / in-env form of a Session.
type envelope struct {
	Version int     `json:"v"`
	Session Session `json:"session"`
}

// Age returns how long ago the session was issued.
func (s *Session) Age() time.Duration {
	return time.Since(s.IssuedAt)
}

// Cookie returns the named cookie value and whether it is present.
func (s *Session) Cookie(name string) (string, bool) {
	for _, c := range s.Cookies {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// Encode serializes the session into the versioned base64 bundle form. The
// bundle is safe to pass through an environment variable or a secret store.
func Encode(s *Session) (string, error) {
	if s == nil {
		return "", fmt.Errorf("session: cannot encode nil session")
	}
	raw, err := json.Marshal(envelope{Version: bundleVersion, Session: *s})
	if err != nil {
		return "", fmt.Errorf("session: encode: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decode parses a bundle produced by Encode. It fails on undecodable input
// and on envelope versions this build does not understand.
func Decode(bundle string) (*Session, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(bundle))
	if err != nil {
		return nil, fmt.Errorf("session: bundle is not valid base64: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("session: bundle is not a valid envelope: %w", err)
	}
	if env.Version != bundleVersion {
		return nil, fmt.Errorf("session: unsupported bundle version %d", env.Version)
	}
	return &env.Session, nil
}
