package logger

import (
	"io"
	"regexp"
)

// Redactor scrubs secrets from log output before it reaches any writer.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor covering the secret shapes this pipeline
// handles: dashboard passwords, session cookie values, encoded session
// bundles, and store service keys.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// Supabase service-role keys are JWTs.
			regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),

			// Bearer headers.
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),

			// Password/secret key-value shapes.
			regexp.MustCompile(`(?i)password["\s:=]+[^\s",}]+`),
			regexp.MustCompile(`(?i)secret["\s:=]+[^\s",}]+`),
			regexp.MustCompile(`(?i)service_key["\s:=]+[^\s",}]+`),

			// Cookie values in header or JSON form.
			regexp.MustCompile(`(?i)(set-)?cookie["\s:=]+[^\s"]+`),
			regexp.MustCompile(`"value"\s*:\s*"[^"]+"`),

			// Session bundles are long base64 runs.
			regexp.MustCompile(`[A-Za-z0-9+/]{64,}={0,2}`),
		},
	}
}

// AddPattern adds a custom redaction pattern.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact scrubs matches from a string.
func (r *Redactor) Redact(s string) string {
	result := s
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// Wrap returns a writer that redacts everything written through it.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

func (w *redactingWriter) Write(p []byte) (n int, err error) {
	redacted := w.redactor.Redact(string(p))
	if _, err := w.writer.Write([]byte(redacted)); err != nil {
		return 0, err
	}
	// Report the original length; redaction changes the byte count and a
	// short write would confuse upstream writers.
	return len(p), nil
}
