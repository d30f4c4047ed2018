package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Snapshotter writes failure evidence to disk: the HTML of the last page
// the navigator saw, the screenshot if one was taken, and the URL it came
// from. Old snapshots are pruned so the directory stays bounded.
type Snapshotter struct {
	dir    string
	keep   int
	logger zerolog.Logger
	now    func() time.Time
}

// NewSnapshotter creates a snapshotter. keep <= 0 disables pruning.
func NewSnapshotter(dir string, keep int, logger zerolog.Logger) *Snapshotter {
	return &Snapshotter{
		dir:    dir,
		keep:   keep,
		logger: logger.With().Str("component", "diagnostics").Logger(),
		now:    time.Now,
	}
}

// Capture writes one snapshot. The stem is timestamp-first so directory
// listings sort chronologically; the random suffix keeps two failures in
// the same second apart.
func (s *Snapshotter) Capture(runID, url, html string, screenshot []byte) error {
	if s.dir == "" || html == "" && len(screenshot) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create diagnostics dir: %w", err)
	}

	suffix, err := gonanoid.New(8)
	if err != nil {
		return fmt.Errorf("generate snapshot name: %w", err)
	}
	stem := fmt.Sprintf("%s-%s", s.now().UTC().Format("20060102-150405"), suffix)

	if html != "" {
		body := html
		if url != "" {
			body = "<!-- " + url + " -->\n" + body
		}
		path := filepath.Join(s.dir, stem+".html")
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			return fmt.Errorf("write snapshot html: %w", err)
		}
		s.logger.Info().Str("run_id", runID).Str("path", path).Msg("page snapshot written")
	}
	if len(screenshot) > 0 {
		path := filepath.Join(s.dir, stem+".png")
		if err := os.WriteFile(path, screenshot, 0o600); err != nil {
			return fmt.Errorf("write snapshot screenshot: %w", err)
		}
		s.logger.Info().Str("run_id", runID).Str("path", path).Msg("screenshot written")
	}

	s.prune()
	return nil
}

// prune removes the oldest snapshots beyond the retention bound. The bound
// counts capture stems, not files; an html/png pair is one snapshot.
func (s *Snapshotter) prune() {
	if s.keep <= 0 {
		return
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}

	stems := map[string][]string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if ext != ".html" && ext != ".png" {
			continue
		}
		stem := strings.TrimSuffix(name, ext)
		stems[stem] = append(stems[stem], name)
	}
	if len(stems) <= s.keep {
		return
	}

	ordered := make([]string, 0, len(stems))
	for stem := range stems {
		ordered = append(ordered, stem)
	}
	sort.Strings(ordered)

	for _, stem := range ordered[:len(stems)-s.keep] {
		for _, name := range stems[stem] {
			if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
				s.logger.Warn().Err(err).Str("file", name).Msg("snapshot prune failed")
			}
		}
	}
}
