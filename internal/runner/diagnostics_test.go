package runner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotterCapture(t *testing.T) {
	dir := t.TempDir()
	s := NewSnapshotter(dir, 10, zerolog.Nop())

	err := s.Capture("run-1", "https://x/list?page=3", "<html>stale</html>", []byte{0x89, 0x50, 0x4e, 0x47})
	require.NoError(t, err)

	htmls, err := filepath.Glob(filepath.Join(dir, "*.html"))
	require.NoError(t, err)
	require.Len(t, htmls, 1)

	body, err := os.ReadFile(htmls[0])
	require.NoError(t, err)
	assert.Contains(t, string(body), "https://x/list?page=3")
	assert.Contains(t, string(body), "<html>stale</html>")

	pngs, err := filepath.Glob(filepath.Join(dir, "*.png"))
	require.NoError(t, err)
	assert.Len(t, pngs, 1)
}

func TestSnapshotterSkipsEmptyEvidence(t *testing.T) {
	dir := t.TempDir()
	s := NewSnapshotter(dir, 10, zerolog.Nop())

	require.NoError(t, s.Capture("run-1", "", "", nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSnapshotterHTMLOnly(t *testing.T) {
	dir := t.TempDir()
	s := NewSnapshotter(dir, 10, zerolog.Nop())

	require.NoError(t, s.Capture("run-1", "", "<html></html>", nil))

	pngs, err := filepath.Glob(filepath.Join(dir, "*.png"))
	require.NoError(t, err)
	assert.Empty(t, pngs)
}

func TestSnapshotterPrunesOldest(t *testing.T) {
	dir := t.TempDir()
	s := NewSnapshotter(dir, 2, zerolog.Nop())

	// Distinct timestamps so the oldest stems sort first.
	base := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return ts }
		require.NoError(t, s.Capture("run-1", "", "<html></html>", []byte{1}))
	}

	htmls, err := filepath.Glob(filepath.Join(dir, "*.html"))
	require.NoError(t, err)
	assert.Len(t, htmls, 2)

	// The survivors are the two newest captures.
	for _, h := range htmls {
		name := filepath.Base(h)
		assert.True(t, name >= "20260825-060200", "unexpected survivor %s", name)
	}

	pngs, err := filepath.Glob(filepath.Join(dir, "*.png"))
	require.NoError(t, err)
	assert.Len(t, pngs, 2)
}

func TestSnapshotterNoDirConfigured(t *testing.T) {
	s := NewSnapshotter("", 5, zerolog.Nop())
	assert.NoError(t, s.Capture("run-1", "", "<html></html>", nil))
}
