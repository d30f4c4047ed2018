package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://1workforce.com", cfg.Dashboard.BaseURL)
	assert.Equal(t, "/n/login", cfg.Dashboard.LoginPath)
	assert.Equal(t, "/n/cashadvance/list", cfg.Dashboard.ListPath)
	assert.Equal(t, 180, cfg.Dashboard.SecondFactorWaitSeconds)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, BackendSupabase, cfg.Store.Backend)
	assert.Equal(t, "mca_deals", cfg.Store.Supabase.Table)
	assert.Equal(t, "deal_id", cfg.Store.Supabase.KeyColumn)
	assert.Equal(t, 4, cfg.Sync.Workers)
	assert.Equal(t, "0 6 * * *", cfg.Daemon.Schedule)
	assert.True(t, cfg.Logging.Redaction)
}

func TestLoadResolvesPathsUnderDataDir(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "session.b64"), cfg.Dashboard.SessionFile)
	assert.Equal(t, filepath.Join(cfg.DataDir, "portsync.db"), cfg.Store.SQLitePath)
	assert.Equal(t, filepath.Join(cfg.DataDir, "diagnostics"), cfg.Diagnostics.Dir)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `{
		"data_dir": "/tmp/portsync-test",
		"dashboard": {
			"base_url": "https://staging.example.com",
			"markers": {"authenticated": "div.deal-card"}
		},
		"scrape": {"max_pages": 3},
		"store": {"backend": "sqlite"},
		"sync": {"workers": 8}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://staging.example.com", cfg.Dashboard.BaseURL)
	assert.Equal(t, "div.deal-card", cfg.Dashboard.Markers.Authenticated)
	assert.Equal(t, 3, cfg.Scrape.MaxPages)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, 8, cfg.Sync.Workers)
	// File values that are not set keep their defaults.
	assert.Equal(t, "/n/login", cfg.Dashboard.LoginPath)
	assert.Equal(t, "/tmp/portsync-test/portsync.db", cfg.Store.SQLitePath)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PORTSYNC_DASHBOARD_USERNAME", "ops@example.com")
	t.Setenv("PORTSYNC_SYNC_WORKERS", "2")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ops@example.com", cfg.Dashboard.Username)
	assert.Equal(t, 2, cfg.Sync.Workers)
}

func TestLoadLegacyEnvNames(t *testing.T) {
	t.Setenv("WORKFORCE_USERNAME", "legacy-user")
	t.Setenv("WORKFORCE_PASSWORD", "legacy-pass")
	t.Setenv("SUPABASE_URL", "https://abc.supabase.co")
	t.Setenv("SUPABASE_KEY", "service-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "legacy-user", cfg.Dashboard.Username)
	assert.Equal(t, "legacy-pass", cfg.Dashboard.Password)
	assert.Equal(t, "https://abc.supabase.co", cfg.Store.Supabase.URL)
	assert.Equal(t, "service-key", cfg.Store.Supabase.ServiceKey)
}

func TestLoadPrefersPortsyncEnvOverLegacy(t *testing.T) {
	t.Setenv("PORTSYNC_DASHBOARD_USERNAME", "new-user")
	t.Setenv("WORKFORCE_USERNAME", "legacy-user")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "new-user", cfg.Dashboard.Username)
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, `{"dashbord": {"base_url": "https://x.com"}}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLoadRejectsWrongType(t *testing.T) {
	path := writeConfig(t, `{"scrape": {"max_pages": "three"}}`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadBackend(t *testing.T) {
	path := writeConfig(t, `{"store": {"backend": "dynamo"}}`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"store":`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestValidateRequiresBaseURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Backend = BackendMemory
	cfg.Dashboard.BaseURL = ""

	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsRelativeBaseURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Backend = BackendMemory
	cfg.Dashboard.BaseURL = "1workforce.com/n"

	assert.Error(t, cfg.Validate())
}

func TestValidateSupabaseNeedsCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Backend = BackendSupabase
	cfg.Store.Supabase.URL = ""

	assert.Error(t, cfg.Validate())

	cfg.Store.Supabase.URL = "https://abc.supabase.co"
	cfg.Store.Supabase.ServiceKey = ""
	assert.Error(t, cfg.Validate())

	cfg.Store.Supabase.ServiceKey = "key"
	assert.NoError(t, cfg.Validate())
}

func TestValidateMemoryBackendNeedsNothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Backend = BackendMemory

	assert.NoError(t, cfg.Validate())
}

func TestSecondFactorWaitDuration(t *testing.T) {
	d := DashboardConfig{SecondFactorWaitSeconds: 90}
	assert.Equal(t, "1m30s", d.SecondFactorWait().String())
}
