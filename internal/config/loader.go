package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from an optional JSON file plus environment
// overrides and applies defaults. An empty path loads defaults and
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")

	v.SetEnvPrefix("PORTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := ValidateDocument(raw); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyLegacyEnv(cfg)

	if err := resolvePaths(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers defaults with viper so env overrides bind even when
// no config file names the key.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("data_dir", cfg.DataDir)

	v.SetDefault("dashboard.base_url", cfg.Dashboard.BaseURL)
	v.SetDefault("dashboard.login_path", cfg.Dashboard.LoginPath)
	v.SetDefault("dashboard.list_path", cfg.Dashboard.ListPath)
	v.SetDefault("dashboard.username", "")
	v.SetDefault("dashboard.password", "")
	v.SetDefault("dashboard.session_file", cfg.Dashboard.SessionFile)
	v.SetDefault("dashboard.session_bundle", "")
	v.SetDefault("dashboard.second_factor_wait_seconds", cfg.Dashboard.SecondFactorWaitSeconds)
	v.SetDefault("dashboard.markers.login", cfg.Dashboard.Markers.Login)
	v.SetDefault("dashboard.markers.second_factor", cfg.Dashboard.Markers.SecondFactor)
	v.SetDefault("dashboard.markers.authenticated", cfg.Dashboard.Markers.Authenticated)
	v.SetDefault("dashboard.markers.login_failed", cfg.Dashboard.Markers.LoginFailed)

	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.no_sandbox", cfg.Browser.NoSandbox)
	v.SetDefault("browser.chrome_path", cfg.Browser.ChromePath)
	v.SetDefault("browser.user_data_dir", cfg.Browser.UserDataDir)
	v.SetDefault("browser.page_timeout_seconds", cfg.Browser.PageTimeoutSeconds)

	v.SetDefault("scrape.card_selector", cfg.Scrape.CardSelector)
	v.SetDefault("scrape.id_selector", cfg.Scrape.IDSelector)
	v.SetDefault("scrape.label_selector", cfg.Scrape.LabelSelector)
	v.SetDefault("scrape.next_text", cfg.Scrape.NextText)
	v.SetDefault("scrape.settle_wait_seconds", cfg.Scrape.SettleWaitSeconds)
	v.SetDefault("scrape.retry_backoff_seconds", cfg.Scrape.RetryBackoffSeconds)
	v.SetDefault("scrape.max_pages", cfg.Scrape.MaxPages)

	v.SetDefault("store.backend", string(cfg.Store.Backend))
	v.SetDefault("store.supabase.url", cfg.Store.Supabase.URL)
	v.SetDefault("store.supabase.service_key", "")
	v.SetDefault("store.supabase.table", cfg.Store.Supabase.Table)
	v.SetDefault("store.supabase.key_column", cfg.Store.Supabase.KeyColumn)
	v.SetDefault("store.sqlite_path", cfg.Store.SQLitePath)

	v.SetDefault("sync.workers", cfg.Sync.Workers)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)

	v.SetDefault("daemon.schedule", cfg.Daemon.Schedule)
	v.SetDefault("daemon.metrics_addr", cfg.Daemon.MetricsAddr)

	v.SetDefault("diagnostics.dir", cfg.Diagnostics.Dir)
	v.SetDefault("diagnostics.keep", cfg.Diagnostics.Keep)
}

// applyLegacyEnv honors the environment names the original deployment used,
// without overriding values already set through PORTSYNC_ variables.
func applyLegacyEnv(cfg *Config) {
	if cfg.Dashboard.Username == "" {
		cfg.Dashboard.Username = os.Getenv("WORKFORCE_USERNAME")
	}
	if cfg.Dashboard.Password == "" {
		cfg.Dashboard.Password = os.Getenv("WORKFORCE_PASSWORD")
	}
	if cfg.Store.Supabase.URL == "" {
		cfg.Store.Supabase.URL = os.Getenv("SUPABASE_URL")
	}
	if cfg.Store.Supabase.ServiceKey == "" {
		cfg.Store.Supabase.ServiceKey = os.Getenv("SUPABASE_KEY")
	}
}

// resolvePaths fills in path defaults derived from the data directory.
func resolvePaths(cfg *Config) error {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".portsync")
	}
	if cfg.Dashboard.SessionFile == "" {
		cfg.Dashboard.SessionFile = filepath.Join(cfg.DataDir, "session.b64")
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = filepath.Join(cfg.DataDir, "portsync.db")
	}
	if cfg.Diagnostics.Dir == "" {
		cfg.Diagnostics.Dir = filepath.Join(cfg.DataDir, "diagnostics")
	}
	return nil
}
