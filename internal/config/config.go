// Package config loads and validates the pipeline configuration: dashboard
// target and selectors, browser launch options, store backend, and run
// behavior. Credentials come from the environment; the config file never
// holds secrets.
package config

import (
	"fmt"
	"time"
)

// Config is the full portsync configuration.
type Config struct {
	// DataDir holds the session bundle, the local database, and
	// diagnostics snapshots. Default ~/.portsync.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	Dashboard   DashboardConfig   `json:"dashboard" mapstructure:"dashboard"`
	Browser     BrowserConfig     `json:"browser" mapstructure:"browser"`
	Scrape      ScrapeConfig      `json:"scrape" mapstructure:"scrape"`
	Store       StoreConfig       `json:"store" mapstructure:"store"`
	Sync        SyncConfig        `json:"sync" mapstructure:"sync"`
	Logging     LoggingConfig     `json:"logging" mapstructure:"logging"`
	Daemon      DaemonConfig      `json:"daemon" mapstructure:"daemon"`
	Diagnostics DiagnosticsConfig `json:"diagnostics" mapstructure:"diagnostics"`
}

// DashboardConfig describes the target portal and how to authenticate.
type DashboardConfig struct {
	BaseURL   string `json:"base_url" mapstructure:"base_url"`
	LoginPath string `json:"login_path" mapstructure:"login_path"`
	ListPath  string `json:"list_path" mapstructure:"list_path"`

	// Username / Password are environment-only (PORTSYNC_DASHBOARD_USERNAME
	// or the legacy WORKFORCE_USERNAME / WORKFORCE_PASSWORD names).
	Username string `json:"-" mapstructure:"username"`
	Password string `json:"-" mapstructure:"password"`

	// SessionFile is where the captured session bundle is persisted.
	// Defaults to <data_dir>/session.b64.
	SessionFile string `json:"session_file" mapstructure:"session_file"`
	// SessionBundle optionally carries a pre-captured encoded session
	// directly through the environment, taking precedence over the file.
	SessionBundle string `json:"-" mapstructure:"session_bundle"`

	// Markers are the structural selectors used to classify pages.
	Markers MarkersConfig `json:"markers" mapstructure:"markers"`

	// SecondFactorWaitSeconds bounds the manual one-time-code wait.
	SecondFactorWaitSeconds int `json:"second_factor_wait_seconds" mapstructure:"second_factor_wait_seconds"`
}

// MarkersConfig holds the page classification selectors.
type MarkersConfig struct {
	Login         string `json:"login" mapstructure:"login"`
	SecondFactor  string `json:"second_factor" mapstructure:"second_factor"`
	Authenticated string `json:"authenticated" mapstructure:"authenticated"`
	LoginFailed   string `json:"login_failed" mapstructure:"login_failed"`
}

// BrowserConfig holds Chrome launch options.
type BrowserConfig struct {
	Headless           bool   `json:"headless" mapstructure:"headless"`
	NoSandbox          bool   `json:"no_sandbox" mapstructure:"no_sandbox"`
	ChromePath         string `json:"chrome_path" mapstructure:"chrome_path"`
	UserDataDir        string `json:"user_data_dir" mapstructure:"user_data_dir"`
	PageTimeoutSeconds int    `json:"page_timeout_seconds" mapstructure:"page_timeout_seconds"`
}

// ScrapeConfig holds traversal and extraction selectors.
type ScrapeConfig struct {
	CardSelector        string `json:"card_selector" mapstructure:"card_selector"`
	IDSelector          string `json:"id_selector" mapstructure:"id_selector"`
	LabelSelector       string `json:"label_selector" mapstructure:"label_selector"`
	NextText            string `json:"next_text" mapstructure:"next_text"`
	SettleWaitSeconds   int    `json:"settle_wait_seconds" mapstructure:"settle_wait_seconds"`
	RetryBackoffSeconds int    `json:"retry_backoff_seconds" mapstructure:"retry_backoff_seconds"`
	MaxPages            int    `json:"max_pages" mapstructure:"max_pages"`
}

// StoreConfig selects and configures the external store backend.
type StoreConfig struct {
	// Backend is one of supabase, sqlite, memory.
	Backend  Backend        `json:"backend" mapstructure:"backend"`
	Supabase SupabaseConfig `json:"supabase" mapstructure:"supabase"`
	// SQLitePath defaults to <data_dir>/portsync.db. The sqlite database
	// also carries the run ledger regardless of backend.
	SQLitePath string `json:"sqlite_path" mapstructure:"sqlite_path"`
}

// Backend names a store implementation.
type Backend string

const (
	BackendSupabase Backend = "supabase"
	BackendSQLite   Backend = "sqlite"
	BackendMemory   Backend = "memory"
)

// SupabaseConfig holds the PostgREST connection. ServiceKey is
// environment-only (PORTSYNC_STORE_SUPABASE_SERVICE_KEY or legacy
// SUPABASE_KEY).
type SupabaseConfig struct {
	URL        string `json:"url" mapstructure:"url"`
	ServiceKey string `json:"-" mapstructure:"service_key"`
	Table      string `json:"table" mapstructure:"table"`
	KeyColumn  string `json:"key_column" mapstructure:"key_column"`
}

// SyncConfig holds reconciler settings.
type SyncConfig struct {
	Workers int `json:"workers" mapstructure:"workers"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DaemonConfig holds the built-in scheduler settings.
type DaemonConfig struct {
	// Schedule is a cron expression. Default "0 6 * * *" (daily 06:00).
	Schedule string `json:"schedule" mapstructure:"schedule"`
	// MetricsAddr serves Prometheus metrics when set, e.g. ":9290".
	MetricsAddr string `json:"metrics_addr" mapstructure:"metrics_addr"`
}

// DiagnosticsConfig controls failure evidence capture.
type DiagnosticsConfig struct {
	// Dir defaults to <data_dir>/diagnostics.
	Dir string `json:"dir" mapstructure:"dir"`
	// Keep bounds how many snapshots are retained. Default 20.
	Keep int `json:"keep" mapstructure:"keep"`
}

// DefaultConfig returns the configuration defaults. Selector defaults live
// in their packages; zero values here mean "use the package default".
func DefaultConfig() *Config {
	return &Config{
		Dashboard: DashboardConfig{
			BaseURL:                 "https://1workforce.com",
			LoginPath:               "/n/login",
			ListPath:                "/n/cashadvance/list",
			SecondFactorWaitSeconds: 180,
		},
		Browser: BrowserConfig{
			Headless:           true,
			NoSandbox:          true,
			PageTimeoutSeconds: 30,
		},
		Store: StoreConfig{
			Backend: BackendSupabase,
			Supabase: SupabaseConfig{
				Table:     "mca_deals",
				KeyColumn: "deal_id",
			},
		},
		Sync: SyncConfig{Workers: 4},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    false,
			Redaction: true,
		},
		Daemon: DaemonConfig{Schedule: "0 6 * * *"},
		Diagnostics: DiagnosticsConfig{
			Keep: 20,
		},
	}
}

// SecondFactorWait returns the bounded second-factor wait as a duration.
func (d DashboardConfig) SecondFactorWait() time.Duration {
	return time.Duration(d.SecondFactorWaitSeconds) * time.Second
}

// Validate checks the configuration for values that would make a run fail
// late or behave unsafely.
func (c *Config) Validate() error {
	v := NewValidator()
	if err := v.ValidateDashboard(c.Dashboard); err != nil {
		return err
	}
	if err := v.ValidateStore(c.Store); err != nil {
		return err
	}
	if c.Sync.Workers < 0 {
		return fmt.Errorf("config: sync.workers cannot be negative")
	}
	if c.Scrape.MaxPages < 0 {
		return fmt.Errorf("config: scrape.max_pages cannot be negative")
	}
	return nil
}
