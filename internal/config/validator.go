package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validator checks configuration sections for values that would fail late.
type Validator struct{}

// NewValidator creates a validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateDashboard checks the portal target.
func (v *Validator) ValidateDashboard(d DashboardConfig) error {
	if d.BaseURL == "" {
		return fmt.Errorf("config: dashboard.base_url is required")
	}
	u, err := url.Parse(d.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: dashboard.base_url %q is not an absolute URL", d.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: dashboard.base_url scheme %q is not supported", u.Scheme)
	}
	if d.LoginPath != "" && !strings.HasPrefix(d.LoginPath, "/") {
		return fmt.Errorf("config: dashboard.login_path must start with /")
	}
	if d.ListPath != "" && !strings.HasPrefix(d.ListPath, "/") {
		return fmt.Errorf("config: dashboard.list_path must start with /")
	}
	if d.SecondFactorWaitSeconds < 0 {
		return fmt.Errorf("config: dashboard.second_factor_wait_seconds cannot be negative")
	}
	return nil
}

// ValidateStore checks the backend selection and its settings.
func (v *Validator) ValidateStore(s StoreConfig) error {
	switch s.Backend {
	case BackendSupabase:
		if s.Supabase.URL == "" {
			return fmt.Errorf("config: store.supabase.url is required (or SUPABASE_URL)")
		}
		if s.Supabase.ServiceKey == "" {
			return fmt.Errorf("config: store.supabase.service_key is required (or SUPABASE_KEY)")
		}
	case BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("config: store.backend %q is not one of supabase, sqlite, memory", s.Backend)
	}
	return nil
}
