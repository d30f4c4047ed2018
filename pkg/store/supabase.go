package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SupabaseConfig configures the PostgREST-backed store.
type SupabaseConfig struct {
	// URL is the project base URL, e.g. https://xyz.supabase.co.
	URL string
	// ServiceKey is the service-role key. It bypasses row-level security,
	// matching how the ingest side of the project writes.
	ServiceKey string
	// Table holds the deal records. Default "mca_deals".
	Table string
	// KeyColumn is the identifier column. Default "deal_id".
	KeyColumn string
	// Timeout bounds each request. Default 30s.
	Timeout time.Duration
}

func (c *SupabaseConfig) defaults() {
	if c.Table == "" {
		c.Table = "mca_deals"
	}
	if c.KeyColumn == "" {
		c.KeyColumn = "deal_id"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// SupabaseStore talks to a Supabase project through its PostgREST endpoint.
// One row per deal, addressed by the key column.
type SupabaseStore struct {
	cfg    SupabaseConfig
	client *http.Client
}

// NewSupabaseStore creates a PostgREST-backed store.
func NewSupabaseStore(cfg SupabaseConfig) (*SupabaseStore, error) {
	cfg.defaults()
	if cfg.URL == "" {
		return nil, fmt.Errorf("store: supabase URL is required")
	}
	if cfg.ServiceKey == "" {
		return nil, fmt.Errorf("store: supabase service key is required")
	}
	return &SupabaseStore{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Get fetches the row for an identifier and flattens it to a field map.
func (s *SupabaseStore) Get(ctx context.Context, id string) (map[string]string, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s=eq.%s&select=*&limit=1",
		strings.TrimRight(s.cfg.URL, "/"),
		url.PathEscape(s.cfg.Table),
		url.QueryEscape(s.cfg.KeyColumn),
		url.QueryEscape(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("store: build get request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("store: read get response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("store: get %s: status %d: %s", id, resp.StatusCode, truncate(body))
	}

	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("store: decode get response: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return flattenRow(rows[0], s.cfg.KeyColumn), nil
}

// Upsert inserts or overwrites one row. PostgREST resolves the conflict on
// the key column server-side, so repeated runs never create duplicates.
func (s *SupabaseStore) Upsert(ctx context.Context, id string, fields map[string]string) error {
	row := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		row[k] = v
	}
	row[s.cfg.KeyColumn] = id

	payload, err := json.Marshal([]map[string]any{row})
	if err != nil {
		return fmt.Errorf("store: marshal upsert: %w", err)
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s?on_conflict=%s",
		strings.TrimRight(s.cfg.URL, "/"),
		url.PathEscape(s.cfg.Table),
		url.QueryEscape(s.cfg.KeyColumn))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("store: build upsert request: %w", err)
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("store: upsert %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("store: upsert %s: status %d: %s", id, resp.StatusCode, truncate(body))
	}
	return nil
}

func (s *SupabaseStore) setHeaders(req *http.Request) {
	req.Header.Set("apikey", s.cfg.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+s.cfg.ServiceKey)
}

// flattenRow converts a decoded JSON row to the string field map the
// reconciler diffs against. Nulls and the key column are dropped; numbers
// are rendered without a float exponent so the comparison is stable.
func flattenRow(row map[string]any, keyColumn string) map[string]string {
	fields := make(map[string]string, len(row))
	for k, v := range row {
		if k == keyColumn || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			fields[k] = val
		case float64:
			fields[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			fields[k] = strconv.FormatBool(val)
		default:
			raw, err := json.Marshal(val)
			if err != nil {
				continue
			}
			fields[k] = string(raw)
		}
	}
	return fields
}

func truncate(body []byte) string {
	const max = 300
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
