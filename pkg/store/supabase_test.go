package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupabaseGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/mca_deals", r.URL.Path)
		assert.Equal(t, "eq.MCA # 1", r.URL.Query().Get("deal_id"))
		assert.Equal(t, "test-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode([]map[string]any{{
			"deal_id":        "MCA # 1",
			"dba":            "Acme",
			"purchase_price": 400000.0,
			"active":         true,
			"sales_rep":      nil,
		}})
	}))
	defer srv.Close()

	s, err := NewSupabaseStore(SupabaseConfig{URL: srv.URL, ServiceKey: "test-key"})
	require.NoError(t, err)

	fields, err := s.Get(context.Background(), "MCA # 1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", fields["dba"])
	assert.Equal(t, "400000", fields["purchase_price"])
	assert.Equal(t, "true", fields["active"])
	// Key column and nulls are not part of the diffable field set.
	assert.NotContains(t, fields, "deal_id")
	assert.NotContains(t, fields, "sales_rep")
}

func TestSupabaseGetNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	s, err := NewSupabaseStore(SupabaseConfig{URL: srv.URL, ServiceKey: "test-key"})
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "MCA # 404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSupabaseUpsert(t *testing.T) {
	var gotPrefer string
	var gotBody []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "deal_id", r.URL.Query().Get("on_conflict"))
		gotPrefer = r.Header.Get("Prefer")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s, err := NewSupabaseStore(SupabaseConfig{URL: srv.URL, ServiceKey: "test-key"})
	require.NoError(t, err)

	err = s.Upsert(context.Background(), "MCA # 1", map[string]string{"dba": "Acme"})
	require.NoError(t, err)

	assert.Contains(t, gotPrefer, "resolution=merge-duplicates")
	require.Len(t, gotBody, 1)
	assert.Equal(t, "MCA # 1", gotBody[0]["deal_id"])
	assert.Equal(t, "Acme", gotBody[0]["dba"])
}

func TestSupabaseUpsertServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"permission denied"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	s, err := NewSupabaseStore(SupabaseConfig{URL: srv.URL, ServiceKey: "test-key"})
	require.NoError(t, err)

	err = s.Upsert(context.Background(), "MCA # 1", map[string]string{"dba": "Acme"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSupabaseConfigValidation(t *testing.T) {
	_, err := NewSupabaseStore(SupabaseConfig{ServiceKey: "k"})
	assert.Error(t, err)

	_, err = NewSupabaseStore(SupabaseConfig{URL: "https://xyz.supabase.co"})
	assert.Error(t, err)
}

func TestMemStore(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	_, err := m.Get(ctx, "A1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Upsert(ctx, "A1", map[string]string{"name": "Acme"}))
	got, err := m.Get(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got["name"])

	// Mutating the returned map must not leak into the store.
	got["name"] = "Mutated"
	again, err := m.Get(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", again["name"])

	assert.Equal(t, 1, m.Len())
}
