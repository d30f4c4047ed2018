package store

import (
	"context"
	"sync"
)

// MemStore is an in-process store used by dry runs and tests. Writes go
// nowhere durable; the sync engine cannot tell the difference.
type MemStore struct {
	mu   sync.RWMutex
	rows map[string]map[string]string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[string]map[string]string)}
}

// Get fetches the stored field map for an identifier.
func (m *MemStore) Get(ctx context.Context, id string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(map[string]string, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out, nil
}

// Upsert inserts or overwrites the fields stored under an identifier.
func (m *MemStore) Upsert(ctx context.Context, id string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := make(map[string]string, len(fields))
	for k, v := range fields {
		row[k] = v
	}
	m.rows[id] = row
	return nil
}

// Len returns the number of stored records.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}
