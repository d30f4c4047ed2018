// Package store abstracts the external keyed store the pipeline syncs
// into. The pipeline never assumes exclusive ownership of the store and
// never assumes multi-record transactions: the whole contract is get by
// identifier and upsert by identifier.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no entry exists for the identifier.
var ErrNotFound = errors.New("store: record not found")

// Store is the keyed upsert capability offered by the external system.
type Store interface {
	// Get fetches the stored field map for an identifier, or ErrNotFound.
	Get(ctx context.Context, id string) (map[string]string, error)
	// Upsert inserts or overwrites the fields stored under an identifier.
	Upsert(ctx context.Context, id string, fields map[string]string) error
}
