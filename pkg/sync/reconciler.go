// Package sync reconciles a batch of scraped records against the external
// store: fetch by identifier, diff, and apply the minimal set of upserts.
// The whole pass is idempotent, so a cancelled or repeated run is always
// safe to re-apply.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cslcapital/portsync/pkg/record"
	"github.com/cslcapital/portsync/pkg/store"
)

// Config holds reconciler settings.
type Config struct {
	// Workers bounds the number of concurrent store writes. Records are
	// independent after dedupe, so the pool never reorders a duplicate
	// identifier. Default 4.
	Workers int
}

// Reconciler diffs batches against the external store and applies upserts.
type Reconciler struct {
	store   store.Store
	workers int
	logger  zerolog.Logger
}

// New creates a reconciler over the given store.
func New(st store.Store, cfg Config, logger zerolog.Logger) *Reconciler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Reconciler{
		store:   st,
		workers: workers,
		logger:  logger.With().Str("component", "reconciler").Logger(),
	}
}

// Sync applies one batch. Duplicate identifiers are resolved last-write-wins
// before any write is dispatched. A per-record write failure is logged and
// counted but never aborts the batch; the error return is reserved for
// context cancellation.
func (r *Reconciler) Sync(ctx context.Context, batch record.Batch) (record.SyncResult, error) {
	batch.Dedupe()

	var (
		result record.SyncResult
		mu     sync.Mutex
		wg     sync.WaitGroup
		sem    = make(chan struct{}, r.workers)
	)

	for _, rec := range batch.Records {
		if err := ctx.Err(); err != nil {
			// Already-applied writes stand; the next run picks up where
			// this one stopped because sync is idempotent.
			wg.Wait()
			return result, fmt.Errorf("sync: cancelled: %w", err)
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(rec record.Record) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := r.syncOne(ctx, rec)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				r.logger.Error().
					Err(err).
					Str("deal_id", rec.ID).
					Msg("Record write failed")
				return
			}
			switch outcome {
			case outcomeCreated:
				result.Created++
			case outcomeUpdated:
				result.Updated++
			case outcomeUnchanged:
				result.Unchanged++
			}
		}(rec)
	}

	wg.Wait()

	r.logger.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("unchanged", result.Unchanged).
		Int("failed", result.Failed).
		Msg("Batch reconciled")

	return result, nil
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeUpdated
	outcomeUnchanged
)

// syncOne fetches the stored entry for one record and writes only when the
// content differs. Unchanged records get no write at all, which preserves
// any store-managed modification timestamps.
func (r *Reconciler) syncOne(ctx context.Context, rec record.Record) (outcome, error) {
	existing, err := r.store.Get(ctx, rec.ID)
	if errors.Is(err, store.ErrNotFound) {
		if err := r.store.Upsert(ctx, rec.ID, rec.Fields); err != nil {
			return 0, err
		}
		return outcomeCreated, nil
	}
	if err != nil {
		return 0, err
	}

	if fieldsEqual(rec.Fields, existing) {
		return outcomeUnchanged, nil
	}

	if err := r.store.Upsert(ctx, rec.ID, rec.Fields); err != nil {
		return 0, err
	}
	return outcomeUpdated, nil
}

// fieldsEqual compares the scraped fields against the stored entry. Stored
// columns the scraper does not produce (store-managed metadata) are ignored;
// a scraped field that is missing or different in the store is a change.
func fieldsEqual(scraped, stored map[string]string) bool {
	for k, v := range scraped {
		if stored[k] != v {
			return false
		}
	}
	return true
}
