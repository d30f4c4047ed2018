package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cslcapital/portsync/pkg/record"
)

// SQLiteStore is a local backend used for development runs and as the run
// ledger. Deals live in one table keyed by identifier; every pipeline run
// is recorded in extraction_runs for `portsync status` and post-mortems.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS deals (
	deal_id    TEXT PRIMARY KEY,
	fields     TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS extraction_runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	status      TEXT NOT NULL,
	pages       INTEGER NOT NULL DEFAULT 0,
	created     INTEGER NOT NULL DEFAULT 0,
	updated     INTEGER NOT NULL DEFAULT 0,
	unchanged   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	error       TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON extraction_runs(started_at DESC);
`

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get fetches the stored field map for an identifier.
func (s *SQLiteStore) Get(ctx context.Context, id string) (map[string]string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT fields FROM deals WHERE deal_id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}
	var fields map[string]string
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("store: decode fields for %s: %w", id, err)
	}
	return fields, nil
}

// Upsert inserts or overwrites the fields stored under an identifier.
func (s *SQLiteStore) Upsert(ctx context.Context, id string, fields map[string]string) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("store: marshal fields for %s: %w", id, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO deals (deal_id, fields, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(deal_id) DO UPDATE SET fields = excluded.fields, updated_at = excluded.updated_at`,
		id, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: upsert %s: %w", id, err)
	}
	return nil
}

// RunRecord is one row of the extraction run ledger.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Pages      int
	Result     record.SyncResult
	Error      string
}

// StartRun records the beginning of a pipeline run.
func (s *SQLiteStore) StartRun(ctx context.Context, runID string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO extraction_runs (id, started_at, status) VALUES (?, ?, 'running')`,
		runID, startedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: start run %s: %w", runID, err)
	}
	return nil
}

// FinishRun records the outcome of a pipeline run.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID, status string, pages int, result record.SyncResult, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE extraction_runs
		SET finished_at = ?, status = ?, pages = ?,
		    created = ?, updated = ?, unchanged = ?, failed = ?, skipped = ?, error = ?
		WHERE id = ?`,
		time.Now().UTC(), status, pages,
		result.Created, result.Updated, result.Unchanged, result.Failed, result.Skipped,
		nullable(errMsg), runID)
	if err != nil {
		return fmt.Errorf("store: finish run %s: %w", runID, err)
	}
	return nil
}

// RecentRuns returns the most recent ledger entries, newest first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, pages,
		       created, updated, unchanged, failed, skipped, COALESCE(error, '')
		FROM extraction_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Status, &r.Pages,
			&r.Result.Created, &r.Result.Updated, &r.Result.Unchanged,
			&r.Result.Failed, &r.Result.Skipped, &r.Error); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
