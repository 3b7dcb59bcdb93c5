package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the registry database. Use ":memory:"
// for an in-memory registry, or a file path for persistent storage; parent
// directories are created as needed.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create registry directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}
	// One connection keeps ":memory:" databases from splitting per pooled
	// conn and sidesteps SQLITE_BUSY between concurrent writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	// WAL lets the daemon read while a run is writing; the busy timeout
	// covers the short overlap when both touch the same row.
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL DEFAULT '',
		job_name TEXT NOT NULL DEFAULT '',
		run_dir TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL DEFAULT 'running',
		created_at INTEGER NOT NULL,
		finished_at INTEGER
	);
	CREATE TABLE IF NOT EXISTS run_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		event TEXT NOT NULL,
		detail TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordRun inserts the registry row for a freshly created run.
func (s *SQLiteStore) RecordRun(ctx context.Context, rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Outcome == "" {
		rec.Outcome = OutcomeRunning
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (run_id, job_id, job_name, run_dir, outcome, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		rec.RunID, rec.JobID, rec.JobName, rec.RunDir, rec.Outcome, created.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun marks a run terminal with its report outcome.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID, outcome string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET outcome = ?, finished_at = ? WHERE run_id = ?",
		outcome, finishedAt.Unix(), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// UpsertRun inserts or refreshes a row from reconciled report data. Empty
// job fields never overwrite known values; the sweep may see a report
// before the submission metadata lands.
func (s *SQLiteStore) UpsertRun(ctx context.Context, rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Outcome == "" {
		rec.Outcome = OutcomeRunning
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	var finished any
	if rec.FinishedAt != nil {
		finished = rec.FinishedAt.Unix()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, job_id, job_name, run_dir, outcome, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			job_id = CASE WHEN excluded.job_id != '' THEN excluded.job_id ELSE runs.job_id END,
			job_name = CASE WHEN excluded.job_name != '' THEN excluded.job_name ELSE runs.job_name END,
			run_dir = CASE WHEN excluded.run_dir != '' THEN excluded.run_dir ELSE runs.run_dir END,
			outcome = excluded.outcome,
			finished_at = excluded.finished_at`,
		rec.RunID, rec.JobID, rec.JobName, rec.RunDir, rec.Outcome, created.Unix(), finished,
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// Append adds a lifecycle event to a run's log.
func (s *SQLiteStore) Append(ctx context.Context, runID, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var detailJSON []byte
	if detail != nil {
		var err error
		detailJSON, err = json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshal event detail: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO run_events (run_id, event, detail, created_at) VALUES (?, ?, ?, ?)",
		runID, event, detailJSON, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// EventsFor returns a run's events in recording order.
func (s *SQLiteStore) EventsFor(ctx context.Context, runID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, run_id, event, detail, created_at FROM run_events WHERE run_id = ? ORDER BY seq",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var detailJSON []byte
		var createdUnix int64
		if err := rows.Scan(&e.Seq, &e.RunID, &e.Name, &detailJSON, &createdUnix); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.CreatedAt = time.Unix(createdUnix, 0)
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal event detail: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return events, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id, job_id, job_name, run_dir, outcome, created_at, finished_at FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return recs, nil
}

// GetRun returns one run or ErrRunNotFound.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id, job_id, job_name, run_dir, outcome, created_at, finished_at FROM runs WHERE run_id = ?",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate rows: %w", err)
		}
		return nil, ErrRunNotFound
	}
	rec, err := scanRun(rows)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CountByOutcome aggregates registry rows per outcome.
func (s *SQLiteStore) CountByOutcome(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT outcome, COUNT(*) FROM runs GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[outcome] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return counts, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func scanRun(rows *sql.Rows) (RunRecord, error) {
	var rec RunRecord
	var createdUnix int64
	var finishedUnix sql.NullInt64
	if err := rows.Scan(&rec.RunID, &rec.JobID, &rec.JobName, &rec.RunDir, &rec.Outcome, &createdUnix, &finishedUnix); err != nil {
		return rec, fmt.Errorf("scan run: %w", err)
	}
	rec.CreatedAt = time.Unix(createdUnix, 0)
	if finishedUnix.Valid {
		t := time.Unix(finishedUnix.Int64, 0)
		rec.FinishedAt = &t
	}
	return rec, nil
}
