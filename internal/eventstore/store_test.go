package eventstore

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	rec := RunRecord{
		RunID:   "run-abc",
		JobID:   "4711",
		JobName: "transit-search",
		RunDir:  "/runs/run-20260101-abc",
	}
	if err := store.RecordRun(ctx, rec); err != nil {
		t.Fatalf("record run: %v", err)
	}

	got, err := store.GetRun(ctx, "run-abc")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.JobID != "4711" {
		t.Errorf("expected job_id 4711, got %s", got.JobID)
	}
	if got.Outcome != OutcomeRunning {
		t.Errorf("expected outcome %q for fresh run, got %q", OutcomeRunning, got.Outcome)
	}
	if got.Finished() {
		t.Error("fresh run should not be finished")
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRun(t.Context(), "nope")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestFinishRun(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	if err := store.RecordRun(ctx, RunRecord{RunID: "run-1"}); err != nil {
		t.Fatalf("record run: %v", err)
	}

	finished := time.Now()
	if err := store.FinishRun(ctx, "run-1", "success", finished); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Outcome != "success" {
		t.Errorf("expected outcome success, got %s", got.Outcome)
	}
	if !got.Finished() {
		t.Error("run should be finished")
	}

	if err := store.FinishRun(ctx, "missing", "failed", finished); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound for unknown run, got %v", err)
	}
}

func TestUpsertRunInsertsAndUpdates(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	finished := time.Now()
	rec := RunRecord{RunID: "run-u", RunDir: "/runs/x", Outcome: "failed", FinishedAt: &finished}
	if err := store.UpsertRun(ctx, rec); err != nil {
		t.Fatalf("upsert insert: %v", err)
	}

	got, err := store.GetRun(ctx, "run-u")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Outcome != "failed" || !got.Finished() {
		t.Errorf("unexpected row after insert: %+v", got)
	}

	// A later reconciliation with empty job fields must not erase them.
	if err := store.UpsertRun(ctx, RunRecord{RunID: "run-u", JobID: "99", Outcome: "failed", FinishedAt: &finished}); err != nil {
		t.Fatalf("upsert with job id: %v", err)
	}
	if err := store.UpsertRun(ctx, RunRecord{RunID: "run-u", Outcome: "success", FinishedAt: &finished}); err != nil {
		t.Fatalf("upsert update: %v", err)
	}

	got, err = store.GetRun(ctx, "run-u")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Outcome != "success" {
		t.Errorf("expected outcome updated to success, got %s", got.Outcome)
	}
	if got.JobID != "99" {
		t.Errorf("expected job_id preserved as 99, got %q", got.JobID)
	}
}

func TestAppendAndEventsFor(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	names := []string{EventRunCreated, EventPoolStarted, EventPoolReady, EventRunFinished}
	for _, name := range names {
		if err := store.Append(ctx, "run-e", name, map[string]any{"n": name}); err != nil {
			t.Fatalf("append %s: %v", name, err)
		}
	}
	if err := store.Append(ctx, "other-run", EventRunCreated, nil); err != nil {
		t.Fatalf("append other: %v", err)
	}

	events, err := store.EventsFor(ctx, "run-e")
	if err != nil {
		t.Fatalf("events for: %v", err)
	}
	if len(events) != len(names) {
		t.Fatalf("expected %d events, got %d", len(names), len(events))
	}
	for i, e := range events {
		if e.Name != names[i] {
			t.Errorf("event %d: expected %s, got %s", i, names[i], e.Name)
		}
		if e.Detail["n"] != names[i] {
			t.Errorf("event %d: detail mismatch: %v", i, e.Detail)
		}
	}
}

func TestEventsForEmptyRun(t *testing.T) {
	store := newTestStore(t)

	events, err := store.EventsFor(t.Context(), "never-seen")
	if err != nil {
		t.Fatalf("events for: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	base := time.Now().Add(-time.Hour)
	for i := range 5 {
		rec := RunRecord{
			RunID:     string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.RecordRun(ctx, rec); err != nil {
			t.Fatalf("record run %d: %v", i, err)
		}
	}

	runs, err := store.ListRuns(ctx, 3)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].RunID != "e" || runs[1].RunID != "d" || runs[2].RunID != "c" {
		t.Errorf("unexpected order: %s %s %s", runs[0].RunID, runs[1].RunID, runs[2].RunID)
	}
}

func TestCountByOutcome(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	now := time.Now()
	for i, outcome := range []string{"success", "success", "failed", OutcomeRunning} {
		rec := RunRecord{RunID: string(rune('a' + i)), Outcome: outcome}
		if outcome != OutcomeRunning {
			rec.FinishedAt = &now
		}
		if err := store.UpsertRun(ctx, rec); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	counts, err := store.CountByOutcome(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts["success"] != 2 || counts["failed"] != 1 || counts[OutcomeRunning] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "registry", "runs.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	if err := store.RecordRun(t.Context(), RunRecord{RunID: "persist-me"}); err != nil {
		t.Fatalf("record run: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, err := reopened.GetRun(t.Context(), "persist-me")
	if err != nil {
		t.Fatalf("get run after reopen: %v", err)
	}
	if got.RunID != "persist-me" {
		t.Errorf("unexpected run: %+v", got)
	}
}
