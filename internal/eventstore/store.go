// Package eventstore persists the run registry: one row per run plus an
// append-only lifecycle event log, in a local SQLite database. The registry
// is observability only; a run proceeds even when it is unavailable.
package eventstore

import (
	"context"
	"time"
)

// Store defines the run registry operations.
type Store interface {
	// RecordRun inserts the registry row for a freshly created run.
	RecordRun(ctx context.Context, rec RunRecord) error

	// FinishRun marks a run terminal with its report outcome.
	FinishRun(ctx context.Context, runID, outcome string, finishedAt time.Time) error

	// UpsertRun inserts or refreshes a row from reconciled report data.
	UpsertRun(ctx context.Context, rec RunRecord) error

	// Append adds a lifecycle event to a run's log.
	Append(ctx context.Context, runID, event string, detail map[string]any) error

	// EventsFor returns a run's events in recording order.
	EventsFor(ctx context.Context, runID string) ([]Event, error)

	// ListRuns returns up to limit runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// GetRun returns one run or ErrRunNotFound.
	GetRun(ctx context.Context, runID string) (*RunRecord, error)

	// CountByOutcome aggregates registry rows per outcome.
	CountByOutcome(ctx context.Context) (map[string]int, error)

	// Close closes the store and releases resources.
	Close() error
}
