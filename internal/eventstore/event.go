package eventstore

import "time"

// Canonical lifecycle event names recorded for a run. The set mirrors the
// stages a run moves through; consumers should tolerate unknown names.
const (
	EventRunCreated       = "run_created"
	EventSubmitted        = "submitted"
	EventPoolStarted      = "pool_started"
	EventPoolReady        = "pool_ready"
	EventPoolNotReady     = "pool_not_ready"
	EventAnalysisStarted  = "analysis_started"
	EventAnalysisFinished = "analysis_finished"
	EventTeardownDone     = "teardown_done"
	EventTeardownFailed   = "teardown_failed"
	EventRunFinished      = "run_finished"
)

// OutcomeRunning marks a registry row whose run has not finished yet.
// Terminal outcomes come from the run report verbatim.
const OutcomeRunning = "running"

// RunRecord is the registry row for a single run.
type RunRecord struct {
	RunID      string     `json:"run_id"`
	JobID      string     `json:"job_id,omitempty"`
	JobName    string     `json:"job_name,omitempty"`
	RunDir     string     `json:"run_dir,omitempty"`
	Outcome    string     `json:"outcome"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Finished reports whether the run has reached a terminal outcome.
func (r RunRecord) Finished() bool {
	return r.FinishedAt != nil
}

// Event is one recorded lifecycle event of a run.
type Event struct {
	Seq       int64          `json:"seq"`
	RunID     string         `json:"run_id"`
	Name      string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
