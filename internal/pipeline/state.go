package pipeline

import (
	"git.home.luguber.info/inful/poolpilot/internal/config"
	"git.home.luguber.info/inful/poolpilot/internal/metrics"
	"git.home.luguber.info/inful/poolpilot/internal/pool"
	"git.home.luguber.info/inful/poolpilot/internal/run"
)

// RunState carries everything stages need while a run executes.
type RunState struct {
	Config *config.Config
	Report *RunReport
	Paths  run.Paths

	// Pool is the live worker-pool process handle. start_pool sets it;
	// stop_pool consumes it. Nil when the pool never started.
	Pool *pool.Manager

	observer Observer
	recorder metrics.Recorder
}

// NewRunState wires a state for the given run.
func NewRunState(cfg *config.Config, report *RunReport, paths run.Paths) *RunState {
	return &RunState{Config: cfg, Report: report, Paths: paths}
}

// Observer returns the configured observer, never nil.
func (rs *RunState) Observer() Observer {
	if rs.observer == nil {
		return NoopObserver{}
	}
	return rs.observer
}

// SetObserver installs an observer for stage lifecycle callbacks.
func (rs *RunState) SetObserver(o Observer) { rs.observer = o }

// Recorder returns the configured metrics recorder, never nil.
func (rs *RunState) Recorder() metrics.Recorder {
	if rs.recorder == nil {
		return metrics.NoopRecorder{}
	}
	return rs.recorder
}

// SetRecorder installs a metrics recorder.
func (rs *RunState) SetRecorder(r metrics.Recorder) { rs.recorder = r }
