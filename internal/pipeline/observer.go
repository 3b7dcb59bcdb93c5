package pipeline

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/poolpilot/internal/eventstore"
	"git.home.luguber.info/inful/poolpilot/internal/logfields"
	"git.home.luguber.info/inful/poolpilot/internal/metrics"
)

// Observer receives callbacks around stage execution and run lifecycle.
// It intentionally abstracts away the metrics.Recorder so other observers
// (registry, notifications, tracing) can hook in without changing stage code.
type Observer interface {
	OnStageStart(stage StageName)
	OnStageComplete(stage StageName, duration time.Duration, result StageResult)
	OnRunComplete(report *RunReport)
}

// NoopObserver is a no-op implementation.
type NoopObserver struct{}

func (NoopObserver) OnStageStart(_ StageName)                                    {}
func (NoopObserver) OnStageComplete(_ StageName, _ time.Duration, _ StageResult) {}
func (NoopObserver) OnRunComplete(_ *RunReport)                                  {}

// MultiObserver fans callbacks out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) OnStageStart(stage StageName) {
	for _, o := range m {
		o.OnStageStart(stage)
	}
}

func (m MultiObserver) OnStageComplete(stage StageName, d time.Duration, res StageResult) {
	for _, o := range m {
		o.OnStageComplete(stage, d, res)
	}
}

func (m MultiObserver) OnRunComplete(report *RunReport) {
	for _, o := range m {
		o.OnRunComplete(report)
	}
}

// RecorderObserver adapts metrics.Recorder into an Observer.
type RecorderObserver struct{ Recorder metrics.Recorder }

func (r RecorderObserver) OnStageStart(_ StageName) {}

func (r RecorderObserver) OnStageComplete(stage StageName, d time.Duration, _ StageResult) {
	if r.Recorder != nil {
		r.Recorder.ObserveStageDuration(string(stage), d)
	}
}

func (r RecorderObserver) OnRunComplete(report *RunReport) {
	if r.Recorder == nil {
		return
	}
	r.Recorder.ObserveRunDuration(report.End.Sub(report.Start))
	r.Recorder.IncRunOutcome(string(report.Outcome))
	if report.ReadyAttempts > 0 {
		r.Recorder.ObserveReadinessAttempts(report.ReadyAttempts)
		r.Recorder.IncReadinessResult(report.PoolReady)
	}
	if report.AnalysisRan {
		r.Recorder.IncAnalysisExit(report.AnalysisExitCode)
	}
}

// RegistryObserver mirrors stage lifecycle into the run registry. Every
// store error is logged and swallowed; the registry never breaks a run.
type RegistryObserver struct {
	Store eventstore.Store
	RunID string
}

func (o RegistryObserver) OnStageStart(stage StageName) {
	if stage == StageRunAnalysis {
		o.append(eventstore.EventAnalysisStarted, nil)
	}
}

func (o RegistryObserver) OnStageComplete(stage StageName, d time.Duration, res StageResult) {
	detail := map[string]any{"result": string(res), "duration_ms": d.Milliseconds()}
	switch stage {
	case StageStartPool:
		if res == StageResultSuccess {
			o.append(eventstore.EventPoolStarted, detail)
		}
	case StageAwaitReady:
		if res == StageResultSuccess {
			o.append(eventstore.EventPoolReady, detail)
		} else if res == StageResultFatal {
			o.append(eventstore.EventPoolNotReady, detail)
		}
	case StageRunAnalysis:
		o.append(eventstore.EventAnalysisFinished, detail)
	case StageStopPool:
		if res == StageResultSuccess {
			o.append(eventstore.EventTeardownDone, detail)
		} else {
			o.append(eventstore.EventTeardownFailed, detail)
		}
	case StagePrepare, StagePersistReport:
		// Not mirrored; run_created and run_finished bracket these.
	}
}

func (o RegistryObserver) OnRunComplete(report *RunReport) {
	if o.Store == nil {
		return
	}
	detail := map[string]any{
		"outcome":        string(report.Outcome),
		"ready_attempts": report.ReadyAttempts,
	}
	if report.AnalysisRan {
		detail["analysis_exit_code"] = report.AnalysisExitCode
	}
	o.append(eventstore.EventRunFinished, detail)
	if err := o.Store.FinishRun(context.Background(), o.RunID, string(report.Outcome), report.End); err != nil {
		slog.Warn("Registry finish failed", logfields.RunID(o.RunID), logfields.Error(err))
	}
}

func (o RegistryObserver) append(event string, detail map[string]any) {
	if o.Store == nil {
		return
	}
	if err := o.Store.Append(context.Background(), o.RunID, event, detail); err != nil {
		slog.Warn("Registry append failed", logfields.RunID(o.RunID), logfields.Event(event), logfields.Error(err))
	}
}
