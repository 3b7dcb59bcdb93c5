// Package pipeline executes a pilot run as an ordered series of stages with
// unconditional finalizers. The stages start the worker pool, wait for its
// readiness marker, dispatch the analysis program, and always tear the pool
// down and persist a run report afterwards, whatever happened in between.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/poolpilot/internal/analysis"
	"git.home.luguber.info/inful/poolpilot/internal/config"
	perrors "git.home.luguber.info/inful/poolpilot/internal/errors"
	"git.home.luguber.info/inful/poolpilot/internal/logfields"
	"git.home.luguber.info/inful/poolpilot/internal/metrics"
	"git.home.luguber.info/inful/poolpilot/internal/pool"
	"git.home.luguber.info/inful/poolpilot/internal/provenance"
	"git.home.luguber.info/inful/poolpilot/internal/retry"
	"git.home.luguber.info/inful/poolpilot/internal/run"
	"git.home.luguber.info/inful/poolpilot/internal/sched"
)

// Orchestrator assembles and executes the run plan for one pilot run.
type Orchestrator struct {
	cfg      *config.Config
	ws       *run.Manager
	observer Observer
	recorder metrics.Recorder
	startup  []startupIssue
}

// startupIssue is a warning recorded on the report before any stage runs,
// typically registry or notifier trouble during command setup.
type startupIssue struct {
	code  IssueCode
	msg   string
	cause error
}

// NewOrchestrator creates an orchestrator for the given workspace.
func NewOrchestrator(cfg *config.Config, ws *run.Manager) *Orchestrator {
	return &Orchestrator{cfg: cfg, ws: ws}
}

// WithObserver installs an observer for run lifecycle callbacks.
func (o *Orchestrator) WithObserver(obs Observer) *Orchestrator {
	o.observer = obs
	return o
}

// WithRecorder installs a metrics recorder.
func (o *Orchestrator) WithRecorder(rec metrics.Recorder) *Orchestrator {
	o.recorder = rec
	return o
}

// WithStartupIssue records a pre-pipeline warning on the run report.
// Observability failures must not block the run, but they should show up in
// the report.
func (o *Orchestrator) WithStartupIssue(code IssueCode, msg string, cause error) *Orchestrator {
	o.startup = append(o.startup, startupIssue{code: code, msg: msg, cause: cause})
	return o
}

// Execute runs the full plan and returns the report in every case. The
// error is the aborting stage error, nil when the run succeeded (teardown
// warnings included).
func (o *Orchestrator) Execute(ctx context.Context) (*RunReport, error) {
	if err := o.ws.Create(); err != nil {
		return nil, perrors.WorkspaceError("create run directory", err)
	}
	paths := o.ws.Paths()

	report := NewRunReport(o.ws.ID(), paths.Dir)
	report.Nodes = o.cfg.Scheduler.Nodes
	report.Engines = o.cfg.Pool.Engines
	report.WorkItems = o.cfg.Analysis.WorkItems
	report.JobName = o.cfg.Scheduler.JobName
	if env := sched.ReadJobEnv(); env.InAllocation() {
		report.JobID = env.JobID
		report.NodeList = env.NodeList
		if env.JobName != "" {
			report.JobName = env.JobName
		}
	}
	for _, si := range o.startup {
		report.AddIssue(si.code, StagePrepare, SeverityWarning, si.msg, true, si.cause)
	}

	rs := NewRunState(o.cfg, report, paths)
	rs.SetObserver(o.composedObserver())
	rs.SetRecorder(o.recorder)

	plan := NewPlan().
		Add(StagePrepare, o.stagePrepare).
		Add(StageStartPool, o.stageStartPool).
		Add(StageAwaitReady, o.stageAwaitReady).
		Add(StageRunAnalysis, o.stageRunAnalysis).
		Finally(StageStopPool, o.finalizeStopPool).
		Finally(StagePersistReport, o.finalizePersistReport)

	err := RunStages(ctx, rs, plan)
	return rs.Report, err
}

// composedObserver folds the metrics recorder into the observer chain so an
// installed recorder receives stage durations and run totals without the
// caller wiring a RecorderObserver by hand.
func (o *Orchestrator) composedObserver() Observer {
	if o.recorder == nil {
		return o.observer
	}
	ro := RecorderObserver{Recorder: o.recorder}
	if o.observer == nil {
		return ro
	}
	return MultiObserver{o.observer, ro}
}

// stagePrepare captures provenance of the analysis source and materializes
// the profile directory from its template.
func (o *Orchestrator) stagePrepare(_ context.Context, rs *RunState) error {
	if srcDir := rs.Config.Analysis.SourceDir; srcDir != "" {
		info, err := provenance.Capture(srcDir)
		if err != nil {
			slog.Warn("Provenance capture failed", logfields.Dir(srcDir), logfields.Error(err))
		} else if info != nil {
			rs.Report.Provenance = info
			slog.Debug("Captured analysis provenance", logfields.Name(info.Describe()))
		}
	}

	if _, err := o.ws.PrepareProfile(rs.Config.Runs.ProfileTemplate); err != nil {
		return NewFatalStageError(StagePrepare, IssueProfileTemplateMissing,
			perrors.WorkspaceError("prepare profile", err))
	}
	return nil
}

func (o *Orchestrator) stageStartPool(_ context.Context, rs *RunState) error {
	m := pool.NewManager(pool.Options{
		Bin:        rs.Config.Pool.Bin,
		ProfileDir: rs.Paths.ProfileDir(),
		Engines:    rs.Config.Pool.Engines,
		LogPath:    rs.Paths.PoolLog(),
		ExtraArgs:  rs.Config.Pool.ExtraArgs,
	})
	if err := m.Start(); err != nil {
		return NewFatalStageError(StageStartPool, IssuePoolStartFailed, err)
	}
	rs.Pool = m
	return nil
}

func (o *Orchestrator) stageAwaitReady(ctx context.Context, rs *RunState) error {
	policy := retry.FixedEvery(rs.Config.Pool.PollDelayDuration(), rs.Config.Pool.PollAttempts)
	res, err := pool.AwaitReady(ctx, rs.Paths.PoolLog(), rs.Config.Pool.ReadyMarker, policy)
	rs.Report.ReadyAttempts = res.Attempts

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return NewCanceledStageError(StageAwaitReady, IssuePoolWaitCanceled, err)
		}
		for path, lines := range pool.Diagnostics(20, rs.Paths.PoolLog(), rs.Paths.EngineLog()) {
			slog.Warn("Pool log tail", logfields.Path(path), slog.String("tail", strings.Join(lines, "\n")))
		}
		if werr := analysis.WriteFailureMessage(rs.Paths.OutputLog()); werr != nil {
			slog.Warn("Failed to write failure message", logfields.Path(rs.Paths.OutputLog()), logfields.Error(werr))
		}
		return NewFatalStageError(StageAwaitReady, IssuePoolNotReady, err)
	}

	rs.Report.PoolReady = true
	rs.Report.ReadyMarkerLine = res.MarkerLine
	return nil
}

func (o *Orchestrator) stageRunAnalysis(ctx context.Context, rs *RunState) error {
	inv := analysis.Invocation{
		Interpreter: rs.Config.Analysis.Interpreter,
		Program:     rs.Config.Analysis.Program,
		RunDir:      rs.Paths.Dir,
		WorkItems:   rs.Config.Analysis.WorkItems,
		ProfileDir:  rs.Paths.ProfileDir(),
		OutputPath:  rs.Paths.OutputLog(),
		WorkDir:     rs.Config.Analysis.SourceDir,
		DataDirEnv:  rs.Config.Analysis.DataDirEnv,
		DataDir:     rs.Config.Analysis.DataDir,
		PathPrepend: rs.Config.Analysis.PathPrepend,
		ExtraEnv:    rs.Config.Analysis.Env,
		RunID:       rs.Report.RunID,
	}

	res, err := analysis.Run(ctx, inv)
	rs.Report.AnalysisExitCode = res.ExitCode
	rs.Report.AnalysisRan = res.ExitCode >= 0

	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewCanceledStageError(StageRunAnalysis, IssueRunCanceled, err)
	}
	// AnalysisExitError carries exit_code context; anything else failed
	// before producing an exit status.
	var ppe *perrors.PoolPilotError
	if errors.As(err, &ppe) {
		if _, ok := ppe.Context["exit_code"]; ok {
			return NewFatalStageError(StageRunAnalysis, IssueAnalysisExitNonzero, err)
		}
	}
	return NewFatalStageError(StageRunAnalysis, IssueAnalysisStartFailed, err)
}

// finalizeStopPool tears the pool down with its own timeout, decoupled from
// the run context so cancellation cannot skip teardown.
func (o *Orchestrator) finalizeStopPool(ctx context.Context, rs *RunState) error {
	if rs.Pool == nil {
		return nil
	}
	stopCtx, cancel := context.WithTimeout(ctx, rs.Config.Pool.StopTimeoutDuration())
	defer cancel()

	if err := rs.Pool.Stop(stopCtx); err != nil {
		return NewWarnStageError(StageStopPool, IssueTeardownFailed, err)
	}
	slog.Info("Worker pool stopped", logfields.RunID(run.ShortID(rs.Report.RunID)))
	return nil
}

func (o *Orchestrator) finalizePersistReport(_ context.Context, rs *RunState) error {
	rs.Report.Finish()
	rs.Report.DeriveOutcome()
	if err := rs.Report.Persist(rs.Paths.Dir); err != nil {
		slog.Warn("Report persistence failed", logfields.Path(rs.Paths.Dir), logfields.Error(err))
		return NewWarnStageError(StagePersistReport, IssueReportPersistFailed,
			perrors.StorageError("persist report", err))
	}
	slog.Info("Run report persisted",
		logfields.RunID(run.ShortID(rs.Report.RunID)),
		logfields.Outcome(string(rs.Report.Outcome)),
		logfields.Path(rs.Paths.ReportJSON()))
	return nil
}
