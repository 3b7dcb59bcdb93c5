package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/poolpilot/internal/config"
	"git.home.luguber.info/inful/poolpilot/internal/eventstore"
	"git.home.luguber.info/inful/poolpilot/internal/logfields"
	"git.home.luguber.info/inful/poolpilot/internal/notify"
	"git.home.luguber.info/inful/poolpilot/internal/pipeline"
	"git.home.luguber.info/inful/poolpilot/internal/run"
	"git.home.luguber.info/inful/poolpilot/internal/sched"
)

// RunCmd implements the 'run' command.
type RunCmd struct {
	RunDir    string `help:"Existing run directory to attach to (submit creates one)" type:"path"`
	RunID     string `help:"Run identifier when attaching to an existing run directory"`
	WorkItems int    `help:"Override analysis.work_items for this run"`
}

func (r *RunCmd) Run(_ *Global, root *CLI) error {
	cfg, err := LoadConfig(root)
	if err != nil {
		return err
	}
	if r.WorkItems > 0 {
		cfg.Analysis.WorkItems = r.WorkItems
	}
	return RunPilot(cfg, r.RunDir, r.RunID)
}

// RunPilot executes one pilot run end to end: workspace, worker pool,
// analysis, teardown, report. The returned error decides the exit code; the
// batch contract is binary, so any pipeline error maps to 1.
func RunPilot(cfg *config.Config, runDir, runID string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var ws *run.Manager
	if runDir != "" {
		ws = run.Attach(runDir, runID)
	} else {
		ws = run.NewManager(cfg.Runs.BaseDir)
	}
	if err := ws.Create(); err != nil {
		return err
	}

	orch := pipeline.NewOrchestrator(cfg, ws)

	// Observability setup is best effort: a run proceeds without the
	// registry or notifier and carries a warning in its report instead.
	store, err := OpenRegistry(cfg)
	if err != nil {
		slog.Warn("Run registry unavailable", logfields.Path(cfg.Registry.Path), logfields.Error(err))
		orch.WithStartupIssue(pipeline.IssueRegistryUnavailable, "run registry could not be opened", err)
		store = nil
	}

	notifier, err := notify.New(cfg.Notify)
	if err != nil {
		slog.Warn("Lifecycle notifier unavailable", logfields.URL(cfg.Notify.NATSURL), logfields.Error(err))
		orch.WithStartupIssue(pipeline.IssueNotifyFailed, "lifecycle notifier could not connect", err)
		notifier = notify.Noop{}
	}
	defer notifier.Close()

	jobEnv := sched.ReadJobEnv()
	jobName := cfg.Scheduler.JobName
	if jobEnv.JobName != "" {
		jobName = jobEnv.JobName
	}

	if store != nil {
		defer store.Close()
		registerRun(ctx, store, ws, jobEnv.JobID, jobName)
		orch.WithObserver(&pipeline.RegistryObserver{Store: store, RunID: ws.ID()})
	}

	msg := notify.Message{
		RunID:   ws.ID(),
		JobID:   jobEnv.JobID,
		JobName: jobName,
		Event:   string(config.NotifyOnBegin),
		RunDir:  ws.Paths().Dir,
	}
	if err := notifier.Publish(ctx, msg); err != nil {
		slog.Warn("Begin notification failed", logfields.RunID(ws.ID()), logfields.Error(err))
		orch.WithStartupIssue(pipeline.IssueNotifyFailed, "begin notification was not delivered", err)
	}

	report, runErr := orch.Execute(ctx)

	if report != nil {
		// The report is already persisted here; a lost terminal
		// notification is log-only.
		msg.Event = string(notify.EventForOutcome(string(report.Outcome)))
		msg.Outcome = string(report.Outcome)
		msg.Timestamp = time.Now()
		if err := notifier.Publish(context.WithoutCancel(ctx), msg); err != nil {
			slog.Warn("Terminal notification failed", logfields.RunID(ws.ID()), logfields.Error(err))
		}
		fmt.Println(report.Summary())
	}

	return runErr
}

// registerRun records the run in the registry before the pipeline starts.
// Submit may already have inserted the row; the upsert keeps the original
// created_at and fills in what submit could not know yet.
func registerRun(ctx context.Context, store eventstore.Store, ws *run.Manager, jobID, jobName string) {
	rec := eventstore.RunRecord{
		RunID:     ws.ID(),
		JobID:     jobID,
		JobName:   jobName,
		RunDir:    ws.Paths().Dir,
		Outcome:   eventstore.OutcomeRunning,
		CreatedAt: time.Now(),
	}
	if err := store.UpsertRun(ctx, rec); err != nil {
		slog.Warn("Run registration failed", logfields.RunID(ws.ID()), logfields.Error(err))
		return
	}
	if err := store.Append(ctx, ws.ID(), eventstore.EventRunCreated, nil); err != nil {
		slog.Warn("Run event append failed", logfields.RunID(ws.ID()), logfields.Error(err))
	}
}
