package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/poolpilot/internal/config"
	"git.home.luguber.info/inful/poolpilot/internal/eventstore"
	"git.home.luguber.info/inful/poolpilot/internal/logfields"
	"git.home.luguber.info/inful/poolpilot/internal/run"
	"git.home.luguber.info/inful/poolpilot/internal/sched"
)

// SubmitCmd implements the 'submit' command.
type SubmitCmd struct {
	DryRun bool `help:"Render the batch script without submitting it"`
}

func (s *SubmitCmd) Run(_ *Global, root *CLI) error {
	cfg, err := LoadConfig(root)
	if err != nil {
		return err
	}
	return RunSubmit(context.Background(), cfg, root.Config, s.DryRun)
}

// RunSubmit creates a run directory, renders the batch script whose payload
// re-invokes poolpilot inside the allocation, and hands it to the scheduler.
func RunSubmit(ctx context.Context, cfg *config.Config, configPath string, dryRun bool) error {
	ws := run.NewManager(cfg.Runs.BaseDir)
	if err := ws.Create(); err != nil {
		return err
	}
	paths := ws.Paths()

	absConfig, err := filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	payload := fmt.Sprintf("poolpilot run --config %s --run-dir %s --run-id %s",
		absConfig, paths.Dir, ws.ID())

	directives := sched.FromConfig(cfg.Scheduler, filepath.Join(paths.Dir, "slurm-%j.out"))
	script, err := sched.RenderScript(directives, payload)
	if err != nil {
		return err
	}
	if err := sched.WriteScript(paths.SubmitScript(), script); err != nil {
		return err
	}

	if dryRun {
		fmt.Print(script)
		fmt.Printf("Batch script written to %s (not submitted)\n", paths.SubmitScript())
		return nil
	}

	sub, err := sched.Submit(ctx, cfg.Scheduler.SbatchBin, paths.SubmitScript())
	if err != nil {
		return err
	}
	recordSubmission(ctx, cfg, ws, sub)

	fmt.Printf("Submitted batch job %s\n", sub.JobID)
	fmt.Printf("Run %s will execute in %s\n", run.ShortID(ws.ID()), paths.Dir)
	return nil
}

// recordSubmission registers the queued run so status shows it before the
// job starts. Registry trouble only warns; the job is already queued.
func recordSubmission(ctx context.Context, cfg *config.Config, ws *run.Manager, sub sched.Submission) {
	store, err := OpenRegistry(cfg)
	if err != nil {
		slog.Warn("Run registry unavailable", logfields.Path(cfg.Registry.Path), logfields.Error(err))
		return
	}
	defer store.Close()

	rec := eventstore.RunRecord{
		RunID:     ws.ID(),
		JobID:     sub.JobID,
		JobName:   sched.SanitizeJobName(cfg.Scheduler.JobName),
		RunDir:    ws.Paths().Dir,
		Outcome:   eventstore.OutcomeRunning,
		CreatedAt: time.Now(),
	}
	if err := store.RecordRun(ctx, rec); err != nil {
		slog.Warn("Run registration failed", logfields.RunID(ws.ID()), logfields.Error(err))
		return
	}
	detail := map[string]any{"job_id": sub.JobID}
	if err := store.Append(ctx, ws.ID(), eventstore.EventSubmitted, detail); err != nil {
		slog.Warn("Run event append failed", logfields.RunID(ws.ID()), logfields.Error(err))
	}
}
