package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	perrors "git.home.luguber.info/inful/poolpilot/internal/errors"
	"git.home.luguber.info/inful/poolpilot/internal/eventstore"
	"git.home.luguber.info/inful/poolpilot/internal/metrics"
	"git.home.luguber.info/inful/poolpilot/internal/pipeline"
	"git.home.luguber.info/inful/poolpilot/internal/run"
)

// Sweeper reconciles persisted run reports into the registry. Runs submitted
// on other nodes, or executed while the registry was unavailable, become
// visible on the next sweep.
type Sweeper struct {
	baseDir  string
	store    eventstore.Store
	recorder metrics.Recorder

	mu   sync.Mutex
	seen map[string]string // run id -> last reconciled outcome
}

// NewSweeper creates a sweeper over the runs base directory.
func NewSweeper(baseDir string, store eventstore.Store, recorder metrics.Recorder) *Sweeper {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Sweeper{baseDir: baseDir, store: store, recorder: recorder, seen: make(map[string]string)}
}

// Sweep scans run directories for persisted reports and upserts a registry
// row per report. It returns the number of reconciled runs. Directories
// without a report (still running, or crashed before persisting) are skipped.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return 0, perrors.Wrap(err, perrors.CategoryDaemon, perrors.SeverityWarning, "scan runs directory")
	}

	reconciled := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "run-") {
			continue
		}
		runDir := filepath.Join(s.baseDir, entry.Name())
		report, lerr := pipeline.LoadReport(filepath.Join(runDir, run.ReportJSONName))
		if lerr != nil {
			continue
		}
		if report.RunID == "" {
			continue
		}

		rec := eventstore.RunRecord{
			RunID:     report.RunID,
			JobID:     report.JobID,
			JobName:   report.JobName,
			RunDir:    runDir,
			Outcome:   report.Outcome,
			CreatedAt: report.Start,
		}
		if !report.End.IsZero() {
			end := report.End
			rec.FinishedAt = &end
		}
		if uerr := s.store.UpsertRun(ctx, rec); uerr != nil {
			return reconciled, uerr
		}
		reconciled++
		s.observeReport(report)
	}
	return reconciled, nil
}

// observeReport feeds one run's metrics to the recorder. Reports are only
// persisted in terminal states, so each run is counted once; the dedupe map
// guards against re-reading the same report on every sweep tick.
func (s *Sweeper) observeReport(report *pipeline.RunReportSerializable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[report.RunID] == report.Outcome {
		return
	}
	s.seen[report.RunID] = report.Outcome

	s.recorder.IncRunOutcome(report.Outcome)
	if !report.End.IsZero() {
		s.recorder.ObserveRunDuration(report.End.Sub(report.Start))
	}
	for stage, d := range report.StageDurations {
		s.recorder.ObserveStageDuration(stage, d)
	}
	if report.ReadyAttempts > 0 {
		s.recorder.ObserveReadinessAttempts(report.ReadyAttempts)
		s.recorder.IncReadinessResult(report.PoolReady)
	}
	if report.AnalysisRan {
		s.recorder.IncAnalysisExit(report.AnalysisExitCode)
	}
}
