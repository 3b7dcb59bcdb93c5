package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/poolpilot/internal/metrics"
	"git.home.luguber.info/inful/poolpilot/internal/provenance"
	"git.home.luguber.info/inful/poolpilot/internal/run"
	"git.home.luguber.info/inful/poolpilot/internal/version"
)

// NewRunReport constructs a report for a run rooted at runDir.
func NewRunReport(runID, runDir string) *RunReport {
	return &RunReport{
		SchemaVersion:    1,
		RunID:            runID,
		RunDir:           runDir,
		Start:            time.Now(),
		StageDurations:   make(map[string]time.Duration),
		StageErrorKinds:  make(map[StageName]StageErrorKind),
		StageCounts:      make(map[StageName]StageCount),
		AnalysisExitCode: -1,
		PoolPilotVersion: version.Version,
	}
}

// RunOutcome is the typed enumeration of final run result states.
type RunOutcome string

const (
	OutcomeSuccess  RunOutcome = "success"
	OutcomeWarning  RunOutcome = "warning"
	OutcomeFailed   RunOutcome = "failed"
	OutcomeCanceled RunOutcome = "canceled"
)

// RunReport captures what happened during a pilot run. It is persisted as
// report.json (machine) and report.md (human) into the run directory.
type RunReport struct {
	SchemaVersion   int
	RunID           string
	JobID           string // scheduler job id, empty outside an allocation
	JobName         string
	NodeList        string // allocated nodes as reported by the scheduler
	RunDir          string
	Nodes           int
	Engines         int
	WorkItems       int
	Start           time.Time
	End             time.Time
	Errors          []error // fatal errors causing run abortion (at most one today)
	Warnings        []error // non-fatal issues (teardown failure, registry gaps)
	StageDurations  map[string]time.Duration
	StageErrorKinds map[StageName]StageErrorKind
	StageCounts     map[StageName]StageCount
	// Pool readiness observations.
	PoolReady       bool
	ReadyAttempts   int    // poll attempts consumed (0 if the pool never started)
	ReadyMarkerLine string // log line that matched the readiness marker
	// Analysis observations.
	AnalysisRan      bool
	AnalysisExitCode int // -1 until the analysis process has run
	// Issues captures structured machine-parsable taxonomy entries.
	Issues     []Issue
	Provenance *provenance.Info
	Outcome    RunOutcome
	// PoolPilotVersion is the version of the binary that produced this run.
	PoolPilotVersion string
}

// IssueCode enumerates machine-parseable issue identifiers. These codes are
// a stable contract; only append, never reuse.
type IssueCode string

const (
	IssuePoolStartFailed        IssueCode = "pool_start_failed"
	IssuePoolNotReady           IssueCode = "pool_not_ready"
	IssuePoolWaitCanceled       IssueCode = "pool_wait_canceled"
	IssueAnalysisStartFailed    IssueCode = "analysis_start_failed"
	IssueAnalysisExitNonzero    IssueCode = "analysis_exit_nonzero"
	IssueTeardownFailed         IssueCode = "teardown_failed"
	IssueProfileTemplateMissing IssueCode = "profile_template_missing"
	IssueReportPersistFailed    IssueCode = "report_persist_failed"
	IssueRegistryUnavailable    IssueCode = "registry_unavailable"
	IssueNotifyFailed           IssueCode = "notify_failed"
	IssueRunCanceled            IssueCode = "run_canceled"
	IssueStageFailed            IssueCode = "stage_failed"
)

// IssueSeverity represents normalized severity levels.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a structured taxonomy entry describing a discrete problem.
type Issue struct {
	Code      IssueCode     `json:"code"`
	Stage     StageName     `json:"stage"`
	Severity  IssueSeverity `json:"severity"`
	Message   string        `json:"message"`
	Transient bool          `json:"transient"`
}

// StageCount aggregates outcome counts for a stage.
type StageCount struct {
	Success  int
	Warning  int
	Fatal    int
	Canceled int
}

// AddIssue appends a structured issue and mirrors severity into the
// Errors/Warnings slices that DeriveOutcome consumes.
func (r *RunReport) AddIssue(code IssueCode, stage StageName, severity IssueSeverity, msg string, transient bool, err error) {
	r.Issues = append(r.Issues, Issue{Code: code, Stage: stage, Severity: severity, Message: msg, Transient: transient})
	if err != nil {
		switch severity {
		case SeverityError:
			r.Errors = append(r.Errors, err)
		case SeverityWarning:
			r.Warnings = append(r.Warnings, err)
		}
	}
}

// Finish sets the end time of the report.
func (r *RunReport) Finish() { r.End = time.Now() }

// RecordStageResult updates counters and emits metrics (if recorder non-nil).
func (r *RunReport) RecordStageResult(stage StageName, res StageResult, recorder metrics.Recorder) {
	if r.StageCounts == nil {
		r.StageCounts = make(map[StageName]StageCount)
	}
	sc := r.StageCounts[stage]
	switch res {
	case StageResultSuccess:
		sc.Success++
		if recorder != nil {
			recorder.IncStageResult(string(stage), metrics.ResultSuccess)
		}
	case StageResultWarning:
		sc.Warning++
		if recorder != nil {
			recorder.IncStageResult(string(stage), metrics.ResultWarning)
		}
	case StageResultFatal:
		sc.Fatal++
		if recorder != nil {
			recorder.IncStageResult(string(stage), metrics.ResultFatal)
		}
	case StageResultCanceled:
		sc.Canceled++
		if recorder != nil {
			recorder.IncStageResult(string(stage), metrics.ResultCanceled)
		}
	case StageResultSkipped:
		// No counters for skipped stages.
	}
	r.StageCounts[stage] = sc
}

// Summary returns a human-readable single-line summary.
func (r *RunReport) Summary() string {
	dur := r.End.Sub(r.Start)
	return fmt.Sprintf("run=%s ready=%t attempts=%d analysis_exit=%d duration=%s errors=%d warnings=%d outcome=%s",
		r.RunID, r.PoolReady, r.ReadyAttempts, r.AnalysisExitCode, dur.Truncate(time.Millisecond), len(r.Errors), len(r.Warnings), string(r.Outcome))
}

// DeriveOutcome sets the Outcome field based on recorded errors/warnings.
// Precedence: canceled > failed > warning > success.
func (r *RunReport) DeriveOutcome() {
	if len(r.Errors) > 0 {
		for _, e := range r.Errors {
			var se *StageError
			if errors.As(e, &se) && se.Kind == StageErrorCanceled {
				r.Outcome = OutcomeCanceled
				return
			}
		}
		r.Outcome = OutcomeFailed
		return
	}
	if len(r.Warnings) > 0 {
		r.Outcome = OutcomeWarning
		return
	}
	r.Outcome = OutcomeSuccess
}

// Persist writes report.json and report.md atomically into the run directory.
func (r *RunReport) Persist(dir string) error {
	if r.End.IsZero() {
		r.Finish()
		r.DeriveOutcome()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("ensure run dir for report: %w", err)
	}
	jb, err := json.MarshalIndent(r.SanitizedCopy(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report json: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, run.ReportJSONName), jb, 0o600); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dir, run.ReportMarkdownName), []byte(r.Markdown()), 0o600)
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write temp report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("atomic rename report: %w", err)
	}
	return nil
}

// stageOrder is the canonical rendering order for per-stage rows.
var stageOrder = []StageName{StagePrepare, StageStartPool, StageAwaitReady, StageRunAnalysis, StageStopPool, StagePersistReport}

// Markdown renders the report as a small human-readable document.
func (r *RunReport) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run %s\n\n", r.RunID)
	fmt.Fprintf(&b, "- Outcome: **%s**\n", string(r.Outcome))
	if r.JobID != "" {
		fmt.Fprintf(&b, "- Job: %s (%s)\n", r.JobID, r.JobName)
	}
	if r.NodeList != "" {
		fmt.Fprintf(&b, "- Node list: %s\n", r.NodeList)
	}
	fmt.Fprintf(&b, "- Started: %s\n", r.Start.Format(time.RFC3339))
	if !r.End.IsZero() {
		fmt.Fprintf(&b, "- Finished: %s (%s)\n", r.End.Format(time.RFC3339), r.End.Sub(r.Start).Truncate(time.Millisecond))
	}
	fmt.Fprintf(&b, "- Pool ready: %t (attempts: %d)\n", r.PoolReady, r.ReadyAttempts)
	if r.AnalysisRan {
		fmt.Fprintf(&b, "- Analysis exit code: %d\n", r.AnalysisExitCode)
	} else {
		b.WriteString("- Analysis: not run\n")
	}
	if r.Provenance != nil {
		fmt.Fprintf(&b, "- Analysis source: %s\n", r.Provenance.Describe())
	}
	fmt.Fprintf(&b, "- Version: %s\n", r.PoolPilotVersion)

	b.WriteString("\n## Stages\n\n| Stage | Duration | Result |\n|---|---|---|\n")
	for _, st := range stageOrder {
		dur, ok := r.StageDurations[string(st)]
		if !ok {
			continue
		}
		result := StageResultSuccess
		if kind, failed := r.StageErrorKinds[st]; failed {
			switch kind {
			case StageErrorWarning:
				result = StageResultWarning
			case StageErrorCanceled:
				result = StageResultCanceled
			case StageErrorFatal:
				result = StageResultFatal
			}
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", st, dur.Truncate(time.Millisecond), result)
	}

	if len(r.Issues) > 0 {
		b.WriteString("\n## Issues\n\n")
		for _, is := range r.Issues {
			fmt.Fprintf(&b, "- `%s` (%s, stage %s): %s\n", is.Code, is.Severity, is.Stage, is.Message)
		}
	}
	return b.String()
}

// SanitizedCopy returns a copy with error fields converted to strings for
// JSON friendliness.
func (r *RunReport) SanitizedCopy() *RunReportSerializable {
	sek := make(map[string]string, len(r.StageErrorKinds))
	for k, v := range r.StageErrorKinds {
		sek[string(k)] = string(v)
	}
	stageCounts := make(map[string]StageCount, len(r.StageCounts))
	for k, v := range r.StageCounts {
		stageCounts[string(k)] = v
	}
	if r.StageDurations == nil {
		r.StageDurations = map[string]time.Duration{}
	}
	if r.Issues == nil {
		r.Issues = []Issue{}
	}

	s := &RunReportSerializable{
		SchemaVersion:    r.SchemaVersion,
		RunID:            r.RunID,
		JobID:            r.JobID,
		JobName:          r.JobName,
		NodeList:         r.NodeList,
		RunDir:           r.RunDir,
		Nodes:            r.Nodes,
		Engines:          r.Engines,
		WorkItems:        r.WorkItems,
		Start:            r.Start,
		End:              r.End,
		Errors:           make([]string, len(r.Errors)),
		Warnings:         make([]string, len(r.Warnings)),
		StageDurations:   r.StageDurations,
		StageErrorKinds:  sek,
		StageCounts:      stageCounts,
		PoolReady:        r.PoolReady,
		ReadyAttempts:    r.ReadyAttempts,
		ReadyMarkerLine:  r.ReadyMarkerLine,
		AnalysisRan:      r.AnalysisRan,
		AnalysisExitCode: r.AnalysisExitCode,
		Issues:           r.Issues,
		Provenance:       r.Provenance,
		Outcome:          string(r.Outcome),
		PoolPilotVersion: r.PoolPilotVersion,
	}
	for i, e := range r.Errors {
		s.Errors[i] = e.Error()
	}
	for i, w := range r.Warnings {
		s.Warnings[i] = w.Error()
	}
	return s
}

// RunReportSerializable mirrors RunReport with string errors for JSON output.
type RunReportSerializable struct {
	SchemaVersion    int                      `json:"schema_version"`
	RunID            string                   `json:"run_id"`
	JobID            string                   `json:"job_id,omitempty"`
	JobName          string                   `json:"job_name,omitempty"`
	NodeList         string                   `json:"node_list,omitempty"`
	RunDir           string                   `json:"run_dir"`
	Nodes            int                      `json:"nodes,omitempty"`
	Engines          int                      `json:"engines,omitempty"`
	WorkItems        int                      `json:"work_items,omitempty"`
	Start            time.Time                `json:"start"`
	End              time.Time                `json:"end"`
	Errors           []string                 `json:"errors"`
	Warnings         []string                 `json:"warnings"`
	StageDurations   map[string]time.Duration `json:"stage_durations"`
	StageErrorKinds  map[string]string        `json:"stage_error_kinds"`
	StageCounts      map[string]StageCount    `json:"stage_counts"`
	PoolReady        bool                     `json:"pool_ready"`
	ReadyAttempts    int                      `json:"ready_attempts"`
	ReadyMarkerLine  string                   `json:"ready_marker_line,omitempty"`
	AnalysisRan      bool                     `json:"analysis_ran"`
	AnalysisExitCode int                      `json:"analysis_exit_code"`
	Issues           []Issue                  `json:"issues"`
	Provenance       *provenance.Info         `json:"provenance,omitempty"`
	Outcome          string                   `json:"outcome"`
	PoolPilotVersion string                   `json:"poolpilot_version,omitempty"`
}

// LoadReport reads a persisted report.json back from a run directory or an
// explicit file path.
func LoadReport(path string) (*RunReportSerializable, error) {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, run.ReportJSONName)
	}
	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator input
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var s RunReportSerializable
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &s, nil
}
