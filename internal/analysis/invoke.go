// Package analysis dispatches the external analysis program against a ready
// worker pool and captures its combined output into the run directory.
package analysis

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	perrors "git.home.luguber.info/inful/poolpilot/internal/errors"
	"git.home.luguber.info/inful/poolpilot/internal/logfields"
)

// FailureMessage is the diagnostic written to the output log when the pool
// never becomes ready and the analysis is skipped. Downstream tooling greps
// for this exact line.
const FailureMessage = "The worker pool never reported ready; analysis was not run."

// RunIDEnv carries the run identifier into the analysis process.
const RunIDEnv = "POOLPILOT_RUN_ID"

// Invocation describes one analysis dispatch. The positional contract is
// fixed: the program receives the run directory, the work-item count, and
// the profile directory, in that order.
type Invocation struct {
	Interpreter string // optional; empty means Program is executed directly
	Program     string
	RunDir      string
	WorkItems   int
	ProfileDir  string

	OutputPath string // combined stdout/stderr target
	WorkDir    string // working directory for the process, empty for inherited

	DataDirEnv  string // name of the data-directory variable, e.g. DATA_DIR
	DataDir     string
	PathPrepend []string
	ExtraEnv    map[string]string
	RunID       string
}

// Argv returns the full command line, interpreter first when present.
func (inv Invocation) Argv() []string {
	argv := make([]string, 0, 6)
	if inv.Interpreter != "" {
		argv = append(argv, inv.Interpreter)
	}
	argv = append(argv, inv.Program, inv.RunDir, strconv.Itoa(inv.WorkItems), inv.ProfileDir)
	return argv
}

// Environ assembles the child environment on top of base. The data
// directory variable and PATH prepends are applied first, then the run ID,
// then extra variables in sorted order so the result is deterministic.
// exec gives later entries precedence on duplicates.
func (inv Invocation) Environ(base []string) []string {
	env := append([]string(nil), base...)

	if inv.DataDirEnv != "" && inv.DataDir != "" {
		env = append(env, inv.DataDirEnv+"="+inv.DataDir)
	}

	if len(inv.PathPrepend) > 0 {
		parts := append([]string(nil), inv.PathPrepend...)
		if cur := lookupEnv(base, "PATH"); cur != "" {
			parts = append(parts, cur)
		}
		env = append(env, "PATH="+strings.Join(parts, string(os.PathListSeparator)))
	}

	if inv.RunID != "" {
		env = append(env, RunIDEnv+"="+inv.RunID)
	}

	keys := make([]string, 0, len(inv.ExtraEnv))
	for k := range inv.ExtraEnv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+inv.ExtraEnv[k])
	}

	return env
}

// lookupEnv finds the last value of key in an environ slice.
func lookupEnv(environ []string, key string) string {
	prefix := key + "="
	for i := len(environ) - 1; i >= 0; i-- {
		if strings.HasPrefix(environ[i], prefix) {
			return environ[i][len(prefix):]
		}
	}
	return ""
}

// Result describes a completed (or failed) analysis invocation.
type Result struct {
	ExitCode int // -1 when the process never started
	Duration time.Duration
}

// Run executes the analysis program and blocks until it exits. Combined
// output streams to OutputPath. A process that starts and exits non-zero
// yields the real exit code alongside an analysis error; a process that
// cannot start at all yields ExitCode -1. Cancellation kills the process
// and is reported as a wrapped ctx error.
func Run(ctx context.Context, inv Invocation) (Result, error) {
	out, err := os.OpenFile(inv.OutputPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return Result{ExitCode: -1}, perrors.AnalysisStartFailed(err).WithContext("output", inv.OutputPath)
	}
	defer func() { _ = out.Close() }()

	argv := inv.Argv()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Env = inv.Environ(os.Environ())
	if inv.WorkDir != "" {
		cmd.Dir = inv.WorkDir
	}

	slog.Info("Dispatching analysis",
		logfields.Name(argv[0]),
		logfields.Path(inv.Program),
		logfields.Count(inv.WorkItems),
		logfields.Dir(inv.RunDir))

	start := time.Now()
	runErr := cmd.Run()
	res := Result{Duration: time.Since(start)}

	if runErr == nil {
		res.ExitCode = 0
		slog.Info("Analysis completed", logfields.ExitCode(0), logfields.DurationMS(res.Duration))
		return res, nil
	}

	var exitErr *exec.ExitError
	if stdErrors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		if ctx.Err() != nil {
			return res, perrors.Wrap(ctx.Err(), perrors.CategoryAnalysis, perrors.SeverityFatal, "analysis canceled")
		}
		slog.Error("Analysis exited non-zero", logfields.ExitCode(res.ExitCode), logfields.DurationMS(res.Duration))
		return res, perrors.AnalysisExitError(res.ExitCode)
	}

	res.ExitCode = -1
	if ctx.Err() != nil {
		return res, perrors.Wrap(ctx.Err(), perrors.CategoryAnalysis, perrors.SeverityFatal, "analysis canceled")
	}
	return res, perrors.AnalysisStartFailed(runErr).WithContext("program", inv.Program)
}

// WriteFailureMessage records the skipped-analysis diagnostic as the entire
// output log, replacing any partial content from an earlier attempt.
func WriteFailureMessage(path string) error {
	return os.WriteFile(path, []byte(FailureMessage+"\n"), 0o644)
}
