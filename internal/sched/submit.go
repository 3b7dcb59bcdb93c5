package sched

import (
	"context"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"

	perrors "git.home.luguber.info/inful/poolpilot/internal/errors"
	"git.home.luguber.info/inful/poolpilot/internal/logfields"
)

// DefaultSubmitBin is the submission client used when none is configured.
const DefaultSubmitBin = "sbatch"

// submittedJobPattern matches the submission client's acknowledgement line.
var submittedJobPattern = regexp.MustCompile(`Submitted batch job (\d+)`)

// Submission is the scheduler's acknowledgement of a queued job.
type Submission struct {
	JobID     string
	RawOutput string
}

// Submit hands a rendered script to the submission client and parses the
// job ID out of its acknowledgement.
func Submit(ctx context.Context, bin, scriptPath string) (Submission, error) {
	if bin == "" {
		bin = DefaultSubmitBin
	}

	cmd := exec.CommandContext(ctx, bin, scriptPath)
	out, err := cmd.CombinedOutput()
	sub := Submission{RawOutput: strings.TrimSpace(string(out))}
	if err != nil {
		return sub, perrors.SubmitFailed(scriptPath, err).WithContext("output", sub.RawOutput)
	}

	id, ok := ParseJobID(sub.RawOutput)
	if !ok {
		return sub, perrors.New(perrors.CategoryScheduler, perrors.SeverityFatal,
			"could not parse job id from submission output").
			WithContext("output", sub.RawOutput)
	}
	sub.JobID = id

	slog.Info("Batch job submitted", logfields.JobID(sub.JobID), logfields.Path(scriptPath))
	return sub, nil
}

// ParseJobID extracts the numeric job ID from submission client output.
func ParseJobID(output string) (string, bool) {
	m := submittedJobPattern.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return m[1], true
}
