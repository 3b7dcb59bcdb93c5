package pipeline

import (
	"errors"

	perrors "git.home.luguber.info/inful/poolpilot/internal/errors"
)

// StageOutcome is the normalized result of stage execution.
type StageOutcome struct {
	Stage     StageName
	Error     *StageError
	Result    StageResult
	Code      IssueCode
	Severity  IssueSeverity
	Transient bool
	Abort     bool
}

// resultFromStageErrorKind maps a StageErrorKind to a StageResult.
func resultFromStageErrorKind(k StageErrorKind) StageResult {
	switch k {
	case StageErrorWarning:
		return StageResultWarning
	case StageErrorCanceled:
		return StageResultCanceled
	case StageErrorFatal:
		return StageResultFatal
	default:
		return StageResultFatal
	}
}

// severityFromStageErrorKind maps a StageErrorKind to an IssueSeverity.
func severityFromStageErrorKind(k StageErrorKind) IssueSeverity {
	if k == StageErrorWarning {
		return SeverityWarning
	}
	return SeverityError
}

// ClassifyStageResult converts a raw error from a stage into a StageOutcome.
// Stages attach their own issue code when constructing a StageError; a bare
// error escaping a stage is normalized to a fatal stage_failed.
func ClassifyStageResult(stage StageName, err error) StageOutcome {
	if err == nil {
		return StageOutcome{Stage: stage, Result: StageResultSuccess}
	}

	var se *StageError
	if !errors.As(err, &se) {
		se = NewFatalStageError(stage, IssueStageFailed, err)
	}
	code := se.Code
	if code == "" {
		code = IssueStageFailed
	}

	return StageOutcome{
		Stage:     stage,
		Error:     se,
		Result:    resultFromStageErrorKind(se.Kind),
		Code:      code,
		Severity:  severityFromStageErrorKind(se.Kind),
		Transient: perrors.IsRetryable(se.Err),
		Abort:     se.Kind == StageErrorFatal || se.Kind == StageErrorCanceled,
	}
}
