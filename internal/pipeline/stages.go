package pipeline

import (
	"context"
	"fmt"
)

// Stage is a discrete unit of work in a pilot run.
type Stage func(ctx context.Context, rs *RunState) error

// StageName is a strongly-typed identifier for a run stage.
type StageName string

// Canonical stage names. The first four run in order and abort on fatal
// errors; the finalizer stages run unconditionally afterwards.
const (
	StagePrepare       StageName = "prepare"
	StageStartPool     StageName = "start_pool"
	StageAwaitReady    StageName = "await_ready"
	StageRunAnalysis   StageName = "run_analysis"
	StageStopPool      StageName = "stop_pool"
	StagePersistReport StageName = "persist_report"
)

// StageErrorKind classifies the outcome of a stage.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"    // Run must abort.
	StageErrorWarning  StageErrorKind = "warning"  // Non-fatal; record and continue.
	StageErrorCanceled StageErrorKind = "canceled" // Context cancellation.
)

// StageError is a structured error carrying kind, issue code and cause.
// Stages construct these themselves; a bare error escaping a stage is
// treated as fatal with a generic code.
type StageError struct {
	Kind  StageErrorKind
	Stage StageName
	Code  IssueCode
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// NewFatalStageError creates a stage error that aborts the run.
func NewFatalStageError(stage StageName, code IssueCode, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Code: code, Err: err}
}

// NewWarnStageError creates a stage error that is recorded but does not
// abort the run or flip the exit code.
func NewWarnStageError(stage StageName, code IssueCode, err error) *StageError {
	return &StageError{Kind: StageErrorWarning, Stage: stage, Code: code, Err: err}
}

// NewCanceledStageError marks a stage interrupted by context cancellation.
func NewCanceledStageError(stage StageName, code IssueCode, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Code: code, Err: err}
}

// StageResult captures the high-level outcome of a stage.
type StageResult string

const (
	StageResultSuccess  StageResult = "success"
	StageResultWarning  StageResult = "warning"
	StageResultFatal    StageResult = "fatal"
	StageResultCanceled StageResult = "canceled"
	StageResultSkipped  StageResult = "skipped"
)

// StageDef pairs a stage name with its executing function.
type StageDef struct {
	Name StageName
	Fn   Stage
}

// Plan holds the ordered stages of a run plus the finalizers that execute
// regardless of how the regular stages ended.
type Plan struct {
	Stages     []StageDef
	Finalizers []StageDef
}

// NewPlan creates an empty plan.
func NewPlan() *Plan {
	return &Plan{Stages: make([]StageDef, 0, 4), Finalizers: make([]StageDef, 0, 2)}
}

// Add appends a regular stage.
func (p *Plan) Add(name StageName, fn Stage) *Plan {
	p.Stages = append(p.Stages, StageDef{Name: name, Fn: fn})
	return p
}

// AddIf appends a regular stage only if cond is true.
func (p *Plan) AddIf(cond bool, name StageName, fn Stage) *Plan {
	if cond {
		p.Add(name, fn)
	}
	return p
}

// Finally appends a finalizer. Finalizers run in order after the regular
// stages, even when a stage failed or the context was canceled.
func (p *Plan) Finally(name StageName, fn Stage) *Plan {
	p.Finalizers = append(p.Finalizers, StageDef{Name: name, Fn: fn})
	return p
}
