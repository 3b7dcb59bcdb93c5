package pipeline

import (
	"context"
	"time"
)

// RunStages executes the plan's regular stages in order, stopping on the
// first fatal or canceled error, then runs every finalizer regardless of how
// the regular stages ended. The returned error is the aborting stage error,
// if any; finalizer failures are recorded as warnings and never returned.
func RunStages(ctx context.Context, rs *RunState, plan *Plan) error {
	runErr := runRegular(ctx, rs, plan.Stages)

	// Finalizers outlive cancellation: teardown and report persistence
	// must happen even when the scheduler pulled the plug mid-wait.
	fctx := context.WithoutCancel(ctx)
	for _, st := range plan.Finalizers {
		runFinalizer(fctx, rs, st)
	}

	if rs.Report.End.IsZero() {
		rs.Report.Finish()
		rs.Report.DeriveOutcome()
	}
	rs.Observer().OnRunComplete(rs.Report)

	return runErr
}

func runRegular(ctx context.Context, rs *RunState, stages []StageDef) error {
	for _, st := range stages {
		select {
		case <-ctx.Done():
			se := NewCanceledStageError(st.Name, IssueRunCanceled, ctx.Err())
			rs.Report.StageErrorKinds[st.Name] = se.Kind
			rs.Report.AddIssue(IssueRunCanceled, st.Name, SeverityError, se.Error(), false, se)
			rs.Report.RecordStageResult(st.Name, StageResultCanceled, rs.Recorder())
			rs.Observer().OnStageComplete(st.Name, 0, StageResultCanceled)
			return se
		default:
		}

		rs.Observer().OnStageStart(st.Name)

		t0 := time.Now()
		err := st.Fn(ctx, rs)
		dur := time.Since(t0)

		rs.Report.StageDurations[string(st.Name)] = dur

		out := ClassifyStageResult(st.Name, err)
		if out.Error != nil {
			rs.Report.StageErrorKinds[st.Name] = out.Error.Kind
			rs.Report.AddIssue(out.Code, out.Stage, out.Severity, out.Error.Error(), out.Transient, out.Error)
		}
		rs.Report.RecordStageResult(st.Name, out.Result, rs.Recorder())
		rs.Observer().OnStageComplete(st.Name, dur, out.Result)

		if out.Abort {
			return out.Error
		}
	}
	return nil
}

// runFinalizer executes one finalizer stage. Failures are demoted to
// warnings: a botched teardown or report write is recorded but never aborts
// the run or flips the exit code.
func runFinalizer(ctx context.Context, rs *RunState, st StageDef) {
	rs.Observer().OnStageStart(st.Name)

	t0 := time.Now()
	err := st.Fn(ctx, rs)
	dur := time.Since(t0)

	rs.Report.StageDurations[string(st.Name)] = dur

	out := ClassifyStageResult(st.Name, err)
	if out.Error != nil {
		out.Error.Kind = StageErrorWarning
		out.Result = StageResultWarning
		out.Severity = SeverityWarning
		rs.Report.StageErrorKinds[st.Name] = StageErrorWarning
		rs.Report.AddIssue(out.Code, out.Stage, out.Severity, out.Error.Error(), out.Transient, out.Error)
	}
	rs.Report.RecordStageResult(st.Name, out.Result, rs.Recorder())
	rs.Observer().OnStageComplete(st.Name, dur, out.Result)
}
