package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/poolpilot/internal/run"
)

type recordingObserver struct {
	starts    []StageName
	completes []string
	report    *RunReport
}

func (o *recordingObserver) OnStageStart(stage StageName) { o.starts = append(o.starts, stage) }
func (o *recordingObserver) OnStageComplete(stage StageName, _ time.Duration, res StageResult) {
	o.completes = append(o.completes, string(stage)+":"+string(res))
}
func (o *recordingObserver) OnRunComplete(report *RunReport) { o.report = report }

func newTestState(t *testing.T) *RunState {
	t.Helper()
	dir := t.TempDir()
	return NewRunState(nil, NewRunReport("test-run", dir), run.Paths{Dir: dir})
}

func appendStage(order *[]StageName, name StageName, err error) Stage {
	return func(_ context.Context, _ *RunState) error {
		*order = append(*order, name)
		return err
	}
}

func TestRunStagesExecutesInOrder(t *testing.T) {
	rs := newTestState(t)
	var order []StageName

	plan := NewPlan().
		Add(StagePrepare, appendStage(&order, StagePrepare, nil)).
		Add(StageStartPool, appendStage(&order, StageStartPool, nil)).
		Finally(StageStopPool, appendStage(&order, StageStopPool, nil))

	err := RunStages(t.Context(), rs, plan)
	require.NoError(t, err)
	assert.Equal(t, []StageName{StagePrepare, StageStartPool, StageStopPool}, order)
	assert.Equal(t, OutcomeSuccess, rs.Report.Outcome)
	assert.Contains(t, rs.Report.StageDurations, string(StagePrepare))
	assert.Equal(t, 1, rs.Report.StageCounts[StagePrepare].Success)
	assert.False(t, rs.Report.End.IsZero())
}

func TestRunStagesAbortsOnFatal(t *testing.T) {
	rs := newTestState(t)
	var order []StageName
	boom := NewFatalStageError(StageStartPool, IssuePoolStartFailed, errors.New("no such binary"))

	plan := NewPlan().
		Add(StagePrepare, appendStage(&order, StagePrepare, nil)).
		Add(StageStartPool, appendStage(&order, StageStartPool, boom)).
		Add(StageAwaitReady, appendStage(&order, StageAwaitReady, nil)).
		Finally(StageStopPool, appendStage(&order, StageStopPool, nil))

	err := RunStages(t.Context(), rs, plan)
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageErrorFatal, se.Kind)

	// await_ready never ran, the finalizer did.
	assert.Equal(t, []StageName{StagePrepare, StageStartPool, StageStopPool}, order)
	assert.Equal(t, OutcomeFailed, rs.Report.Outcome)
	assert.Equal(t, StageErrorFatal, rs.Report.StageErrorKinds[StageStartPool])

	require.Len(t, rs.Report.Issues, 1)
	assert.Equal(t, IssuePoolStartFailed, rs.Report.Issues[0].Code)
	assert.Equal(t, SeverityError, rs.Report.Issues[0].Severity)
}

func TestRunStagesCanceledBeforeStage(t *testing.T) {
	rs := newTestState(t)
	var order []StageName

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	plan := NewPlan().
		Add(StageAwaitReady, appendStage(&order, StageAwaitReady, nil)).
		Finally(StageStopPool, appendStage(&order, StageStopPool, nil))

	err := RunStages(ctx, rs, plan)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)

	// The stage body never ran; the finalizer still did.
	assert.Equal(t, []StageName{StageStopPool}, order)
	assert.Equal(t, OutcomeCanceled, rs.Report.Outcome)
	assert.Equal(t, 1, rs.Report.StageCounts[StageAwaitReady].Canceled)
}

func TestRunStagesFinalizerFailureIsWarning(t *testing.T) {
	rs := newTestState(t)
	var order []StageName
	stopErr := NewFatalStageError(StageStopPool, IssueTeardownFailed, errors.New("stop timed out"))

	plan := NewPlan().
		Add(StagePrepare, appendStage(&order, StagePrepare, nil)).
		Finally(StageStopPool, appendStage(&order, StageStopPool, stopErr)).
		Finally(StagePersistReport, appendStage(&order, StagePersistReport, nil))

	err := RunStages(t.Context(), rs, plan)
	require.NoError(t, err, "finalizer failures must not abort the run")

	// Both finalizers ran despite the first one failing.
	assert.Equal(t, []StageName{StagePrepare, StageStopPool, StagePersistReport}, order)
	assert.Equal(t, OutcomeWarning, rs.Report.Outcome)
	assert.Equal(t, StageErrorWarning, rs.Report.StageErrorKinds[StageStopPool])

	require.Len(t, rs.Report.Issues, 1)
	assert.Equal(t, IssueTeardownFailed, rs.Report.Issues[0].Code)
	assert.Equal(t, SeverityWarning, rs.Report.Issues[0].Severity)
}

func TestRunStagesBareErrorIsFatal(t *testing.T) {
	rs := newTestState(t)

	plan := NewPlan().Add(StagePrepare, func(_ context.Context, _ *RunState) error {
		return errors.New("unstructured failure")
	})

	err := RunStages(t.Context(), rs, plan)
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageErrorFatal, se.Kind)
	require.Len(t, rs.Report.Issues, 1)
	assert.Equal(t, IssueStageFailed, rs.Report.Issues[0].Code)
}

func TestRunStagesObserverSequence(t *testing.T) {
	rs := newTestState(t)
	obs := &recordingObserver{}
	rs.SetObserver(obs)

	plan := NewPlan().
		Add(StagePrepare, appendStage(new([]StageName), StagePrepare, nil)).
		Add(StageStartPool, func(_ context.Context, _ *RunState) error {
			return NewFatalStageError(StageStartPool, IssuePoolStartFailed, errors.New("boom"))
		}).
		Finally(StageStopPool, appendStage(new([]StageName), StageStopPool, nil))

	_ = RunStages(t.Context(), rs, plan)

	assert.Equal(t, []StageName{StagePrepare, StageStartPool, StageStopPool}, obs.starts)
	assert.Equal(t, []string{"prepare:success", "start_pool:fatal", "stop_pool:success"}, obs.completes)
	require.NotNil(t, obs.report, "OnRunComplete must fire after finalizers")
	assert.Equal(t, OutcomeFailed, obs.report.Outcome)
}

func TestClassifyStageResult(t *testing.T) {
	out := ClassifyStageResult(StagePrepare, nil)
	assert.Equal(t, StageResultSuccess, out.Result)
	assert.False(t, out.Abort)

	out = ClassifyStageResult(StageAwaitReady, NewWarnStageError(StageAwaitReady, IssueNotifyFailed, errors.New("nats down")))
	assert.Equal(t, StageResultWarning, out.Result)
	assert.Equal(t, SeverityWarning, out.Severity)
	assert.False(t, out.Abort)

	out = ClassifyStageResult(StageAwaitReady, NewCanceledStageError(StageAwaitReady, IssuePoolWaitCanceled, context.Canceled))
	assert.Equal(t, StageResultCanceled, out.Result)
	assert.True(t, out.Abort)

	out = ClassifyStageResult(StageRunAnalysis, errors.New("bare"))
	assert.Equal(t, StageResultFatal, out.Result)
	assert.Equal(t, IssueStageFailed, out.Code)
	assert.True(t, out.Abort)
}
