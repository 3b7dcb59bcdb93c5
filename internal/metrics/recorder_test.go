package metrics

import (
	"testing"
	"time"
)

type testRecorder struct {
	stageDurations    map[string]int
	stageResults      map[string]map[ResultLabel]int
	runDurations      int
	runOutcomes       map[string]int
	readinessAttempts []int
	readinessResults  map[bool]int
	analysisExits     map[int]int
}

func newTestRecorder() *testRecorder {
	return &testRecorder{
		stageDurations:   map[string]int{},
		stageResults:     map[string]map[ResultLabel]int{},
		runOutcomes:      map[string]int{},
		readinessResults: map[bool]int{},
		analysisExits:    map[int]int{},
	}
}

func (t *testRecorder) ObserveStageDuration(stage string, _ time.Duration) {
	t.stageDurations[stage]++
}
func (t *testRecorder) ObserveRunDuration(_ time.Duration) { t.runDurations++ }
func (t *testRecorder) IncStageResult(stage string, result ResultLabel) {
	m, ok := t.stageResults[stage]
	if !ok {
		m = map[ResultLabel]int{}
		t.stageResults[stage] = m
	}
	m[result]++
}
func (t *testRecorder) IncRunOutcome(outcome string) { t.runOutcomes[outcome]++ }
func (t *testRecorder) ObserveReadinessAttempts(n int) {
	t.readinessAttempts = append(t.readinessAttempts, n)
}
func (t *testRecorder) IncReadinessResult(ready bool) { t.readinessResults[ready]++ }
func (t *testRecorder) IncAnalysisExit(code int)      { t.analysisExits[code]++ }

// Compile-time interface checks for both implementations.
var (
	_ Recorder = NoopRecorder{}
	_ Recorder = (*PrometheusRecorder)(nil)
	_ Recorder = (*testRecorder)(nil)
)

func TestTestRecorderAccumulates(t *testing.T) {
	rec := newTestRecorder()
	rec.ObserveStageDuration("start_pool", time.Second)
	rec.IncStageResult("start_pool", ResultSuccess)
	rec.IncRunOutcome("warning")
	rec.ObserveReadinessAttempts(12)
	rec.IncReadinessResult(true)
	rec.IncAnalysisExit(0)

	if rec.stageDurations["start_pool"] != 1 {
		t.Errorf("stage duration not recorded")
	}
	if rec.stageResults["start_pool"][ResultSuccess] != 1 {
		t.Errorf("stage result not recorded")
	}
	if rec.runOutcomes["warning"] != 1 {
		t.Errorf("run outcome not recorded")
	}
	if len(rec.readinessAttempts) != 1 || rec.readinessAttempts[0] != 12 {
		t.Errorf("readiness attempts not recorded")
	}
}
