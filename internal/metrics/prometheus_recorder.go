package metrics

import (
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// readinessBuckets cover the poll-attempt space: most pools are ready within
// a handful of probes, the default budget is 40.
var readinessBuckets = []float64{1, 2, 5, 10, 20, 40, 80}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration     *prom.HistogramVec
	runDuration       prom.Histogram
	stageResults      *prom.CounterVec
	runOutcomes       *prom.CounterVec
	readinessAttempts prom.Histogram
	readinessResults  *prom.CounterVec
	analysisExits     *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the poolpilot metrics on
// the given registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "poolpilot",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual run stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "poolpilot",
			Name:      "run_duration_seconds",
			Help:      "Total run duration",
			Buckets:   []float64{1, 10, 60, 300, 900, 3600, 14400, 86400},
		}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "poolpilot",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		runOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "poolpilot",
			Name:      "run_outcomes_total",
			Help:      "Run outcomes by final status",
		}, []string{"outcome"}),
		readinessAttempts: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "poolpilot",
			Name:      "readiness_attempts",
			Help:      "Poll attempts consumed waiting for the worker pool",
			Buckets:   readinessBuckets,
		}),
		readinessResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "poolpilot",
			Name:      "readiness_results_total",
			Help:      "Readiness wait results (ready or timeout)",
		}, []string{"result"}),
		analysisExits: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "poolpilot",
			Name:      "analysis_exits_total",
			Help:      "Analysis program exits by code",
		}, []string{"code"}),
	}
	reg.MustRegister(
		pr.stageDuration,
		pr.runDuration,
		pr.stageResults,
		pr.runOutcomes,
		pr.readinessAttempts,
		pr.readinessResults,
		pr.analysisExits,
	)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncRunOutcome(outcome string) {
	if p == nil || p.runOutcomes == nil {
		return
	}
	p.runOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveReadinessAttempts(n int) {
	if p == nil || p.readinessAttempts == nil {
		return
	}
	p.readinessAttempts.Observe(float64(n))
}

func (p *PrometheusRecorder) IncReadinessResult(ready bool) {
	if p == nil || p.readinessResults == nil {
		return
	}
	res := "timeout"
	if ready {
		res = "ready"
	}
	p.readinessResults.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) IncAnalysisExit(code int) {
	if p == nil || p.analysisExits == nil {
		return
	}
	p.analysisExits.WithLabelValues(strconv.Itoa(code)).Inc()
}
