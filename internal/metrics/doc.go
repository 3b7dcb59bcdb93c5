// Package metrics provides the observability hooks for poolpilot runs.
//
// # Design
//
// The package follows the Null Object pattern so metrics collection never
// needs nil checks at call sites. Components receive a Recorder through
// dependency injection and default to NoopRecorder, whose methods compile
// down to nothing:
//
//	orch := pipeline.NewOrchestrator(cfg, ws) // NoopRecorder by default
//	orch.WithRecorder(metrics.NewPrometheusRecorder(reg))
//
// # Activation
//
// One-shot batch runs keep the noop default: they exit before any scraper
// could see their metrics. The monitor daemon registers a
// PrometheusRecorder and serves it via HTTPHandler under /metrics; the
// sweep feeds reconciled run outcomes into it.
package metrics
