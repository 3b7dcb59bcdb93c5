package daemon

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/poolpilot/internal/eventstore"
	"git.home.luguber.info/inful/poolpilot/internal/logfields"
	"git.home.luguber.info/inful/poolpilot/internal/metrics"
	"git.home.luguber.info/inful/poolpilot/internal/run"
	"git.home.luguber.info/inful/poolpilot/internal/version"
)

// StatusPageData is the payload behind the status page, served as HTML or
// JSON depending on the request.
type StatusPageData struct {
	Daemon      DaemonInfo             `json:"daemon"`
	TotalRuns   int                    `json:"total_runs"`
	Counts      map[string]int         `json:"counts"`
	Runs        []eventstore.RunRecord `json:"runs"`
	LastUpdated time.Time              `json:"last_updated"`
}

// DaemonInfo holds basic daemon information.
type DaemonInfo struct {
	Status     Status    `json:"status"`
	Version    string    `json:"version"`
	StartTime  time.Time `json:"start_time"`
	Uptime     string    `json:"uptime"`
	ConfigFile string    `json:"config_file,omitempty"`
	RunsDir    string    `json:"runs_dir"`
}

type runPageData struct {
	Run    eventstore.RunRecord
	Events []eventstore.Event
	Report template.HTML
}

func (d *Daemon) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", d.handleStatus)
	mux.HandleFunc("/runs/", d.handleRunPage)
	mux.HandleFunc("/api/runs", d.handleAPIRuns)
	mux.HandleFunc("/api/runs/", d.handleAPIRun)
	mux.HandleFunc("/healthz", d.handleHealthz)
	mux.Handle("/metrics", metrics.HTTPHandler(d.registry))
	return mux
}

// GenerateStatusData collects registry counts and recent runs for the
// status page.
func (d *Daemon) GenerateStatusData(r *http.Request) (*StatusPageData, error) {
	counts, err := d.store.CountByOutcome(r.Context())
	if err != nil {
		return nil, err
	}
	runs, err := d.store.ListRuns(r.Context(), 25)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	return &StatusPageData{
		Daemon: DaemonInfo{
			Status:     d.GetStatus(),
			Version:    version.Version,
			StartTime:  d.startTime,
			Uptime:     time.Since(d.startTime).Truncate(time.Second).String(),
			ConfigFile: d.configPath,
			RunsDir:    d.cfg.Runs.BaseDir,
		},
		TotalRuns:   total,
		Counts:      counts,
		Runs:        runs,
		LastUpdated: time.Now(),
	}, nil
}

// handleStatus serves the daemon status page as JSON or HTML.
func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data, err := d.GenerateStatusData(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to generate status: %v", err), http.StatusInternalServerError)
		return
	}

	if r.Header.Get("Accept") == "application/json" || r.URL.Query().Get("format") == "json" {
		if err := writeJSON(w, http.StatusOK, data); err != nil {
			slog.Error("Failed to encode status JSON", logfields.Error(err))
		}
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	tmpl := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>PoolPilot Daemon Status</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 20px; background: #f5f5f5; }
        .container { max-width: 1100px; margin: 0 auto; background: white; padding: 20px; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .header { border-bottom: 2px solid #eee; padding-bottom: 20px; margin-bottom: 30px; }
        .status { display: inline-block; padding: 4px 12px; border-radius: 20px; font-weight: bold; text-transform: uppercase; font-size: 12px; }
        .status.running { background: #d4edda; color: #155724; }
        .status.stopped { background: #f8d7da; color: #721c24; }
        .metrics { display: grid; grid-template-columns: repeat(auto-fit, minmax(160px, 1fr)); gap: 20px; margin: 30px 0; }
        .metric-card { background: #f8f9fa; padding: 15px; border-radius: 6px; border-left: 4px solid #007bff; }
        .metric-value { font-size: 24px; font-weight: bold; color: #007bff; }
        .metric-label { color: #666; font-size: 14px; margin-top: 4px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 8px 10px; border-bottom: 1px solid #dee2e6; font-size: 14px; }
        th { color: #666; font-weight: 600; }
        .outcome { display: inline-block; padding: 2px 8px; border-radius: 12px; font-size: 11px; font-weight: bold; }
        .outcome.success { background: #d4edda; color: #155724; }
        .outcome.warning { background: #fff3cd; color: #856404; }
        .outcome.failed { background: #f8d7da; color: #721c24; }
        .outcome.canceled { background: #e2e3e5; color: #41464b; }
        .outcome.running { background: #cce5ff; color: #004085; }
        .updated { color: #666; font-size: 12px; text-align: center; margin-top: 20px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>PoolPilot Daemon Status</h1>
            <p>
                <span class="status {{if eq .Daemon.Status "running"}}running{{else}}stopped{{end}}">{{.Daemon.Status}}</span>
                Version {{.Daemon.Version}} • Uptime: {{.Daemon.Uptime}}
            </p>
            <p style="color: #666; font-size: 14px;">Runs directory: {{.Daemon.RunsDir}}</p>
        </div>

        <div class="metrics">
            <div class="metric-card">
                <div class="metric-value">{{.TotalRuns}}</div>
                <div class="metric-label">Total Runs</div>
            </div>
            <div class="metric-card">
                <div class="metric-value">{{index .Counts "running"}}</div>
                <div class="metric-label">Running</div>
            </div>
            <div class="metric-card">
                <div class="metric-value">{{index .Counts "success"}}</div>
                <div class="metric-label">Succeeded</div>
            </div>
            <div class="metric-card">
                <div class="metric-value">{{index .Counts "failed"}}</div>
                <div class="metric-label">Failed</div>
            </div>
            <div class="metric-card">
                <div class="metric-value">{{index .Counts "warning"}}</div>
                <div class="metric-label">Warnings</div>
            </div>
        </div>

        <h2>Recent Runs</h2>
        <table>
            <tr><th>Run</th><th>Job</th><th>Outcome</th><th>Created</th><th>Finished</th></tr>
            {{range .Runs}}
            <tr>
                <td><a href="/runs/{{.RunID}}">{{.RunID}}</a></td>
                <td>{{.JobID}}{{if .JobName}} ({{.JobName}}){{end}}</td>
                <td><span class="outcome {{.Outcome}}">{{.Outcome}}</span></td>
                <td>{{.CreatedAt.Format "2006-01-02 15:04:05"}}</td>
                <td>{{if .FinishedAt}}{{.FinishedAt.Format "2006-01-02 15:04:05"}}{{else}}-{{end}}</td>
            </tr>
            {{end}}
        </table>

        <div class="updated">Last updated: {{.LastUpdated.Format "2006-01-02 15:04:05 UTC"}}</div>
    </div>
</body>
</html>`

	t, err := template.New("status").Parse(tmpl)
	if err != nil {
		http.Error(w, fmt.Sprintf("Template error: %v", err), http.StatusInternalServerError)
		return
	}
	if err := t.Execute(w, data); err != nil {
		http.Error(w, fmt.Sprintf("Failed to render template: %v", err), http.StatusInternalServerError)
		return
	}
}

// handleRunPage serves a single run's detail page with its rendered report
// and recorded lifecycle events.
func (d *Daemon) handleRunPage(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimPrefix(r.URL.Path, "/runs/")
	if runID == "" || strings.Contains(runID, "/") {
		http.NotFound(w, r)
		return
	}

	rec, err := d.store.GetRun(r.Context(), runID)
	if errors.Is(err, eventstore.ErrRunNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Registry lookup failed: %v", err), http.StatusInternalServerError)
		return
	}

	events, err := d.store.EventsFor(r.Context(), runID)
	if err != nil {
		slog.Warn("Could not load run events", logfields.RunID(runID), logfields.Error(err))
	}

	report := template.HTML("<p>No report has been persisted for this run yet.</p>")
	if rec.RunDir != "" {
		if src, rerr := os.ReadFile(filepath.Join(rec.RunDir, run.ReportMarkdownName)); rerr == nil {
			if rendered, merr := RenderReportMarkdown(src); merr == nil {
				report = rendered
			} else {
				slog.Warn("Could not render run report", logfields.RunID(runID), logfields.Error(merr))
			}
		}
	}

	data := runPageData{Run: *rec, Events: events, Report: report}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	tmpl := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Run {{.Run.RunID}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 20px; background: #f5f5f5; }
        .container { max-width: 1100px; margin: 0 auto; background: white; padding: 20px; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .header { border-bottom: 2px solid #eee; padding-bottom: 20px; margin-bottom: 30px; }
        .outcome { display: inline-block; padding: 2px 8px; border-radius: 12px; font-size: 11px; font-weight: bold; }
        .outcome.success { background: #d4edda; color: #155724; }
        .outcome.warning { background: #fff3cd; color: #856404; }
        .outcome.failed { background: #f8d7da; color: #721c24; }
        .outcome.canceled { background: #e2e3e5; color: #41464b; }
        .outcome.running { background: #cce5ff; color: #004085; }
        .report { background: #f8f9fa; padding: 15px 20px; border-radius: 6px; margin-bottom: 30px; }
        .report table { border-collapse: collapse; }
        .report th, .report td { text-align: left; padding: 4px 12px; border-bottom: 1px solid #dee2e6; font-size: 14px; }
        table.events { width: 100%; border-collapse: collapse; }
        table.events th, table.events td { text-align: left; padding: 8px 10px; border-bottom: 1px solid #dee2e6; font-size: 14px; }
        table.events th { color: #666; font-weight: 600; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Run {{.Run.RunID}}</h1>
            <p>
                <span class="outcome {{.Run.Outcome}}">{{.Run.Outcome}}</span>
                {{if .Run.JobID}} Job {{.Run.JobID}}{{if .Run.JobName}} ({{.Run.JobName}}){{end}}{{end}}
            </p>
            <p><a href="/">&larr; All runs</a></p>
        </div>

        <div class="report">{{.Report}}</div>

        <h2>Events</h2>
        <table class="events">
            <tr><th>Time</th><th>Event</th><th>Detail</th></tr>
            {{range .Events}}
            <tr>
                <td>{{.CreatedAt.Format "2006-01-02 15:04:05"}}</td>
                <td>{{.Name}}</td>
                <td>{{if .Detail}}{{printf "%v" .Detail}}{{end}}</td>
            </tr>
            {{end}}
        </table>
    </div>
</body>
</html>`

	t, err := template.New("run").Parse(tmpl)
	if err != nil {
		http.Error(w, fmt.Sprintf("Template error: %v", err), http.StatusInternalServerError)
		return
	}
	if err := t.Execute(w, data); err != nil {
		http.Error(w, fmt.Sprintf("Failed to render template: %v", err), http.StatusInternalServerError)
		return
	}
}

// handleAPIRuns lists registry runs as JSON, newest first. The limit query
// parameter caps the result set.
func (d *Daemon) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := d.store.ListRuns(r.Context(), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)}); err != nil {
		slog.Error("Failed to encode runs JSON", logfields.Error(err))
	}
}

// handleAPIRun returns one run plus its event history as JSON.
func (d *Daemon) handleAPIRun(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if runID == "" || strings.Contains(runID, "/") {
		writeJSONError(w, http.StatusNotFound, "run not found")
		return
	}

	rec, err := d.store.GetRun(r.Context(), runID)
	if errors.Is(err, eventstore.ErrRunNotFound) {
		writeJSONError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	events, err := d.store.EventsFor(r.Context(), runID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := writeJSON(w, http.StatusOK, map[string]any{"run": rec, "events": events}); err != nil {
		slog.Error("Failed to encode run JSON", logfields.Error(err))
	}
}

// handleHealthz reports liveness. A failing registry turns the check red so
// orchestration restarts the daemon instead of serving stale data.
func (d *Daemon) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if _, err := d.store.CountByOutcome(r.Context()); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, fmt.Sprintf("registry unavailable: %v", err))
		return
	}
	payload := map[string]any{
		"status": "ok",
		"uptime": time.Since(d.startTime).Truncate(time.Second).String(),
	}
	if err := writeJSON(w, http.StatusOK, payload); err != nil {
		slog.Error("Failed to encode health JSON", logfields.Error(err))
	}
}

// writeJSON encodes into a buffer first so a failed serialization never
// leaves a partial body on the wire.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(v); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	return nil
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	if err := writeJSON(w, status, map[string]string{"error": msg}); err != nil {
		slog.Error("Failed to encode error JSON", logfields.Error(err))
	}
}
