// Package daemon runs the long-lived registry service. It keeps the run
// registry reconciled with on-disk run reports through a periodic sweep and
// a filesystem watcher, and serves a status page, a JSON API and Prometheus
// metrics over HTTP.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/poolpilot/internal/config"
	perrors "git.home.luguber.info/inful/poolpilot/internal/errors"
	"git.home.luguber.info/inful/poolpilot/internal/eventstore"
	"git.home.luguber.info/inful/poolpilot/internal/logfields"
	"git.home.luguber.info/inful/poolpilot/internal/metrics"
)

// Status represents the current state of the daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

// watchDebounce coalesces report writes before triggering a sweep.
const watchDebounce = 2 * time.Second

// sweepTimeout bounds a single reconcile pass.
const sweepTimeout = 30 * time.Second

// Daemon is the long-lived registry service.
type Daemon struct {
	cfg        *config.Config
	configPath string

	store     eventstore.Store
	registry  *prometheus.Registry
	recorder  *metrics.PrometheusRecorder
	sweeper   *Sweeper
	watcher   *RunsWatcher
	scheduler gocron.Scheduler

	httpServer *http.Server
	listener   net.Listener

	startTime time.Time
	status    atomic.Value // Status
}

// New assembles a daemon from configuration. configPath is informational
// and shows up on the status page.
func New(cfg *config.Config, configPath string) (*Daemon, error) {
	if cfg == nil {
		return nil, perrors.New(perrors.CategoryDaemon, perrors.SeverityFatal, "configuration is required")
	}

	// The registry database and the watcher both live under the runs base
	// directory, which may not exist before the first run.
	if err := os.MkdirAll(cfg.Runs.BaseDir, 0o750); err != nil {
		return nil, perrors.Wrap(err, perrors.CategoryDaemon, perrors.SeverityFatal, "create runs directory")
	}

	dbPath := cfg.Registry.Path
	if dbPath == "" {
		dbPath = filepath.Join(cfg.Runs.BaseDir, "poolpilot.db")
	}
	store, err := eventstore.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewPrometheusRecorder(registry)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		_ = store.Close()
		return nil, perrors.Wrap(err, perrors.CategoryDaemon, perrors.SeverityFatal, "create sweep scheduler")
	}

	d := &Daemon{
		cfg:        cfg,
		configPath: configPath,
		store:      store,
		registry:   registry,
		recorder:   recorder,
		scheduler:  scheduler,
	}
	d.status.Store(StatusStopped)
	d.sweeper = NewSweeper(cfg.Runs.BaseDir, store, recorder)

	watcher, err := NewRunsWatcher(cfg.Runs.BaseDir, watchDebounce, d.sweepTask)
	if err != nil {
		_ = scheduler.Shutdown()
		_ = store.Close()
		return nil, err
	}
	d.watcher = watcher

	return d, nil
}

// Start brings up the sweep schedule, the runs watcher and the HTTP server.
// It returns once the listener is bound; use Stop for shutdown.
func (d *Daemon) Start(ctx context.Context) error {
	if s := d.GetStatus(); s != StatusStopped {
		return perrors.New(perrors.CategoryDaemon, perrors.SeverityError,
			fmt.Sprintf("daemon is not in stopped state: %s", s))
	}
	d.status.Store(StatusStarting)
	d.startTime = time.Now()

	// Reconcile existing reports before serving so the first status request
	// is not empty on a host with prior runs.
	if n, err := d.sweeper.Sweep(ctx); err != nil {
		slog.Warn("Initial runs sweep failed", logfields.Error(err))
	} else {
		slog.Info("Initial runs sweep complete", logfields.Count(n))
	}

	if _, err := d.scheduler.NewJob(
		gocron.DurationJob(d.cfg.Daemon.SweepIntervalDuration()),
		gocron.NewTask(d.sweepTask),
		gocron.WithName("runs-sweep"),
	); err != nil {
		return perrors.Wrap(err, perrors.CategoryDaemon, perrors.SeverityFatal, "schedule runs sweep")
	}
	d.scheduler.Start()

	if err := d.watcher.Start(ctx); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", d.cfg.Daemon.Listen)
	if err != nil {
		return perrors.Wrap(err, perrors.CategoryDaemon, perrors.SeverityFatal, "bind listen address").
			WithContext("listen", d.cfg.Daemon.Listen)
	}
	d.listener = listener
	d.httpServer = &http.Server{
		Handler:           d.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if serr := d.httpServer.Serve(listener); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			slog.Error("HTTP server terminated", logfields.Error(serr))
		}
	}()

	d.status.Store(StatusRunning)
	slog.Info("Daemon started",
		logfields.URL("http://"+listener.Addr().String()),
		slog.Duration("sweep_interval", d.cfg.Daemon.SweepIntervalDuration()))
	return nil
}

// Stop shuts down the HTTP server, watcher, scheduler and registry store.
func (d *Daemon) Stop(ctx context.Context) error {
	current := d.GetStatus()
	if current == StatusStopped || current == StatusStopping {
		return nil
	}
	d.status.Store(StatusStopping)
	slog.Info("Stopping daemon")

	var errs []error
	if d.httpServer != nil {
		if err := d.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if err := d.scheduler.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("shutdown scheduler: %w", err))
	}
	if err := d.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close registry: %w", err))
	}

	d.status.Store(StatusStopped)
	slog.Info("Daemon stopped", slog.Duration("uptime", time.Since(d.startTime)))
	return errors.Join(errs...)
}

// GetStatus returns the current daemon status.
func (d *Daemon) GetStatus() Status {
	status, ok := d.status.Load().(Status)
	if !ok {
		return StatusStopped
	}
	return status
}

// Addr returns the bound listen address once Start has succeeded. Useful
// when the configured listen port is 0.
func (d *Daemon) Addr() string {
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

// sweepTask reconciles run reports into the registry. Both the periodic
// schedule and the debounced filesystem watcher land here.
func (d *Daemon) sweepTask() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	n, err := d.sweeper.Sweep(ctx)
	if err != nil {
		slog.Warn("Runs sweep failed", logfields.Error(err))
		return
	}
	if n > 0 {
		slog.Debug("Runs sweep complete", logfields.Count(n))
	}
}
