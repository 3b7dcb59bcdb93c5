package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Pool defaults. The readiness marker is the exact line ipcluster prints
// once every requested engine has registered with the controller.
const (
	DefaultReadyMarker  = "Engines appear to have started successfully"
	defaultPollAttempts = 40
	defaultPollDelay    = 15 * time.Second
	defaultStopTimeout  = 2 * time.Minute
)

const defaultSweepInterval = time.Minute

// ConfigDefaultApplier applies defaults for a specific configuration domain.
type ConfigDefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// CompositeDefaultApplier applies defaults across all configuration domains
type CompositeDefaultApplier struct {
	appliers []ConfigDefaultApplier
}

// NewDefaultApplier creates a composite default applier with all domain appliers.
// Order matters: registry defaults derive from the runs domain.
func NewDefaultApplier() *CompositeDefaultApplier {
	return &CompositeDefaultApplier{
		appliers: []ConfigDefaultApplier{
			&SchedulerDefaultApplier{},
			&RunsDefaultApplier{},
			&PoolDefaultApplier{},
			&AnalysisDefaultApplier{},
			&RegistryDefaultApplier{},
			&NotifyDefaultApplier{},
			&DaemonDefaultApplier{},
			&LogDefaultApplier{},
		},
	}
}

// ApplyDefaults applies defaults for all configuration domains
func (c *CompositeDefaultApplier) ApplyDefaults(cfg *Config) error {
	for _, applier := range c.appliers {
		if err := applier.ApplyDefaults(cfg); err != nil {
			return fmt.Errorf("applying defaults for %s: %w", applier.Domain(), err)
		}
	}
	return nil
}

// SchedulerDefaultApplier handles scheduler directive defaults.
type SchedulerDefaultApplier struct{}

func (s *SchedulerDefaultApplier) Domain() string { return "scheduler" }

func (s *SchedulerDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Scheduler.JobName == "" {
		cfg.Scheduler.JobName = "poolpilot"
	}
	if cfg.Scheduler.Nodes <= 0 {
		cfg.Scheduler.Nodes = 1
	}
	if cfg.Scheduler.Time == "" {
		cfg.Scheduler.Time = "24:00:00"
	}
	if cfg.Scheduler.SbatchBin == "" {
		cfg.Scheduler.SbatchBin = "sbatch"
	}
	for i, mt := range cfg.Scheduler.MailType {
		cfg.Scheduler.MailType[i] = NormalizeMailType(mt)
	}
	return nil
}

// RunsDefaultApplier handles run-directory defaults.
type RunsDefaultApplier struct{}

func (r *RunsDefaultApplier) Domain() string { return "runs" }

func (r *RunsDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Runs.BaseDir == "" {
		cfg.Runs.BaseDir = "./runs"
	}
	return nil
}

// PoolDefaultApplier handles worker-pool defaults.
type PoolDefaultApplier struct{}

func (p *PoolDefaultApplier) Domain() string { return "pool" }

func (p *PoolDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Pool.Bin == "" {
		cfg.Pool.Bin = "ipcluster"
	}
	if cfg.Pool.Engines <= 0 {
		cfg.Pool.Engines = 8
	}
	if cfg.Pool.ReadyMarker == "" {
		cfg.Pool.ReadyMarker = DefaultReadyMarker
	}
	if cfg.Pool.PollAttempts <= 0 {
		cfg.Pool.PollAttempts = defaultPollAttempts
	}
	if cfg.Pool.PollDelay == "" {
		cfg.Pool.PollDelay = defaultPollDelay.String()
	}
	if cfg.Pool.StopTimeout == "" {
		cfg.Pool.StopTimeout = defaultStopTimeout.String()
	}
	return nil
}

// AnalysisDefaultApplier handles analysis invocation defaults.
type AnalysisDefaultApplier struct{}

func (a *AnalysisDefaultApplier) Domain() string { return "analysis" }

func (a *AnalysisDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Analysis.Interpreter == "" {
		cfg.Analysis.Interpreter = "python"
	}
	if cfg.Analysis.Program == "" {
		cfg.Analysis.Program = "run.py"
	}
	if cfg.Analysis.WorkItems <= 0 {
		cfg.Analysis.WorkItems = 5000
	}
	if cfg.Analysis.DataDirEnv == "" {
		cfg.Analysis.DataDirEnv = "DATA_DIR"
	}
	if cfg.Analysis.SourceDir == "" {
		// Provenance is captured from the tree the program lives in.
		cfg.Analysis.SourceDir = filepath.Dir(cfg.Analysis.Program)
	}
	return nil
}

// RegistryDefaultApplier handles run-registry defaults.
type RegistryDefaultApplier struct{}

func (r *RegistryDefaultApplier) Domain() string { return "registry" }

func (r *RegistryDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Registry.Path == "" {
		cfg.Registry.Path = filepath.Join(cfg.Runs.BaseDir, "poolpilot.db")
	}
	return nil
}

// NotifyDefaultApplier handles notification defaults.
type NotifyDefaultApplier struct{}

func (n *NotifyDefaultApplier) Domain() string { return "notify" }

func (n *NotifyDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Notify.SubjectPrefix == "" {
		cfg.Notify.SubjectPrefix = "poolpilot.runs"
	}
	if cfg.Notify.KVBucket == "" {
		cfg.Notify.KVBucket = "poolpilot-runs"
	}
	if len(cfg.Notify.On) == 0 {
		cfg.Notify.On = []string{string(NotifyOnEnd), string(NotifyOnFail)}
	}
	for i, ev := range cfg.Notify.On {
		cfg.Notify.On[i] = string(NormalizeNotifyEvent(ev))
	}
	return nil
}

// DaemonDefaultApplier handles monitor daemon defaults.
type DaemonDefaultApplier struct{}

func (d *DaemonDefaultApplier) Domain() string { return "daemon" }

func (d *DaemonDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Daemon.Listen == "" {
		cfg.Daemon.Listen = ":8725"
	}
	if cfg.Daemon.SweepInterval == "" {
		cfg.Daemon.SweepInterval = defaultSweepInterval.String()
	}
	return nil
}

// LogDefaultApplier handles logging defaults.
type LogDefaultApplier struct{}

func (l *LogDefaultApplier) Domain() string { return "log" }

func (l *LogDefaultApplier) ApplyDefaults(cfg *Config) error {
	cfg.Log.Level = string(NormalizeLogLevel(cfg.Log.Level))
	cfg.Log.Format = string(NormalizeLogFormat(cfg.Log.Format))
	return nil
}
