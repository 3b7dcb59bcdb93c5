package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	configContent := "scheduler:\n" +
		"  job_name: transit-search\n" +
		"  nodes: 8\n" +
		"  time: \"48:00:00\"\n" +
		"runs:\n" +
		"  base_dir: /tmp/runs\n" +
		"  profile_template: /tmp/profile_mpi\n" +
		"pool:\n" +
		"  engines: 64\n" +
		"analysis:\n" +
		"  program: ./run.py\n"

	cfg, err := Load(writeConfig(t, configContent))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Pool.Bin != "ipcluster" {
		t.Errorf("Pool.Bin = %q, want ipcluster", cfg.Pool.Bin)
	}
	if cfg.Pool.ReadyMarker != DefaultReadyMarker {
		t.Errorf("Pool.ReadyMarker = %q, want default marker", cfg.Pool.ReadyMarker)
	}
	if cfg.Pool.PollAttempts != 40 {
		t.Errorf("Pool.PollAttempts = %d, want 40", cfg.Pool.PollAttempts)
	}
	if got := cfg.Pool.PollDelayDuration(); got != 15*time.Second {
		t.Errorf("PollDelayDuration = %v, want 15s", got)
	}
	if cfg.Analysis.Interpreter != "python" {
		t.Errorf("Analysis.Interpreter = %q, want python", cfg.Analysis.Interpreter)
	}
	if cfg.Analysis.WorkItems != 5000 {
		t.Errorf("Analysis.WorkItems = %d, want 5000", cfg.Analysis.WorkItems)
	}
	if cfg.Analysis.DataDirEnv != "DATA_DIR" {
		t.Errorf("Analysis.DataDirEnv = %q, want DATA_DIR", cfg.Analysis.DataDirEnv)
	}
	if cfg.Registry.Path != filepath.Join("/tmp/runs", "poolpilot.db") {
		t.Errorf("Registry.Path = %q, want derived from runs.base_dir", cfg.Registry.Path)
	}
	if cfg.Scheduler.SbatchBin != "sbatch" {
		t.Errorf("Scheduler.SbatchBin = %q, want sbatch", cfg.Scheduler.SbatchBin)
	}
	if cfg.Daemon.Listen != ":8725" {
		t.Errorf("Daemon.Listen = %q, want :8725", cfg.Daemon.Listen)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("POOLPILOT_TEST_BASE", "/scratch/testbase")

	configContent := "scheduler:\n" +
		"  job_name: expanded\n" +
		"  nodes: 2\n" +
		"  time: \"1:00:00\"\n" +
		"runs:\n" +
		"  base_dir: ${POOLPILOT_TEST_BASE}/runs\n" +
		"  profile_template: ${POOLPILOT_TEST_BASE}/profile\n"

	cfg, err := Load(writeConfig(t, configContent))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Runs.BaseDir != "/scratch/testbase/runs" {
		t.Errorf("BaseDir = %q, want env-expanded path", cfg.Runs.BaseDir)
	}
	if cfg.Runs.ProfileTemplate != "/scratch/testbase/profile" {
		t.Errorf("ProfileTemplate = %q, want env-expanded path", cfg.Runs.ProfileTemplate)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "scheduler: [not: a: mapping\n"))
	if err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestInitWritesExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := Init(path, false); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	// Second init without force must refuse to clobber.
	if err := Init(path, false); err == nil {
		t.Fatal("expected error when config already exists")
	}
	if err := Init(path, true); err != nil {
		t.Fatalf("Init with force failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read generated config: %v", err)
	}
	content := string(data)
	for _, want := range []string{"job_name:", "profile_template:", "work_items:", "mail_type:"} {
		if !strings.Contains(content, want) {
			t.Errorf("generated config missing %q", want)
		}
	}
}

func TestDurationAccessorFallbacks(t *testing.T) {
	p := PoolConfig{PollDelay: "bogus", StopTimeout: ""}
	if got := p.PollDelayDuration(); got != defaultPollDelay {
		t.Errorf("PollDelayDuration fallback = %v, want %v", got, defaultPollDelay)
	}
	if got := p.StopTimeoutDuration(); got != defaultStopTimeout {
		t.Errorf("StopTimeoutDuration fallback = %v, want %v", got, defaultStopTimeout)
	}

	d := DaemonConfig{SweepInterval: "-5s"}
	if got := d.SweepIntervalDuration(); got != defaultSweepInterval {
		t.Errorf("SweepIntervalDuration fallback = %v, want %v", got, defaultSweepInterval)
	}
}

func TestNotifiesOn(t *testing.T) {
	n := NotifyConfig{On: []string{"begin", "fail"}}
	if !n.NotifiesOn(NotifyOnBegin) {
		t.Error("expected begin notifications enabled")
	}
	if n.NotifiesOn(NotifyOnEnd) {
		t.Error("expected end notifications disabled")
	}
	if !n.NotifiesOn(NotifyOnFail) {
		t.Error("expected fail notifications enabled")
	}
}
