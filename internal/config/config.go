package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Runs      RunsConfig      `yaml:"runs"`
	Pool      PoolConfig      `yaml:"pool"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Registry  RegistryConfig  `yaml:"registry"`
	Notify    NotifyConfig    `yaml:"notify"`
	Daemon    DaemonConfig    `yaml:"daemon"`
	Log       LogConfig       `yaml:"log"`
}

// SchedulerConfig holds the declarative batch-job metadata handed to the
// resource scheduler. These become #SBATCH directives; none of them is
// interpreted by poolpilot itself.
type SchedulerConfig struct {
	JobName   string   `yaml:"job_name"`
	Nodes     int      `yaml:"nodes"`
	Time      string   `yaml:"time"`                // wall-time limit, e.g. "48:00:00"
	Mem       string   `yaml:"mem,omitempty"`       // per-node memory, e.g. "120G"
	Partition string   `yaml:"partition,omitempty"`
	MailType  []string `yaml:"mail_type,omitempty"` // BEGIN|END|FAIL|ALL|NONE
	MailUser  string   `yaml:"mail_user,omitempty"`
	SbatchBin string   `yaml:"sbatch_bin,omitempty"`
}

// RunsConfig locates run directories and the profile template they start from.
type RunsConfig struct {
	BaseDir         string `yaml:"base_dir"`
	ProfileTemplate string `yaml:"profile_template"`
}

// PoolConfig parameterizes the worker-pool manager and the readiness check.
type PoolConfig struct {
	Bin          string   `yaml:"bin,omitempty"`
	Engines      int      `yaml:"engines"`
	ReadyMarker  string   `yaml:"ready_marker,omitempty"`
	PollAttempts int      `yaml:"poll_attempts,omitempty"`
	PollDelay    string   `yaml:"poll_delay,omitempty"`
	StopTimeout  string   `yaml:"stop_timeout,omitempty"`
	ExtraArgs    []string `yaml:"extra_args,omitempty"`
}

// PollDelayDuration returns the parsed poll delay, falling back to the
// default when unset or invalid (validation reports the error separately).
func (p PoolConfig) PollDelayDuration() time.Duration {
	d, err := time.ParseDuration(p.PollDelay)
	if err != nil || d <= 0 {
		return defaultPollDelay
	}
	return d
}

// StopTimeoutDuration returns the parsed teardown timeout with fallback.
func (p PoolConfig) StopTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(p.StopTimeout)
	if err != nil || d <= 0 {
		return defaultStopTimeout
	}
	return d
}

// AnalysisConfig describes the external analysis program and its environment.
type AnalysisConfig struct {
	Interpreter string            `yaml:"interpreter,omitempty"`
	Program     string            `yaml:"program"`
	WorkItems   int               `yaml:"work_items"`
	DataDir     string            `yaml:"data_dir,omitempty"`
	DataDirEnv  string            `yaml:"data_dir_env,omitempty"`
	PathPrepend []string          `yaml:"path_prepend,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	SourceDir   string            `yaml:"source_dir,omitempty"`
}

// RegistryConfig locates the local run registry database.
type RegistryConfig struct {
	Path string `yaml:"path,omitempty"`
}

// NotifyConfig configures NATS lifecycle notifications. An empty URL
// disables publishing entirely.
type NotifyConfig struct {
	NATSURL       string   `yaml:"nats_url,omitempty"`
	SubjectPrefix string   `yaml:"subject_prefix,omitempty"`
	KVBucket      string   `yaml:"kv_bucket,omitempty"`
	On            []string `yaml:"on,omitempty"` // begin|end|fail
}

// DaemonConfig configures the monitor daemon.
type DaemonConfig struct {
	Listen        string `yaml:"listen,omitempty"`
	SweepInterval string `yaml:"sweep_interval,omitempty"`
}

// SweepIntervalDuration returns the parsed sweep interval with fallback.
func (d DaemonConfig) SweepIntervalDuration() time.Duration {
	dur, err := time.ParseDuration(d.SweepInterval)
	if err != nil || dur <= 0 {
		return defaultSweepInterval
	}
	return dur
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	// Load .env files first so ${VAR} references in the YAML can resolve
	// from them. Existing process environment wins.
	loadEnvFiles()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := NewDefaultApplier().ApplyDefaults(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	exampleConfig := Config{
		Scheduler: SchedulerConfig{
			JobName:  "transit-search",
			Nodes:    8,
			Time:     "48:00:00",
			Mem:      "120G",
			MailType: []string{"BEGIN", "END", "FAIL"},
			MailUser: "you@example.org",
		},
		Runs: RunsConfig{
			BaseDir:         "${HOME}/runs",
			ProfileTemplate: "${HOME}/.ipython/profile_mpi",
		},
		Pool: PoolConfig{
			Engines:      64,
			PollAttempts: 40,
			PollDelay:    "15s",
		},
		Analysis: AnalysisConfig{
			Interpreter: "python",
			Program:     "./run.py",
			WorkItems:   5000,
			DataDir:     "/scratch/data",
			DataDirEnv:  "DATA_DIR",
			PathPrepend: []string{"${HOME}/.local/bin"},
		},
		Notify: NotifyConfig{
			NATSURL: "nats://localhost:4222",
			On:      []string{"begin", "end", "fail"},
		},
	}

	data, err := yaml.Marshal(&exampleConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// loadEnvFiles loads environment variables from .env/.env.local files.
// Existing process environment variables are not overwritten (godotenv
// semantics). Absence of the files is not an error.
func loadEnvFiles() {
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err != nil {
			fmt.Fprintf(os.Stderr, "Note: %s could not be loaded: %v\n", envPath, err)
			continue
		}
		fmt.Fprintf(os.Stderr, "Loaded environment variables from %s\n", envPath)
	}
}
