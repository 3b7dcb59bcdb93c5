package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ValidateConfig validates the complete configuration structure.
func ValidateConfig(cfg *Config) error {
	validator := newConfigurationValidator(cfg)
	return validator.validate()
}

// configurationValidator coordinates validation across all configuration domains.
type configurationValidator struct {
	config *Config
}

// newConfigurationValidator creates a comprehensive configuration validator.
func newConfigurationValidator(config *Config) *configurationValidator {
	return &configurationValidator{config: config}
}

// validate performs comprehensive configuration validation using domain-specific methods.
func (cv *configurationValidator) validate() error {
	if err := cv.validateScheduler(); err != nil {
		return err
	}
	if err := cv.validateRuns(); err != nil {
		return err
	}
	if err := cv.validatePool(); err != nil {
		return err
	}
	if err := cv.validateAnalysis(); err != nil {
		return err
	}
	if err := cv.validateNotify(); err != nil {
		return err
	}
	if err := cv.validateDaemon(); err != nil {
		return err
	}
	return nil
}

// Accepted scheduler time forms: minutes, MM:SS, HH:MM:SS, D-HH, D-HH:MM, D-HH:MM:SS.
var walltimePattern = regexp.MustCompile(`^(\d+|\d+:\d{1,2}(:\d{1,2})?|\d+-\d{1,2}(:\d{1,2}(:\d{1,2})?)?)$`)

// Memory spec: integer with optional K/M/G/T suffix.
var memPattern = regexp.MustCompile(`^\d+[KMGTkmgt]?$`)

var envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateScheduler validates the declarative job metadata.
func (cv *configurationValidator) validateScheduler() error {
	s := cv.config.Scheduler
	if s.JobName == "" {
		return errors.New("scheduler.job_name cannot be empty")
	}
	if s.Nodes <= 0 {
		return fmt.Errorf("scheduler.nodes must be positive: %d", s.Nodes)
	}
	if !walltimePattern.MatchString(s.Time) {
		return fmt.Errorf("invalid scheduler.time: %q (expected minutes, HH:MM:SS, or D-HH:MM:SS)", s.Time)
	}
	if s.Mem != "" && !memPattern.MatchString(s.Mem) {
		return fmt.Errorf("invalid scheduler.mem: %q (expected integer with optional K/M/G/T suffix)", s.Mem)
	}
	for _, mt := range s.MailType {
		if NormalizeMailType(mt) == "" {
			return fmt.Errorf("invalid scheduler.mail_type entry: %q (allowed: BEGIN|END|FAIL|ALL|NONE)", mt)
		}
	}
	return nil
}

// validateRuns validates run-directory configuration.
func (cv *configurationValidator) validateRuns() error {
	if cv.config.Runs.BaseDir == "" {
		return errors.New("runs.base_dir cannot be empty")
	}
	if cv.config.Runs.ProfileTemplate == "" {
		return errors.New("runs.profile_template is required")
	}
	return nil
}

// validatePool validates worker-pool and readiness-poll configuration.
func (cv *configurationValidator) validatePool() error {
	p := cv.config.Pool
	if p.Engines <= 0 {
		return fmt.Errorf("pool.engines must be positive: %d", p.Engines)
	}
	if p.PollAttempts <= 0 {
		return fmt.Errorf("pool.poll_attempts must be positive: %d", p.PollAttempts)
	}
	if p.ReadyMarker == "" {
		return errors.New("pool.ready_marker cannot be empty")
	}
	if d, err := time.ParseDuration(p.PollDelay); err != nil {
		return fmt.Errorf("invalid pool.poll_delay: %s: %w", p.PollDelay, err)
	} else if d <= 0 {
		return fmt.Errorf("pool.poll_delay must be positive: %s", p.PollDelay)
	}
	if d, err := time.ParseDuration(p.StopTimeout); err != nil {
		return fmt.Errorf("invalid pool.stop_timeout: %s: %w", p.StopTimeout, err)
	} else if d <= 0 {
		return fmt.Errorf("pool.stop_timeout must be positive: %s", p.StopTimeout)
	}
	return nil
}

// validateAnalysis validates the analysis invocation contract.
func (cv *configurationValidator) validateAnalysis() error {
	a := cv.config.Analysis
	if a.Program == "" {
		return errors.New("analysis.program is required")
	}
	if a.WorkItems <= 0 {
		return fmt.Errorf("analysis.work_items must be positive: %d", a.WorkItems)
	}
	if a.DataDir != "" && !envNamePattern.MatchString(a.DataDirEnv) {
		return fmt.Errorf("invalid analysis.data_dir_env: %q", a.DataDirEnv)
	}
	for name := range a.Env {
		if !envNamePattern.MatchString(name) {
			return fmt.Errorf("invalid analysis.env variable name: %q", name)
		}
	}
	return nil
}

// validateNotify validates the notification policy.
func (cv *configurationValidator) validateNotify() error {
	n := cv.config.Notify
	for _, ev := range n.On {
		if NormalizeNotifyEvent(ev) == "" {
			return fmt.Errorf("invalid notify.on entry: %q (allowed: begin|end|fail)", ev)
		}
	}
	if n.NATSURL != "" && n.SubjectPrefix == "" {
		return errors.New("notify.subject_prefix is required when notify.nats_url is set")
	}
	return nil
}

// validateDaemon validates monitor daemon settings.
func (cv *configurationValidator) validateDaemon() error {
	d := cv.config.Daemon
	if d.Listen == "" {
		return errors.New("daemon.listen cannot be empty")
	}
	if dur, err := time.ParseDuration(d.SweepInterval); err != nil {
		return fmt.Errorf("invalid daemon.sweep_interval: %s: %w", d.SweepInterval, err)
	} else if dur <= 0 {
		return fmt.Errorf("daemon.sweep_interval must be positive: %s", d.SweepInterval)
	}
	return nil
}
