package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/poolpilot/internal/config"
	"git.home.luguber.info/inful/poolpilot/internal/eventstore"
)

// Global context passed to subcommands if we need to share global state later.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags - used by commands that need access to root config.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"poolpilot.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run    RunCmd    `cmd:"" help:"Execute a pilot run inside the current batch allocation"`
	Submit SubmitCmd `cmd:"" help:"Create a run directory and submit the batch job that executes it"`
	Status StatusCmd `cmd:"" help:"Show recent runs from the local run registry"`
	Report ReportCmd `cmd:"" help:"Print the persisted report of a run"`
	Init   InitCmd   `cmd:"" help:"Initialize a new configuration file"`
	Daemon DaemonCmd `cmd:"" help:"Start the monitor daemon (registry sweeps and status pages)"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// LoadConfig loads and validates the configuration file, then reapplies
// logging with the config's log section taken into account.
func LoadConfig(root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	ConfigureLogging(cfg.Log, root.Verbose)
	return cfg, nil
}

// ConfigureLogging installs the process-wide logger. Level precedence:
// --verbose, then POOLPILOT_LOG_LEVEL, then the config file.
func ConfigureLogging(cfg config.LogConfig, verbose bool) {
	opts := &slog.HandlerOptions{Level: resolveLogLevel(cfg.Level, verbose)}

	var handler slog.Handler
	if config.NormalizeLogFormat(cfg.Format) == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// resolveLogLevel handles both the verbose flag and POOLPILOT_LOG_LEVEL.
func resolveLogLevel(configured string, verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	if env := os.Getenv("POOLPILOT_LOG_LEVEL"); env != "" {
		configured = env
	}
	switch config.NormalizeLogLevel(configured) {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OpenRegistry opens the local run registry. Callers that only observe a run
// downgrade failures to warnings; the registry must never block a run.
func OpenRegistry(cfg *config.Config) (eventstore.Store, error) {
	return eventstore.NewSQLiteStore(cfg.Registry.Path)
}
