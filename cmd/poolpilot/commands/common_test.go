package commands

import (
	"log/slog"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/poolpilot/internal/config"
)

// TestCLIGrammar parses representative command lines so a bad kong tag fails
// here instead of at startup.
func TestCLIGrammar(t *testing.T) {
	cases := [][]string{
		{"run"},
		{"run", "--run-dir", t.TempDir(), "--run-id", "abc", "--work-items", "100"},
		{"submit", "--dry-run"},
		{"status", "-n", "5", "--format", "json"},
		{"report", "some-run", "--json"},
		{"init", "--force"},
		{"daemon"},
	}
	for _, args := range cases {
		parser, err := kong.New(&CLI{}, kong.Vars{"version": "test"})
		require.NoError(t, err)
		_, err = parser.Parse(args)
		require.NoError(t, err, "args: %v", args)
	}
}

func TestCLIGrammarRejectsUnknownFormat(t *testing.T) {
	parser, err := kong.New(&CLI{}, kong.Vars{"version": "test"})
	require.NoError(t, err)
	_, err = parser.Parse([]string{"status", "--format", "xml"})
	require.Error(t, err)
}

func TestResolveLogLevel(t *testing.T) {
	t.Run("verbose wins", func(t *testing.T) {
		t.Setenv("POOLPILOT_LOG_LEVEL", "error")
		require.Equal(t, slog.LevelDebug, resolveLogLevel("warn", true))
	})

	t.Run("env wins over config", func(t *testing.T) {
		t.Setenv("POOLPILOT_LOG_LEVEL", "error")
		require.Equal(t, slog.LevelError, resolveLogLevel("warn", false))
	})

	t.Run("config fallback", func(t *testing.T) {
		t.Setenv("POOLPILOT_LOG_LEVEL", "")
		require.Equal(t, slog.LevelWarn, resolveLogLevel("warn", false))
	})

	t.Run("unknown level defaults to info", func(t *testing.T) {
		t.Setenv("POOLPILOT_LOG_LEVEL", "")
		require.Equal(t, slog.LevelInfo, resolveLogLevel("chatty", false))
	})
}

func TestOpenRegistryUsesConfiguredPath(t *testing.T) {
	cfg := &config.Config{}
	cfg.Registry.Path = ":memory:"

	store, err := OpenRegistry(cfg)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}
