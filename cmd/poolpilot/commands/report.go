package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/poolpilot/internal/config"
	"git.home.luguber.info/inful/poolpilot/internal/eventstore"
	"git.home.luguber.info/inful/poolpilot/internal/run"
)

// ReportCmd implements the 'report' command.
type ReportCmd struct {
	Target string `arg:"" name:"run" help:"Run directory, run ID, or the short ID that status prints"`
	JSON   bool   `help:"Print the raw report JSON instead of the markdown report"`
}

func (r *ReportCmd) Run(_ *Global, root *CLI) error {
	cfg, err := LoadConfig(root)
	if err != nil {
		return err
	}
	return RunReport(context.Background(), cfg, r.Target, r.JSON)
}

// RunReport prints a persisted run report to stdout.
func RunReport(ctx context.Context, cfg *config.Config, target string, asJSON bool) error {
	dir, err := resolveRunDir(ctx, cfg, target)
	if err != nil {
		return err
	}

	name := run.ReportMarkdownName
	if asJSON {
		name = run.ReportJSONName
	}
	data, err := os.ReadFile(filepath.Join(dir, name)) // #nosec G304 - path comes from operator input
	if err != nil {
		return fmt.Errorf("no report found in %s: %w", dir, err)
	}
	_, err = os.Stdout.Write(data)
	return err
}

// resolveRunDir turns the command argument into a run directory. A directory
// that exists on disk wins; anything else is looked up in the registry by run
// ID, accepting the shortened prefix that status prints.
func resolveRunDir(ctx context.Context, cfg *config.Config, arg string) (string, error) {
	if fi, err := os.Stat(arg); err == nil && fi.IsDir() {
		return arg, nil
	}

	store, err := OpenRegistry(cfg)
	if err != nil {
		return "", err
	}
	defer store.Close()

	rec, err := store.GetRun(ctx, arg)
	if err == nil {
		return runDirOf(*rec)
	}
	if !errors.Is(err, eventstore.ErrRunNotFound) {
		return "", err
	}

	runs, err := store.ListRuns(ctx, 500)
	if err != nil {
		return "", err
	}
	var matches []eventstore.RunRecord
	for _, r := range runs {
		if strings.HasPrefix(r.RunID, arg) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 1:
		return runDirOf(matches[0])
	case 0:
		return "", fmt.Errorf("run %q not found (not a directory, not a known run ID)", arg)
	default:
		return "", fmt.Errorf("run ID prefix %q is ambiguous (%d matches)", arg, len(matches))
	}
}

func runDirOf(rec eventstore.RunRecord) (string, error) {
	if rec.RunDir == "" {
		return "", fmt.Errorf("registry has no run directory for run %s", run.ShortID(rec.RunID))
	}
	return rec.RunDir, nil
}
