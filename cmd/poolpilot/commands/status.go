package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"git.home.luguber.info/inful/poolpilot/internal/config"
	"git.home.luguber.info/inful/poolpilot/internal/run"
)

// StatusCmd implements the 'status' command.
type StatusCmd struct {
	Limit  int    `short:"n" help:"Maximum number of runs to list" default:"20"`
	Format string `short:"f" help:"Output format: table, json" default:"table" enum:"table,json"`
}

func (s *StatusCmd) Run(_ *Global, root *CLI) error {
	cfg, err := LoadConfig(root)
	if err != nil {
		return err
	}
	return RunStatus(context.Background(), cfg, s.Limit, s.Format)
}

// statusOutcomeOrder is the rendering order for the summary line.
var statusOutcomeOrder = []string{"running", "success", "warning", "failed", "canceled"}

// RunStatus prints outcome totals and the most recent runs from the registry.
func RunStatus(ctx context.Context, cfg *config.Config, limit int, format string) error {
	store, err := OpenRegistry(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	counts, err := store.CountByOutcome(ctx)
	if err != nil {
		return err
	}
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"counts": counts, "runs": runs})
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	parts := make([]string, 0, len(statusOutcomeOrder))
	for _, outcome := range statusOutcomeOrder {
		if n := counts[outcome]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, outcome))
		}
	}
	fmt.Printf("%d runs in %s", total, cfg.Registry.Path)
	if len(parts) > 0 {
		fmt.Printf(" (%s)", strings.Join(parts, ", "))
	}
	fmt.Println()

	if len(runs) == 0 {
		return nil
	}

	fmt.Println()
	fmt.Printf("%-8s  %-10s  %-20s  %-8s  %-19s  %s\n", "RUN", "JOB", "NAME", "OUTCOME", "STARTED", "FINISHED")
	for _, rec := range runs {
		finished := "-"
		if rec.FinishedAt != nil {
			finished = rec.FinishedAt.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-8s  %-10s  %-20s  %-8s  %-19s  %s\n",
			run.ShortID(rec.RunID),
			orDash(rec.JobID),
			orDash(rec.JobName),
			rec.Outcome,
			rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			finished)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
