package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/poolpilot/cmd/poolpilot/commands"
	perrors "git.home.luguber.info/inful/poolpilot/internal/errors"
	"git.home.luguber.info/inful/poolpilot/internal/version"
)

func main() {
	var cli commands.CLI
	ctx := kong.Parse(&cli,
		kong.Name("poolpilot"),
		kong.Description("Pilot for batch-scheduled worker-pool analysis runs: submits the job, brings the pool up, runs the analysis, and reports."),
		kong.Vars{"version": version.Version},
		kong.UsageOnError(),
	)

	err := ctx.Run(&commands.Global{Logger: slog.Default()})

	// Exit code is binary by contract: 0 on success, 1 on any error.
	perrors.NewCLIErrorAdapter(cli.Verbose, nil).HandleError(err)
}
