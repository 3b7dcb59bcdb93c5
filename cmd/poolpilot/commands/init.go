package commands

import (
	"fmt"

	"git.home.luguber.info/inful/poolpilot/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite existing configuration file"`
}

func (i *InitCmd) Run(_ *Global, root *CLI) error {
	return RunInit(root.Config, i.Force)
}

func RunInit(configPath string, force bool) error {
	// Friendly user-facing messages on stdout; errors go through the CLI
	// error adapter.
	fmt.Printf("Writing example configuration to %s\n", configPath)
	if err := config.Init(configPath, force); err != nil {
		return err
	}
	fmt.Println("Configuration initialized successfully. Edit it before submitting a run.")
	return nil
}
