package main

import (
	"os"

	"github.com/urfave/cli/v2"

	forgecli "github.com/n01d-forge/forge-sdk/cli"
	"github.com/n01d-forge/forge-sdk/types"
)

func main() {
	level := os.Getenv("FORGE_LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	logger := types.NewForgeLogger("forge", level, false)

	app := &cli.App{
		Name:     "forge",
		Usage:    "write, erase, encrypt and verify disk images on block devices",
		Commands: forgecli.CliCommands(logger),
	}

	if err := app.Run(os.Args); err != nil {
		logger.Logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
