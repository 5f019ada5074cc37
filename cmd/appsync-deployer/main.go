package main

import (
	"context"
	"os"

	"github.com/savaki/appsync-deployer/cmd/appsync-deployer/commands"
	"github.com/savaki/appsync-deployer/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "appsync-deployer",
		Usage: "AppSync API deployment toolkit",
		Description: `A CLI tool for deploying AppSync GraphQL APIs from declarative manifests.

This tool provides commands for:
  - Applying a manifest to create or update an API, its schema, functions, and resolvers
  - Destroying a deployed API and its supporting resources
  - Validating manifests against schema and policy checks before deploying`,
		Commands: []*cli.Command{
			commands.ApplyCommand(&logger),
			commands.DestroyCommand(&logger),
			commands.PlanCommand(&logger),
			commands.ValidateCommand(&logger),
			commands.HistoryCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
