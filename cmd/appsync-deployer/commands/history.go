package commands

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/savaki/appsync-deployer/internal/dao/deploydao"
	"github.com/savaki/appsync-deployer/internal/di"
	"github.com/urfave/cli/v2"
)

func HistoryCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show deploy history for an API",
		Description: `History lists the recorded deploys for an API in an environment, or the
latest deploy for every API when --latest is set.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api",
				Aliases: []string{"a"},
				Usage:   "Name of the API",
			},
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"environment"},
				Usage:   "Environment name (dev, staging, prod)",
				Value:   "dev",
				EnvVars: []string{"DEPLOY_ENV"},
			},
			&cli.BoolFlag{
				Name:  "latest",
				Usage: "Show only the latest deploy for each API in the environment",
			},
		},
		Action: func(c *cli.Context) error {
			return historyAction(c, logger)
		},
	}
}

func historyAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := logger.WithContext(context.Background())

	apiName := c.String("api")
	env := c.String("env")
	latestOnly := c.Bool("latest")

	container, err := di.New(env)
	if err != nil {
		return err
	}

	dao := di.MustGet[*deploydao.DAO](container)

	var records []deploydao.Record
	if latestOnly {
		records, err = dao.QueryLatestDeploys(ctx, env)
	} else {
		if apiName == "" {
			return cli.Exit("either --api or --latest is required", 1)
		}
		records, err = dao.QueryByAPIEnv(ctx, apiName, env)
	}
	if err != nil {
		return err
	}

	if len(records) == 0 {
		logger.Info().Msgf("No deploys found in %s", env)
		return nil
	}

	for _, record := range records {
		event := logger.Info().
			Str("id", record.GetID().String()).
			Str("operation", string(record.Operation)).
			Str("status", string(record.Status))
		if record.APIID != "" {
			event = event.Str("api_id", record.APIID)
		}
		if record.ErrorMsg != nil {
			event = event.Str("error", *record.ErrorMsg)
		}
		event.Int64("updated_at", record.UpdatedAt).Msg(record.API)
	}

	return nil
}
