package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/savaki/appsync-deployer/internal/dao/deploydao"
	"github.com/savaki/appsync-deployer/internal/deployer"
	"github.com/savaki/appsync-deployer/internal/di"
	"github.com/savaki/appsync-deployer/internal/services"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"
)

func DestroyCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "destroy",
		Usage: "Tear down a deployed AppSync API",
		Description: `Destroy removes a previously applied stack in the reverse of creation
order: resolvers first, then functions, the log group, the API itself,
and finally the logging role. The stack state is read from SSM Parameter
Store where apply published it.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "api",
				Aliases:  []string{"a"},
				Usage:    "Name of the API to destroy",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"environment"},
				Usage:   "Environment name (dev, staging, prod)",
				Value:   "dev",
				EnvVars: []string{"DEPLOY_ENV"},
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Show what would be destroyed without deleting resources",
			},
		},
		Action: func(c *cli.Context) error {
			return destroyAction(c, logger)
		},
	}
}

func destroyAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := logger.WithContext(context.Background())

	apiName := c.String("api")
	env := c.String("env")
	dryRun := c.Bool("dry-run")

	container, err := di.New(env)
	if err != nil {
		return err
	}

	store := di.MustGet[services.OutputStore](container)

	payload, err := store.GetOutputs(ctx, apiName)
	if err != nil {
		return err
	}
	if payload == "" {
		return fmt.Errorf("no recorded outputs for api %q in %s", apiName, env)
	}

	state, err := deployer.UnmarshalState(payload)
	if err != nil {
		return err
	}

	if dryRun {
		logger.Info().Msgf("DRY RUN: Would destroy %q (api id %s):", apiName, state.APIID)
		logger.Info().Msgf("  - %d pipeline resolver(s)", len(state.PipelineResolvers))
		logger.Info().Msgf("  - %d unit resolver(s)", len(state.UnitResolvers))
		logger.Info().Msgf("  - %d function(s)", len(state.Functions))
		if state.LogGroup != "" {
			logger.Info().Msgf("  - log group %s", state.LogGroup)
		}
		logger.Info().Msg("  - the GraphQL API")
		if state.LoggingRole != nil {
			logger.Info().Msgf("  - logging role %s", state.LoggingRole.RoleName)
		}
		return nil
	}

	var (
		dao = di.MustGet[*deploydao.DAO](container)
		dep = di.MustGet[*deployer.Deployer](container)
	)

	record, err := dao.Create(ctx, deploydao.CreateInput{
		API:       apiName,
		Env:       env,
		SK:        ksuid.New().String(),
		Operation: deploydao.OperationDestroy,
	})
	if err != nil {
		return err
	}

	status := deploydao.DeployStatusInProgress
	if err := dao.UpdateStatus(ctx, deploydao.UpdateInput{
		PK:     record.PK,
		SK:     record.SK,
		Status: &status,
	}); err != nil {
		return err
	}

	if err := dep.Destroy(ctx, state); err != nil {
		status = deploydao.DeployStatusFailed
		errorMsg := err.Error()
		if updateErr := dao.UpdateStatus(ctx, deploydao.UpdateInput{
			PK:       record.PK,
			SK:       record.SK,
			Status:   &status,
			ErrorMsg: &errorMsg,
		}); updateErr != nil {
			logger.Warn().Err(updateErr).Msg("Failed to record destroy failure")
		}
		return err
	}

	if err := store.DeleteOutputs(ctx, apiName); err != nil {
		logger.Warn().Err(err).Msg("Failed to remove outputs from SSM")
	}

	status = deploydao.DeployStatusSuccess
	if err := dao.UpdateStatus(ctx, deploydao.UpdateInput{
		PK:     record.PK,
		SK:     record.SK,
		Status: &status,
	}); err != nil {
		return err
	}

	logger.Info().Msgf("Destroyed %q in %s", apiName, env)
	return nil
}
