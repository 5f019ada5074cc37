package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/savaki/appsync-deployer/internal/dao/deploydao"
	"github.com/savaki/appsync-deployer/internal/deployer"
	"github.com/savaki/appsync-deployer/internal/di"
	"github.com/savaki/appsync-deployer/internal/manifest"
	"github.com/savaki/appsync-deployer/internal/policy"
	"github.com/savaki/appsync-deployer/internal/services"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"
)

func ApplyCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "apply",
		Usage: "Create or update an AppSync API from a manifest",
		Description: `Apply reconciles the manifest against AWS, creating or updating the
GraphQL API, its schema, logging resources, functions, and resolvers in
dependency order. The resulting stack state is recorded in DynamoDB and
published to SSM Parameter Store.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "manifest",
				Aliases:  []string{"m"},
				Usage:    "Path to the manifest YAML file",
				Required: true,
				EnvVars:  []string{"MANIFEST_PATH"},
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
				Usage: "Show what would be deployed without creating resources",
			},
		},
		Action: func(c *cli.Context) error {
			return applyAction(c, logger)
		},
	}
}

func applyAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := logger.WithContext(context.Background())

	manifestPath := c.String("manifest")
	env := c.String("env")
	dryRun := c.Bool("dry-run")

	m, source, err := loadManifest(manifestPath)
	if err != nil {
		return err
	}

	validator, err := policy.NewValidator()
	if err != nil {
		return err
	}
	result, err := validator.ValidateManifest(m, env)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return fmt.Errorf("manifest rejected by policy: %s", strings.Join(result.Violations, "; "))
	}

	if dryRun {
		order, err := deployer.Plan(m)
		if err != nil {
			return err
		}
		logger.Info().Msgf("DRY RUN: Would apply %q to %s in the following order:", m.Name, env)
		for _, node := range order {
			logger.Info().Msgf("  - %s", node)
		}
		return nil
	}

	container, err := di.New(env)
	if err != nil {
		return err
	}

	var (
		dao    = di.MustGet[*deploydao.DAO](container)
		dep    = di.MustGet[*deployer.Deployer](container)
		store  = di.MustGet[services.OutputStore](container)
		record deploydao.Record
	)

	record, err = dao.Create(ctx, deploydao.CreateInput{
		API:       m.Name,
		Env:       env,
		SK:        ksuid.New().String(),
		Operation: deploydao.OperationApply,
		Manifest:  source,
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

	state, err := dep.Apply(ctx, m)
	if err != nil {
		status = deploydao.DeployStatusFailed
		errorMsg := err.Error()
		if updateErr := dao.UpdateStatus(ctx, deploydao.UpdateInput{
			PK:       record.PK,
			SK:       record.SK,
			Status:   &status,
			ErrorMsg: &errorMsg,
		}); updateErr != nil {
			logger.Warn().Err(updateErr).Msg("Failed to record deploy failure")
		}
		return err
	}

	payload, err := state.Marshal()
	if err != nil {
		return err
	}

	status = deploydao.DeployStatusSuccess
	if err := dao.UpdateStatus(ctx, deploydao.UpdateInput{
		PK:      record.PK,
		SK:      record.SK,
		Status:  &status,
		APIID:   state.APIID,
		Outputs: payload,
	}); err != nil {
		return err
	}

	paramName, err := store.PutOutputs(ctx, m.Name, payload)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to publish outputs to SSM")
	} else {
		logger.Info().Msgf("Outputs published to SSM: %s", paramName)
	}

	logger.Info().Msg("")
	logger.Info().Msg("========================================")
	logger.Info().Msg("Apply Complete!")
	logger.Info().Msg("========================================")
	logger.Info().Msgf("API:       %s", state.APIName)
	logger.Info().Msgf("API ID:    %s", state.APIID)
	for name, uri := range state.URIs {
		logger.Info().Msgf("URI %s: %s", name, uri)
	}
	logger.Info().Msgf("Deploy ID: %s", record.GetID())

	return nil
}

// loadManifest reads and parses a manifest, returning both the parsed
// form and the raw YAML source for deploy-history records.
func loadManifest(path string) (*manifest.Manifest, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return nil, "", err
	}
	return m, string(data), nil
}
