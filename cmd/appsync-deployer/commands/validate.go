package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/savaki/appsync-deployer/internal/policy"
	"github.com/savaki/appsync-deployer/internal/schema"
	"github.com/urfave/cli/v2"
)

func ValidateCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate a manifest without deploying",
		Description: `Validate parses the manifest, resolves and parses the GraphQL schema,
and evaluates the deployment policy for the target environment. Schemas
referenced from S3 are fetched, so AWS credentials may be required.`,
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
		},
		Action: func(c *cli.Context) error {
			return validateAction(c, logger)
		},
	}
}

func validateAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := logger.WithContext(context.Background())

	env := c.String("env")

	m, _, err := loadManifest(c.String("manifest"))
	if err != nil {
		return err
	}
	logger.Info().Msgf("Manifest OK: %s", m.Name)

	// An S3 client is only needed when the schema lives in S3, so local
	// manifests validate without AWS credentials.
	var s3Client *s3.Client
	if m.Schema.S3 != "" {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return err
		}
		s3Client = s3.NewFromConfig(cfg)
	}

	loader := schema.NewLoader(s3Client)
	if _, err := loader.Load(ctx, m.Schema); err != nil {
		return err
	}
	logger.Info().Msg("Schema OK")

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
	logger.Info().Msgf("Policy OK for %s", env)

	return nil
}
