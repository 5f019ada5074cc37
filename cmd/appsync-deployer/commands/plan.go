package commands

import (
	"github.com/rs/zerolog"
	"github.com/savaki/appsync-deployer/internal/deployer"
	"github.com/urfave/cli/v2"
)

func PlanCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Show the order resources would be applied in",
		Description: `Plan loads a manifest, builds the resource dependency graph, and prints
the topological order apply would use. No AWS calls are made.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "manifest",
				Aliases:  []string{"m"},
				Usage:    "Path to the manifest YAML file",
				Required: true,
				EnvVars:  []string{"MANIFEST_PATH"},
			},
		},
		Action: func(c *cli.Context) error {
			return planAction(c, logger)
		},
	}
}

func planAction(c *cli.Context, logger *zerolog.Logger) error {
	m, _, err := loadManifest(c.String("manifest"))
	if err != nil {
		return err
	}

	order, err := deployer.Plan(m)
	if err != nil {
		return err
	}

	logger.Info().Msgf("Apply order for %q (%d resources):", m.Name, len(order))
	for i, node := range order {
		logger.Info().Msgf("  %d. %s", i+1, node)
	}
	return nil
}
