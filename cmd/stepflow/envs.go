package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/toolenv"
	"github.com/dukex/stepflow/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

func envsCommand() *cli.Command {
	return &cli.Command{
		Name:  "envs",
		Usage: "Manage isolated tool environments",
		Commands: []*cli.Command{
			{
				Name:      "setup",
				Usage:     "Create micromamba environments for every non-system tool of a workflow",
				ArgsUsage: "<workflow-file>",
				Action: func(ctx context.Context, command *cli.Command) error {
					path := command.Args().Get(0)
					if path == "" {
						return errWorkflowRequired
					}

					logger := log.FromContext(ctx)

					wf, err := workflow.Load(ctx, logger, path)
					if err != nil {
						return err
					}

					cfg := toolenv.ResolveConfig(logger, toolConfigFromCommand(command))

					envs, err := toolenv.LoadEnvMap(cfg.EnvMapPath)
					if err != nil {
						logger.WarnContext(ctx, "Failed to load environment map, starting empty", "error", err)
					}

					if err := toolenv.NewProvisioner(logger, cfg).Ensure(ctx, wf.Tools, envs); err != nil {
						return err
					}

					out := command.Root().Writer

					for _, tool := range wf.Tools {
						if toolenv.IsSystemTool(tool) {
							fmt.Fprintf(out, "  %-20s %s\n", tool, skippedColor.Sprint("system"))

							continue
						}

						if env, ok := envs.Get(tool); ok {
							fmt.Fprintf(out, "  %-20s %s\n", tool, successColor.Sprint("env:"+env))
						} else {
							fmt.Fprintf(out, "  %-20s %s\n", tool, failureColor.Sprint("missing"))
						}
					}

					return nil
				},
			},
			{
				Name:  "list",
				Usage: "Show the tool to environment mapping",
				Action: func(ctx context.Context, command *cli.Command) error {
					cfg := toolenv.ResolveConfig(log.FromContext(ctx), toolConfigFromCommand(command))

					envs, err := toolenv.LoadEnvMap(cfg.EnvMapPath)
					if err != nil {
						return err
					}

					out := command.Root().Writer
					fmt.Fprintf(out, "%s (%d tools)\n", cfg.EnvMapPath, envs.Len())

					all := envs.All()
					for _, tool := range sortedKeys(all) {
						fmt.Fprintf(out, "  %-20s %s\n", tool, all[tool])
					}

					return nil
				},
			},
		},
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}
