package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Expand, check and print the execution order of a workflow",
		ArgsUsage: "<workflow-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "write-expanded",
				Usage: "Write the expanded workflow as YAML to this path",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			path := command.Args().Get(0)
			if path == "" {
				return errWorkflowRequired
			}

			logger := log.FromContext(ctx)
			out := command.Root().Writer

			wf, err := workflow.Load(ctx, logger, path)
			if err != nil {
				return fmt.Errorf("workflow '%s' is invalid: %w", path, err)
			}

			fmt.Fprintf(out, "%s %s: %d steps, %d tools\n",
				successColor.Sprint("Valid"), path, len(wf.Steps), len(wf.Tools))
			fmt.Fprintln(out, headerColor.Sprint("Execution order:"))

			for i, step := range wf.Steps {
				deps := ""
				if len(step.Previous) > 0 {
					deps = " after " + strings.Join(step.Previous, ", ")
				}

				fmt.Fprintf(out, "  %3d. %s [%s, threads=%d]%s\n", i+1, step.ID, step.Tool, step.Threads, deps)
			}

			if target := command.String("write-expanded"); target != "" {
				if err := workflow.Save(wf, target); err != nil {
					return err
				}

				fmt.Fprintf(out, "Expanded workflow written to %s\n", target)
			}

			return nil
		},
	}
}
