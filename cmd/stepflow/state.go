package main

import (
	"context"
	"fmt"

	"github.com/dukex/stepflow/pkg/cmd"
	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

func openStateStore(ctx context.Context, command *cli.Command) (persistence.StateStore, error) {
	stateURL := command.String("state-url")
	if stateURL == "" {
		stateURL = ".stepflow"
	}

	return cmd.NewStateStore(ctx, log.FromContext(ctx), stateURL)
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show which steps of a workflow are completed",
		ArgsUsage: "<workflow-file>",
		Action: func(ctx context.Context, command *cli.Command) error {
			path := command.Args().Get(0)
			if path == "" {
				return errWorkflowRequired
			}

			logger := log.FromContext(ctx)
			out := command.Root().Writer

			store, err := openStateStore(ctx, command)
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close state store", "error", err)
				}
			}()

			state, err := store.Load(ctx, path)
			if err != nil {
				if !persistence.IsStateNotFound(err) {
					return err
				}

				state = models.NewWorkflowState(path)
			}

			// The definition is optional: without it only the ledger is shown.
			wf, loadErr := workflow.Load(ctx, logger, path)
			if loadErr != nil {
				logger.DebugContext(ctx, "Workflow definition unavailable", "error", loadErr)

				fmt.Fprintf(out, "Completed steps: %d\n", len(state.CompletedSteps))

				for _, id := range state.CompletedSteps.Sorted() {
					fmt.Fprintf(out, "  %s %s\n", successColor.Sprint("done"), id)
				}
			} else {
				fmt.Fprintf(out, "Completed steps: %d/%d\n", countCompleted(wf, state), len(wf.Steps))

				for _, step := range wf.Steps {
					fmt.Fprintf(out, "  %s %s\n", stepMarker(step.ID, state), step.ID)
				}
			}

			if state.FailedStep != nil {
				fmt.Fprintf(out, "Last failure: %s\n", failureColor.Sprint(*state.FailedStep))
			}

			if !state.Timestamp.IsZero() && state.IsResume() {
				fmt.Fprintf(out, "Last update: %s\n", state.Timestamp.Format("2006-01-02 15:04:05 MST"))
			}

			return nil
		},
	}
}

func countCompleted(wf *models.Workflow, state *models.WorkflowState) int {
	count := 0

	for _, step := range wf.Steps {
		if state.IsCompleted(step.ID) {
			count++
		}
	}

	return count
}

func stepMarker(id string, state *models.WorkflowState) string {
	switch {
	case state.IsCompleted(id):
		return successColor.Sprint("done")
	case state.FailedStep != nil && *state.FailedStep == id:
		return failureColor.Sprint("fail")
	default:
		return skippedColor.Sprint("todo")
	}
}

func resetCommand() *cli.Command {
	return &cli.Command{
		Name:      "reset",
		Usage:     "Delete the recorded progress of a workflow",
		ArgsUsage: "<workflow-file>",
		Action: func(ctx context.Context, command *cli.Command) error {
			path := command.Args().Get(0)
			if path == "" {
				return errWorkflowRequired
			}

			store, err := openStateStore(ctx, command)
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					log.FromContext(ctx).ErrorContext(ctx, "Failed to close state store", "error", err)
				}
			}()

			if err := store.Delete(ctx, path); err != nil {
				return err
			}

			fmt.Fprintf(command.Root().Writer, "State for %s removed\n", persistence.StateKey(path))

			return nil
		},
	}
}
