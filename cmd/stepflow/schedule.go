package main

import (
	"context"
	"time"

	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/scheduler"
	cli "github.com/urfave/cli/v3"
)

func scheduleCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:     "cron",
			Usage:    "Five field cron expression or descriptor (@hourly, @every 30m)",
			Required: true,
			Sources:  cli.EnvVars("STEPFLOW_CRON"),
		},
	}, runFlags()...)

	return &cli.Command{
		Name:      "schedule",
		Usage:     "Run a workflow repeatedly on a cron schedule (every firing starts fresh unless --fresh=false)",
		ArgsUsage: "<workflow-file> [pause-file]",
		Flags:     flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			settings, err := scheduleSettingsFromCommand(command)
			if err != nil {
				return err
			}

			logger := log.FromContext(ctx)
			out := command.Root().Writer

			job := func(ctx context.Context) error {
				report, err := executeWorkflow(ctx, logger, settings)
				printReport(out, report, err)

				return err
			}

			s, err := scheduler.New(command.String("cron"), job, logger)
			if err != nil {
				return err
			}

			if err := s.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
			defer cancel()

			return s.Stop(stopCtx)
		},
	}
}

// scheduleSettingsFromCommand is runSettingsFromCommand with Fresh on by
// default: a resumed ledger would make every firing after the first a no-op.
func scheduleSettingsFromCommand(command *cli.Command) (runSettings, error) {
	settings, err := runSettingsFromCommand(command)
	if err != nil {
		return settings, err
	}

	if !command.IsSet("fresh") {
		settings.Fresh = true
	}

	return settings, nil
}
