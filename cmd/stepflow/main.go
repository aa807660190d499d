// Package main provides the stepflow command line interface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/stepflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const version = "0.1.0"

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  "stepflow",
		Version:               version,
		Usage:                 "Run file-based step workflows with dependency ordering, parallelism and resume",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("STEPFLOW_LOG_LEVEL", "LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("STEPFLOW_LOG_FORMAT"),
			},
			&cli.StringFlag{
				Name:    "state-url",
				Usage:   "State store: a directory or file:// URL, postgres:// or redis:// (default <working-dir>/.stepflow)",
				Sources: cli.EnvVars("STEPFLOW_STATE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Lifecycle event bus (memory, kafka); empty disables events",
				Sources: cli.EnvVars("STEPFLOW_EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers for --event-bus kafka",
				Sources: cli.EnvVars("STEPFLOW_KAFKA_BROKERS", "KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "env-map",
				Usage:   "Tool to environment mapping file (default env_map.json next to the binary or in the working directory)",
				Sources: cli.EnvVars("STEPFLOW_ENV_MAP"),
			},
			&cli.StringFlag{
				Name:    "micromamba",
				Usage:   "micromamba executable (default next to the binary or on PATH)",
				Sources: cli.EnvVars("STEPFLOW_MICROMAMBA"),
			},
			&cli.StringFlag{
				Name:    "mamba-root-prefix",
				Usage:   "MAMBA_ROOT_PREFIX for isolated environments (default ~/.stepflow/micromamba)",
				Sources: cli.EnvVars("STEPFLOW_MAMBA_ROOT_PREFIX"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			logger := log.Setup(command.String("log-level"), command.String("log-format"))

			return log.ContextWithLogger(ctx, logger), nil
		},
		Commands: []*cli.Command{
			runCommand(),
			validateCommand(),
			statusCommand(),
			resetCommand(),
			serveCommand(),
			watchCommand(),
			scheduleCommand(),
			envsCommand(),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newApp().Run(ctx, os.Args)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		os.Exit(1)
	}
}
