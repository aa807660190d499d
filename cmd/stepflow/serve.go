package main

import (
	"context"
	"strconv"

	"github.com/dukex/stepflow/pkg/log"
	"github.com/dukex/stepflow/pkg/web"
	"github.com/gofiber/fiber/v3"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the state and pause control HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("STEPFLOW_PORT", "PORT"),
			},
			&cli.StringFlag{
				Name:    "pause-file",
				Usage:   "Pause sentinel controlled through /pause",
				Sources: cli.EnvVars("STEPFLOW_PAUSE_FILE"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.FromContext(ctx).With("module", "serve")

			store, err := openStateStore(ctx, command)
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close state store", "error", err)
				}
			}()

			app := web.NewAPIHandlers(logger, store, command.String("pause-file")).App()

			go func() {
				<-ctx.Done()

				if err := app.Shutdown(); err != nil {
					logger.Error("Failed to shut down API server", "error", err)
				}
			}()

			addr := ":" + strconv.Itoa(command.Int("port"))
			logger.InfoContext(ctx, "Starting API server", "addr", addr)

			return app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
		},
	}
}
