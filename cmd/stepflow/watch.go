package main

import (
	"context"
	"errors"

	"github.com/dukex/stepflow/pkg/cmd"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/dukex/stepflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Log run lifecycle events published on the event bus",
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.FromContext(ctx).With("module", "watch")

			provider := command.String("event-bus")
			if provider == "" {
				return errors.New("--event-bus is required for watch")
			}

			bus, err := cmd.NewEventBus(provider, command.String("kafka-brokers"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			for _, eventType := range events.AllTypes() {
				if err := bus.Handle(eventType, func(ctx context.Context, event any) error {
					logger.InfoContext(ctx, "Event received", "event_type", eventType, "event", event)

					return nil
				}); err != nil {
					return err
				}
			}

			if err := bus.Subscribe(ctx); err != nil {
				return err
			}

			logger.InfoContext(ctx, "Watching run events", "provider", provider)

			<-ctx.Done()

			return nil
		},
	}
}
