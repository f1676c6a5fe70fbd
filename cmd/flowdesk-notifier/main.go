package main

import (
	"context"
	"os"

	"github.com/flowdesk/flowdesk/pkg/cmd"
	"github.com/flowdesk/flowdesk/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("notifier")

	command := &cli.Command{
		Name:                  "flowdesk-notifier",
		Usage:                 "Deliver workflow decision notifications",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "notifier-id",
				Aliases: []string{"id"},
				Usage:   "Custom notifier ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("NOTIFIER_ID"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, memory)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			notifierID := command.String("notifier-id")
			if notifierID == "" {
				notifierID = "notifier-" + uuid.New().String()
			}

			eventBus := cmd.NewEventBus(command.String("event-bus"), "flowdesk-notifier", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			notifier := NewNotifier(notifierID, eventBus, logger)

			return notifier.Start(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
