// Package cmd provides common initialization for the command-line entrypoints.
package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/cascadehq/cascade/pkg/channels/gochannel"
	"github.com/cascadehq/cascade/pkg/channels/kafka"
	"github.com/cascadehq/cascade/pkg/eventbus"
)

// NewEventBus creates the event bus for a service. Kafka is the production
// transport; gochannel keeps single-process deployments and local
// development free of brokers.
func NewEventBus(provider, brokers, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), strings.Split(brokers, ","), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
