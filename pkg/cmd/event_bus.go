package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/salesflow/pkg/channels/gochannel"
	"github.com/dukex/salesflow/pkg/channels/kafka"
	"github.com/dukex/salesflow/pkg/eventbus"
)

// NewEventBus creates the event bus for provider. The in-memory provider only
// delivers events inside the current process and queues up to buffer events
// per subscriber.
func NewEventBus(logger *slog.Logger, provider, brokers, serviceName string, buffer int64) (*eventbus.WatermillEventBus, error) {
	adapter := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(adapter, kafka.ParseBrokers(brokers), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub), nil
	case "gochannel", "memory", "":
		pub, sub, err := gochannel.CreateChannel(adapter, buffer)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
