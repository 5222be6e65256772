// Package eventbus carries committed pipeline changes from the engine to the
// collaborators that react to them: stage automations and analytics cache
// invalidation.
package eventbus

import (
	"context"
	"fmt"

	"github.com/dukex/salesflow/pkg/events"
)

// Event is anything the engine emits after a commit.
type Event interface {
	GetType() events.EventType
}

// EventPublisher sends an event. key is the lead id, so events for one lead
// stay ordered on partitioned transports.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// PublisherFunc adapts a plain function to EventPublisher.
type PublisherFunc func(ctx context.Context, key string, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, key string, event Event) error {
	return f(ctx, key, event)
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a decoded event pointer, e.g. *events.StageChanged.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

// HandleAll registers one handler for several event types.
func HandleAll(subscriber EventSubscriber, handler EventHandler, eventTypes ...events.EventType) error {
	for _, eventType := range eventTypes {
		if err := subscriber.Handle(eventType, handler); err != nil {
			return fmt.Errorf("failed to register handler for %s: %w", eventType, err)
		}
	}

	return nil
}
