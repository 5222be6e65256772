package analytics

import (
	"context"

	"github.com/dukex/salesflow/pkg/events"
)

// Cache stores computed results as JSON under short keys.
type Cache interface {
	// Get decodes the value into dest and reports whether it was present.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	// Invalidate drops every cached result.
	Invalidate(ctx context.Context) error
}

func (a *Aggregator) fromCache(ctx context.Context, key string, dest any) bool {
	if a.cache == nil {
		return false
	}

	found, err := a.cache.Get(ctx, key, dest)
	if err != nil {
		a.logger.WarnContext(ctx, "Analytics cache read failed", "key", key, "error", err)

		return false
	}

	if found {
		a.recorder.CacheHit(key)
	} else {
		a.recorder.CacheMiss(key)
	}

	return found
}

func (a *Aggregator) toCache(ctx context.Context, key string, value any) {
	if a.cache == nil {
		return
	}

	if err := a.cache.Set(ctx, key, value); err != nil {
		a.logger.WarnContext(ctx, "Analytics cache write failed", "key", key, "error", err)
	}
}

// Invalidate drops cached results. Safe to call without a cache.
func (a *Aggregator) Invalidate(ctx context.Context) error {
	if a.cache == nil {
		return nil
	}

	return a.cache.Invalidate(ctx)
}

// InvalidationEvents are the events after which cached results are stale.
var InvalidationEvents = []events.EventType{
	events.RecordCreatedEvent,
	events.RecordUpdatedEvent,
	events.StageChangedEvent,
	events.LeadDeletedEvent,
}

// HandleEvent is an event bus handler that invalidates the cache.
func (a *Aggregator) HandleEvent(ctx context.Context, _ any) error {
	if err := a.Invalidate(ctx); err != nil {
		a.logger.WarnContext(ctx, "Analytics cache invalidation failed", "error", err)

		return err
	}

	return nil
}
