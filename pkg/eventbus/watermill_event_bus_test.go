package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/salesflow/pkg/channels/gochannel"
	"github.com/dukex/salesflow/pkg/events"
	"github.com/dukex/salesflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *WatermillEventBus {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger), gochannel.DefaultBuffer)
	require.NoError(t, err)

	bus := NewWatermillEventBus(logger, pub, sub)

	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.StageChanged, 1)

	var cacheCalls atomic.Int32

	require.NoError(t, bus.Handle(events.StageChangedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.StageChanged)

		return nil
	}))
	require.NoError(t, bus.Handle(events.StageChangedEvent, func(_ context.Context, _ any) error {
		cacheCalls.Add(1)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	err := bus.Publish(ctx, "lead-1", events.StageChanged{
		BaseEvent: events.BaseEvent{ID: bus.GenerateID(), Type: events.StageChangedEvent, LeadID: "lead-1"},
		From:      models.StageLeadNuevo,
		To:        models.StageContactoInicial,
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "lead-1", event.LeadID)
		assert.Equal(t, models.StageContactoInicial, event.To)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}

	assert.Eventually(t, func() bool { return cacheCalls.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestWatermillEventBus_UnhandledTypesAreSkipped(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deleted := make(chan *events.LeadDeleted, 1)

	require.NoError(t, bus.Handle(events.LeadDeletedEvent, func(_ context.Context, event any) error {
		deleted <- event.(*events.LeadDeleted)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "lead-1", events.RecordCreated{BaseEvent: events.BaseEvent{LeadID: "lead-1"}}))
	require.NoError(t, bus.Publish(ctx, "lead-2", events.LeadDeleted{BaseEvent: events.BaseEvent{LeadID: "lead-2"}, RecordID: "rec-2"}))

	select {
	case event := <-deleted:
		assert.Equal(t, "rec-2", event.RecordID)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestDecode(t *testing.T) {
	event, err := decode(events.RecordCreatedEvent, []byte(`{"lead_id":"lead-9"}`))
	require.NoError(t, err)
	assert.Equal(t, "lead-9", event.(*events.RecordCreated).LeadID)

	event, err = decode("unknown", []byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, event)

	_, err = decode(events.StageChangedEvent, []byte(`not json`))
	assert.Error(t, err)
}

func TestWatermillEventBus_DispatchNacksOnHandlerError(t *testing.T) {
	bus := newTestBus(t)

	require.NoError(t, bus.Handle(events.LeadDeletedEvent, func(context.Context, any) error {
		return errors.New("boom")
	}))

	msg := message.NewMessage("m1", []byte(`{"lead_id":"x"}`))
	msg.Metadata.Set(events.EventTypeMetadataKey, string(events.LeadDeletedEvent))

	bus.dispatch(context.Background(), msg)

	select {
	case <-msg.Nacked():
	case <-time.After(time.Second):
		t.Fatal("message was not nacked")
	}
}
