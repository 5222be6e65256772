//go:build integration

package kafka_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/salesflow/pkg/channels/kafka"
	"github.com/dukex/salesflow/pkg/eventbus"
	"github.com/dukex/salesflow/pkg/events"
	"github.com/dukex/salesflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkatc "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func setupKafka(t *testing.T) []string {
	t.Helper()

	ctx := context.Background()

	container, err := kafkatc.Run(ctx, "confluentinc/confluent-local:7.5.0", kafkatc.WithClusterID("salesflow-test"))
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, testcontainers.TerminateContainer(container))
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0

	admin, err := sarama.NewClusterAdmin(brokers, config)
	require.NoError(t, err)

	defer func() {
		_ = admin.Close()
	}()

	require.NoError(t, admin.CreateTopic(events.Topic, &sarama.TopicDetail{NumPartitions: 3, ReplicationFactor: 1}, false))

	return brokers
}

func TestKafkaChannel_DeliversPipelineEvents(t *testing.T) {
	brokers := setupKafka(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), brokers, "integration")
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(logger, pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	received := make(chan *events.StageChanged, 1)
	require.NoError(t, bus.Handle(events.StageChangedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.StageChanged)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "lead-1", &events.StageChanged{
		BaseEvent: events.BaseEvent{ID: "evt-1", Type: events.StageChangedEvent, LeadID: "lead-1", Timestamp: time.Now().UTC()},
		From:      models.StageLeadNuevo,
		To:        models.StageContactoInicial,
	}))

	select {
	case event := <-received:
		assert.Equal(t, "lead-1", event.LeadID)
		assert.Equal(t, models.StageContactoInicial, event.To)
	case <-time.After(60 * time.Second):
		t.Fatal("event not delivered through Kafka")
	}
}
