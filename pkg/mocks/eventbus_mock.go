package mocks

import (
	"context"

	"github.com/dukex/salesflow/pkg/eventbus"
	"github.com/dukex/salesflow/pkg/events"
	"github.com/stretchr/testify/mock"
)

// MockEventBus is a testify mock of eventbus.EventBus.
type MockEventBus struct {
	mock.Mock
}

var _ eventbus.EventBus = (*MockEventBus)(nil)

// ExpectPublish expects one Publish for leadID carrying an event of eventType.
func (m *MockEventBus) ExpectPublish(leadID string, eventType events.EventType) *mock.Call {
	return m.On("Publish", mock.Anything, leadID, mock.MatchedBy(func(e eventbus.Event) bool {
		return e.GetType() == eventType
	})).Once()
}

// PublishedEvents returns the events passed to Publish, in call order.
func (m *MockEventBus) PublishedEvents() []eventbus.Event {
	var published []eventbus.Event

	for _, call := range m.Calls {
		if call.Method != "Publish" {
			continue
		}

		if event, ok := call.Arguments.Get(2).(eventbus.Event); ok {
			published = append(published, event)
		}
	}

	return published
}

func (m *MockEventBus) Publish(ctx context.Context, key string, event eventbus.Event) error {
	args := m.Called(ctx, key, event)

	return args.Error(0)
}

func (m *MockEventBus) Handle(eventType events.EventType, handler eventbus.EventHandler) error {
	args := m.Called(eventType, handler)

	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}

func (m *MockEventBus) GenerateID() string {
	args := m.Called()

	return args.String(0)
}
