package eventbus_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/stepflow/pkg/channels/gochannel"
	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newBus(t)
	received := make(chan *events.StepCompleted, 1)

	require.NoError(t, bus.Handle(events.StepCompletedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.StepCompleted)

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	err := bus.Publish(t.Context(), "run-1", events.StepCompleted{
		BaseEvent: events.NewBaseEvent(events.StepCompletedEvent, "run-1", "wf.yaml"),
		StepID:    "align_a",
		Duration:  2 * time.Second,
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "align_a", event.StepID)
		assert.Equal(t, "run-1", event.RunID)
		assert.Equal(t, 2*time.Second, event.Duration)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_UnhandledTypesAreAcked(t *testing.T) {
	bus := newBus(t)
	received := make(chan string, 2)

	require.NoError(t, bus.Handle(events.RunCompletedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.RunCompleted).RunID

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	require.NoError(t, bus.Publish(t.Context(), "run-2", events.StepStarted{
		BaseEvent: events.NewBaseEvent(events.StepStartedEvent, "run-2", "wf.yaml"),
		StepID:    "a",
	}))
	require.NoError(t, bus.Publish(t.Context(), "run-2", events.RunCompleted{
		BaseEvent: events.NewBaseEvent(events.RunCompletedEvent, "run-2", "wf.yaml"),
		Executed:  1,
	}))

	select {
	case runID := <-received:
		assert.Equal(t, "run-2", runID)
	case <-time.After(5 * time.Second):
		t.Fatal("run.completed was not delivered")
	}

	assert.NotEmpty(t, bus.GenerateID())
}
