package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocho011/ict-2025-sub000/backend/models"
)

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus(8)
	var received atomic.Int32
	bus.Subscribe(models.EventKindData, func(ctx context.Context, ev models.Event) error {
		received.Add(1)
		return nil
	})

	bus.Start(context.Background())
	defer bus.Shutdown(100 * time.Millisecond)

	ok := bus.Publish(models.Event{Kind: models.EventKindData, Symbol: "BTCUSDT", Timestamp: time.Now()})
	require.True(t, ok)

	require.Eventually(t, func() bool { return received.Load() == 1 }, time.Second, time.Millisecond)
}

func TestBus_HandlersRunInRegistrationOrder(t *testing.T) {
	bus := NewBus(8)
	var order []int
	bus.Subscribe(models.EventKindSignal, func(ctx context.Context, ev models.Event) error {
		order = append(order, 1)
		return nil
	})
	bus.Subscribe(models.EventKindSignal, func(ctx context.Context, ev models.Event) error {
		order = append(order, 2)
		return nil
	})

	bus.Start(context.Background())
	defer bus.Shutdown(100 * time.Millisecond)

	bus.Publish(models.Event{Kind: models.EventKindSignal, Timestamp: time.Now()})
	require.Eventually(t, func() bool { return len(order) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []int{1, 2}, order)
}

func TestBus_FullQueueDropsAndIncrementsCounter(t *testing.T) {
	bus := NewBus(1)
	blocker := make(chan struct{})
	bus.Subscribe(models.EventKindOrder, func(ctx context.Context, ev models.Event) error {
		<-blocker
		return nil
	})
	bus.Start(context.Background())
	defer close(blocker)
	defer bus.Shutdown(100 * time.Millisecond)

	// first publish is picked up by the processor and blocks on the handler;
	// fill the buffered channel, then overflow it.
	bus.Publish(models.Event{Kind: models.EventKindOrder, Timestamp: time.Now()})
	time.Sleep(20 * time.Millisecond)
	bus.Publish(models.Event{Kind: models.EventKindOrder, Timestamp: time.Now()})
	ok := bus.Publish(models.Event{Kind: models.EventKindOrder, Timestamp: time.Now()})

	assert.False(t, ok)
	assert.Equal(t, int64(1), bus.DropCounts()[models.EventKindOrder])
}

func TestBus_PublishRejectedAfterShutdown(t *testing.T) {
	bus := NewBus(4)
	bus.Start(context.Background())
	bus.Shutdown(10 * time.Millisecond)

	ok := bus.Publish(models.Event{Kind: models.EventKindData, Timestamp: time.Now()})
	assert.False(t, ok)
}

func TestBus_PublishUnknownKindRejected(t *testing.T) {
	bus := NewBus(4)
	bus.Start(context.Background())
	defer bus.Shutdown(100 * time.Millisecond)

	ok := bus.Publish(models.Event{Kind: models.EventKind("bogus"), Timestamp: time.Now()})
	assert.False(t, ok)
}
