// Package engine hosts the event bus and trading engine lifecycle that
// route closed candles, signals, and order events between the streamers,
// the composable strategies, and the exchange gateway.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ocho011/ict-2025-sub000/backend/models"
)

// Handler processes one event off a bus queue. An error is logged by the
// bus and does not stop the processor from moving to the next handler or
// the next event.
type Handler func(ctx context.Context, ev models.Event) error

// watermarks are the queue-occupancy percentages that trigger a rate-limited
// backpressure warning, in ascending order.
var watermarks = []int{25, 50, 75, 90, 100}

// queueState holds one logical queue's channel, subscribers, and
// backpressure accounting.
type queueState struct {
	ch          chan models.Event
	capacity    int
	handlers    []Handler
	dropped     atomic.Int64
	lastWarnPct atomic.Int32
}

func newQueueState(capacity int) *queueState {
	return &queueState{ch: make(chan models.Event, capacity), capacity: capacity}
}

// checkWatermark logs a rate-limited backpressure warning the first time the
// queue's occupancy crosses a new watermark bucket, and resets once
// occupancy falls back under the lowest bucket.
func (q *queueState) checkWatermark(kind models.EventKind) {
	pct := (len(q.ch) * 100) / q.capacity
	last := int(q.lastWarnPct.Load())

	if pct < watermarks[0] {
		q.lastWarnPct.Store(0)
		return
	}

	crossed := 0
	for _, wm := range watermarks {
		if pct >= wm {
			crossed = wm
		}
	}
	if crossed > last {
		q.lastWarnPct.Store(int32(crossed))
		log.Warn().
			Str("queue", string(kind)).
			Int("occupancy_pct", pct).
			Int("capacity", q.capacity).
			Msg("event bus queue approaching capacity")
	}
}

// Bus fans typed events out onto three FIFO logical queues — data, signal,
// and order — each served by its own single-consumer processor goroutine.
// Publish is safe to call concurrently from any goroutine; handlers always
// run on the bus's processor goroutine for their queue, never on the
// caller's.
type Bus struct {
	queues    map[models.EventKind]*queueState
	accepting atomic.Bool
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

// NewBus constructs a bus with the given per-queue channel capacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 256
	}
	b := &Bus{
		queues: map[models.EventKind]*queueState{
			models.EventKindData:   newQueueState(capacity),
			models.EventKindSignal: newQueueState(capacity),
			models.EventKindOrder:  newQueueState(capacity),
		},
	}
	b.accepting.Store(true)
	return b
}

// Subscribe registers a handler for a queue kind. Handlers for the same kind
// run sequentially in registration order. Subscribe must be called before
// Start; it is not safe to call concurrently with Publish.
func (b *Bus) Subscribe(kind models.EventKind, h Handler) {
	q, ok := b.queues[kind]
	if !ok {
		return
	}
	q.handlers = append(q.handlers, h)
}

// Publish enqueues an event onto its logical queue via a non-blocking
// channel send. If the queue is full or the bus is no longer accepting new
// events (shutting down), the event is dropped and the queue's drop
// counter is incremented; Publish reports whether the event was accepted.
func (b *Bus) Publish(ev models.Event) bool {
	q, ok := b.queues[ev.Kind]
	if !ok || !b.accepting.Load() {
		return false
	}

	select {
	case q.ch <- ev:
		q.checkWatermark(ev.Kind)
		return true
	default:
		q.dropped.Add(1)
		log.Warn().Str("queue", string(ev.Kind)).Str("symbol", ev.Symbol).Msg("event bus queue full, dropping event")
		return false
	}
}

// Start spawns one processor goroutine per queue. The returned context
// cancellation (via Shutdown) stops all processors.
func (b *Bus) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	for kind, q := range b.queues {
		b.wg.Add(1)
		go b.process(ctx, kind, q)
	}
}

func (b *Bus) process(ctx context.Context, kind models.EventKind, q *queueState) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-q.ch:
			b.dispatch(ctx, kind, q, ev)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, kind models.EventKind, q *queueState, ev models.Event) {
	for _, h := range q.handlers {
		if err := h(ctx, ev); err != nil {
			log.Error().Err(err).Str("queue", string(kind)).Str("symbol", ev.Symbol).Msg("event bus handler error")
		}
	}
}

// drainBudgets allocates a shutdown drain timeout per queue from the total
// shutdown timeout: the order queue is privileged and gets the full budget
// so fills and cancellations are never silently dropped; signal gets half;
// data, the highest-volume and most disposable queue, gets a quarter.
func (b *Bus) drainBudgets(total time.Duration) map[models.EventKind]time.Duration {
	return map[models.EventKind]time.Duration{
		models.EventKindOrder:  total,
		models.EventKindSignal: total / 2,
		models.EventKindData:   total / 4,
	}
}

// Shutdown stops accepting new events, drains each queue up to its share of
// timeout (order queue privileged, data queue drained first and may be cut
// short), then stops the processor goroutines and waits for them to exit.
func (b *Bus) Shutdown(timeout time.Duration) {
	b.accepting.Store(false)

	budgets := b.drainBudgets(timeout)
	var wg sync.WaitGroup
	for kind, q := range b.queues {
		wg.Add(1)
		go func(kind models.EventKind, q *queueState, budget time.Duration) {
			defer wg.Done()
			deadline := time.Now().Add(budget)
			for len(q.ch) > 0 && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}
		}(kind, q, budgets[kind])
	}
	wg.Wait()

	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

// DropCounts returns the current drop counter for every queue, for the
// operator metrics surface.
func (b *Bus) DropCounts() map[models.EventKind]int64 {
	out := make(map[models.EventKind]int64, len(b.queues))
	for kind, q := range b.queues {
		out[kind] = q.dropped.Load()
	}
	return out
}
