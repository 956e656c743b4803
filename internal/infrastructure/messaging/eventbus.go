// Package messaging delivers domain events to in-process subscribers.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/drivehub/drivehub-api/internal/domain/shared"
)

var (
	// ErrBusClosed is returned by every call after Close.
	ErrBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("event handler panicked")
)

// Options configures a Bus.
type Options struct {
	// Async delivers each event on a background goroutine. At most Workers
	// events are being delivered at once. Handlers of one event always run
	// in registration order.
	Async   bool
	Workers int

	Logger *slog.Logger
}

// Stats counts what the bus has done since it was created.
type Stats struct {
	Published int64 `json:"published"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
}

// Bus fans events out to handlers registered by type or for every type.
// Handler errors and panics are logged and counted, never returned to the
// publisher, whose transaction has already committed.
type Bus struct {
	mu       sync.RWMutex
	byType   map[shared.EventType][]shared.EventHandler
	wildcard []shared.EventHandler
	closed   bool

	async   bool
	workers *semaphore.Weighted
	pending sync.WaitGroup

	logger *slog.Logger

	published atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

var _ shared.EventBus = (*Bus)(nil)

// New creates a Bus. Workers defaults to 8.
func New(opts Options) *Bus {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Bus{
		byType:  make(map[shared.EventType][]shared.EventHandler),
		async:   opts.Async,
		workers: semaphore.NewWeighted(int64(opts.Workers)),
		logger:  opts.Logger.With("component", "event_bus"),
	}
}

// Subscribe registers handler for one event type.
func (b *Bus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.register(handler, func() {
		b.byType[eventType] = append(b.byType[eventType], handler)
	})
}

// SubscribeAll registers handler for every event type.
func (b *Bus) SubscribeAll(handler shared.EventHandler) error {
	return b.register(handler, func() {
		b.wildcard = append(b.wildcard, handler)
	})
}

func (b *Bus) register(handler shared.EventHandler, add func()) error {
	if handler == nil {
		return errors.New("nil event handler")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	add()
	return nil
}

// Publish delivers event to its handlers.
func (b *Bus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("nil event")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	typed := b.byType[event.EventType()]
	handlers := make([]shared.EventHandler, 0, len(typed)+len(b.wildcard))
	handlers = append(handlers, typed...)
	handlers = append(handlers, b.wildcard...)
	if b.async {
		// Added under the lock so Close cannot miss it.
		b.pending.Add(1)
	}
	b.mu.RUnlock()

	b.published.Add(1)
	if !b.async {
		b.deliver(event, handlers)
		return nil
	}

	go func() {
		defer b.pending.Done()
		// Background never cancels, so Acquire only returns once a slot frees.
		_ = b.workers.Acquire(context.Background(), 1)
		defer b.workers.Release(1)
		b.deliver(event, handlers)
	}()
	return nil
}

func (b *Bus) deliver(event shared.Event, handlers []shared.EventHandler) {
	for _, h := range handlers {
		if err := invoke(event, h); err != nil {
			b.failed.Add(1)
			b.logger.Error("event handler failed",
				"event_type", event.EventType(),
				"aggregate_id", event.AggregateID(),
				"error", err,
			)
			continue
		}
		b.delivered.Add(1)
	}
}

func invoke(event shared.Event, h shared.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(event)
}

// Stats returns the counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Failed:    b.failed.Load(),
	}
}

// Close rejects further work and waits for async deliveries in flight.
// Calling it again is a no-op.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.pending.Wait()
	return nil
}
