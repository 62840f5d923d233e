// Package event delivers committed fee events to in-process subscribers
package event

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/feesettle/backend/internal/domain/shared"
	"github.com/feesettle/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// InMemoryEventBus fans events out to subscribed handlers.
//
// Delivery is synchronous by default. With WithAsyncDelivery, a running bus
// hands events to a single worker through a bounded queue, so subscribers
// still see one school's events in publish order. When the queue is full,
// or the bus is not running, the publishing goroutine delivers inline.
// A failing or panicking handler never blocks the others.
type InMemoryEventBus struct {
	logger *zap.Logger

	mu      sync.RWMutex
	byType  map[string][]shared.EventHandler
	anyType []shared.EventHandler

	queueSize int
	queueMu   sync.RWMutex
	queue     chan queuedEvent
	running   atomic.Bool
	wg        sync.WaitGroup

	delivered atomic.Int64
	failed    atomic.Int64
}

type queuedEvent struct {
	ctx   context.Context
	event shared.DomainEvent
}

// BusOption configures an InMemoryEventBus
type BusOption func(*InMemoryEventBus)

// WithAsyncDelivery queues up to size events for a background worker
func WithAsyncDelivery(size int) BusOption {
	return func(b *InMemoryEventBus) {
		if size > 0 {
			b.queueSize = size
		}
	}
}

// NewInMemoryEventBus creates a bus with no subscribers
func NewInMemoryEventBus(logger *zap.Logger, opts ...BusOption) *InMemoryEventBus {
	b := &InMemoryEventBus{
		logger: logger,
		byType: make(map[string][]shared.EventHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for eventTypes, falling back to the handler's
// own EventTypes. A handler with no types receives every event.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(eventTypes) == 0 {
		b.anyType = append(b.anyType, handler)
	}
	for _, t := range eventTypes {
		b.byType[t] = append(b.byType[t], handler)
	}
	b.logger.Debug("Event handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes handler from every event type
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	drop := func(h shared.EventHandler) bool { return h == handler }
	b.anyType = slices.DeleteFunc(b.anyType, drop)
	for t, hs := range b.byType {
		if hs = slices.DeleteFunc(hs, drop); len(hs) == 0 {
			delete(b.byType, t)
		} else {
			b.byType[t] = hs
		}
	}
}

// handlersFor returns a snapshot safe to iterate without the lock
func (b *InMemoryEventBus) handlersFor(eventType string) []shared.EventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Concat(b.byType[eventType], b.anyType)
}

// Publish delivers events in order. Handler failures are logged and
// counted; Publish itself only fails on a cancelled context.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if b.enqueue(ctx, e) {
			continue
		}
		b.deliver(ctx, e)
	}
	return nil
}

func (b *InMemoryEventBus) enqueue(ctx context.Context, e shared.DomainEvent) bool {
	b.queueMu.RLock()
	defer b.queueMu.RUnlock()
	if b.queue == nil || !b.running.Load() {
		return false
	}
	select {
	case b.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), event: e}:
		return true
	default:
		b.logger.Warn("Event queue full, delivering inline",
			zap.String("event_type", e.EventType()),
			zap.Int("queue_size", b.queueSize))
		return false
	}
}

func (b *InMemoryEventBus) deliver(ctx context.Context, e shared.DomainEvent) {
	ctx, span := telemetry.StartConsumer(ctx, "event.deliver",
		telemetry.SpanAttrEventType, e.EventType(),
		telemetry.SpanAttrSchoolID, e.SchoolID(),
	)
	defer span.End()

	for _, h := range b.handlersFor(e.EventType()) {
		if err := b.dispatch(ctx, h, e); err != nil {
			b.failed.Add(1)
			telemetry.RecordError(span, err)
			b.logger.Error("Event handler failed",
				zap.String("event_type", e.EventType()),
				zap.String("event_id", e.EventID().String()),
				zap.String("school_id", e.SchoolID().String()),
				zap.Error(err))
			continue
		}
		b.delivered.Add(1)
	}
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, h shared.EventHandler, e shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &handlerPanic{value: r}
		}
	}()
	return h.Handle(ctx, e)
}

// Start launches the delivery worker when async delivery is configured
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	if b.running.Load() {
		return nil
	}
	if b.queueSize > 0 {
		b.queue = make(chan queuedEvent, b.queueSize)
		b.wg.Add(1)
		go b.work(b.queue)
	}
	b.running.Store(true)
	b.logger.Info("Event bus started", zap.Bool("async", b.queueSize > 0))
	return nil
}

func (b *InMemoryEventBus) work(queue <-chan queuedEvent) {
	defer b.wg.Done()
	for q := range queue {
		b.deliver(q.ctx, q.event)
	}
}

// Stop closes the queue and waits for queued events to drain or ctx to end
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.queueMu.Lock()
	if !b.running.Load() {
		b.queueMu.Unlock()
		return nil
	}
	b.running.Store(false)
	if b.queue != nil {
		close(b.queue)
		b.queue = nil
	}
	b.queueMu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.logger.Info("Event bus stopped",
		zap.Int64("delivered", b.delivered.Load()),
		zap.Int64("failed", b.failed.Load()))
	return nil
}

// Stats returns how many handler invocations succeeded and failed
func (b *InMemoryEventBus) Stats() (delivered, failed int64) {
	return b.delivered.Load(), b.failed.Load()
}

type handlerPanic struct {
	value any
}

func (p *handlerPanic) Error() string {
	return fmt.Sprintf("event handler panicked: %v", p.value)
}

var _ shared.EventPublisher = (*InMemoryEventBus)(nil)
