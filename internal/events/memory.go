package events

import (
	"context"
	"log/slog"
	"time"
)

// MemoryBus delivers events synchronously to in-process subscribers. Every handler has run by
// the time Publish returns.
type MemoryBus struct {
	reg      *registry
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// NewMemoryBus constructs an in-process bus. recorder may be nil.
func NewMemoryBus(logger *slog.Logger, recorder Recorder) *MemoryBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryBus{reg: newRegistry(logger, recorder), logger: logger, recorder: recorder, now: time.Now}
}

// Publish fans out to subscribers. It reports false only when the event could not be built.
func (b *MemoryBus) Publish(ctx context.Context, eventType string, payload any) bool {
	evt, err := NewEvent(ctx, eventType, payload, b.now())
	if err != nil {
		b.logger.Error("event encode", slog.String("event_type", eventType), slog.Any("error", err))
		b.record(eventType, false)
		return false
	}
	b.reg.dispatch(ctx, evt)
	b.record(eventType, true)
	return true
}

// Subscribe registers handler for eventType, or every type when eventType is All.
func (b *MemoryBus) Subscribe(eventType string, handler Handler) Subscription {
	return b.reg.subscribe(eventType, handler)
}

// Unsubscribe removes a handler registered with Subscribe.
func (b *MemoryBus) Unsubscribe(eventType string, sub Subscription) bool {
	return b.reg.unsubscribe(eventType, sub)
}

func (b *MemoryBus) record(eventType string, ok bool) {
	if b.recorder != nil {
		b.recorder.EventPublished(eventType, ok)
	}
}

// Nop discards every event. Useful where no consumers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) bool { return true }

func (Nop) Subscribe(string, Handler) Subscription { return 0 }

func (Nop) Unsubscribe(string, Subscription) bool { return false }
