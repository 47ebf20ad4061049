package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type subscriber struct {
	id      Subscription
	handler Handler
}

// registry holds local subscribers and dispatches to them with per-handler isolation.
type registry struct {
	mu       sync.RWMutex
	nextID   Subscription
	handlers map[string][]subscriber
	logger   *slog.Logger
	recorder Recorder
}

func newRegistry(logger *slog.Logger, recorder Recorder) *registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &registry{handlers: make(map[string][]subscriber), logger: logger, recorder: recorder}
}

func (r *registry) subscribe(eventType string, handler Handler) Subscription {
	if handler == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.handlers[eventType] = append(r.handlers[eventType], subscriber{id: r.nextID, handler: handler})
	return r.nextID
}

func (r *registry) unsubscribe(eventType string, sub Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.handlers[eventType]
	for i, s := range subs {
		if s.id != sub {
			continue
		}
		next := make([]subscriber, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(r.handlers, eventType)
		} else {
			r.handlers[eventType] = next
		}
		return true
	}
	return false
}

func (r *registry) snapshot(eventType string) []subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]subscriber, 0, len(r.handlers[eventType])+len(r.handlers[All]))
	out = append(out, r.handlers[eventType]...)
	if eventType != All {
		out = append(out, r.handlers[All]...)
	}
	return out
}

// dispatch invokes every matching handler in registration order. It returns the number of
// handlers that failed.
func (r *registry) dispatch(ctx context.Context, evt Event) int {
	failed := 0
	for _, sub := range r.snapshot(evt.Type) {
		if err := r.invoke(ctx, sub, evt); err != nil {
			failed++
			r.logger.Error("event handler failed",
				slog.String("event_type", evt.Type),
				slog.String("event_id", evt.ID),
				slog.Uint64("subscription", uint64(sub.id)),
				slog.Any("error", err))
			if r.recorder != nil {
				r.recorder.EventHandlerFailed(evt.Type)
			}
		}
	}
	return failed
}

func (r *registry) invoke(ctx context.Context, sub subscriber, evt Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return sub.handler(ctx, evt)
}
