// Package notifications bridges decision events onto the background job queue.
package notifications

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/fieldforce/fieldforce/internal/events"
	"github.com/fieldforce/fieldforce/jobs"
)

// Enqueuer accepts tasks; jobs.Client satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task) error
}

// Subscriber enqueues notification tasks for decision events.
type Subscriber struct {
	queue  Enqueuer
	logger *slog.Logger
	subs   map[string]events.Subscription
}

// NewSubscriber builds a Subscriber.
func NewSubscriber(queue Enqueuer, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{queue: queue, logger: logger}
}

// Attach registers the subscriber on bus.
func (s *Subscriber) Attach(bus events.Bus) {
	s.subs = map[string]events.Subscription{
		events.LocationApproved: bus.Subscribe(events.LocationApproved, s.location),
		events.LocationRejected: bus.Subscribe(events.LocationRejected, s.location),
		events.BookingApproved:  bus.Subscribe(events.BookingApproved, s.booking),
		events.BookingRejected:  bus.Subscribe(events.BookingRejected, s.booking),
	}
}

// Detach removes every registration made by Attach.
func (s *Subscriber) Detach(bus events.Bus) {
	for eventType, sub := range s.subs {
		bus.Unsubscribe(eventType, sub)
	}
	s.subs = nil
}

func (s *Subscriber) location(ctx context.Context, evt events.Event) error {
	task, err := jobs.NewLocationDecisionTask(evt)
	if err != nil {
		return err
	}
	return s.enqueue(ctx, evt, task)
}

func (s *Subscriber) booking(ctx context.Context, evt events.Event) error {
	task, err := jobs.NewBookingDecisionTask(evt)
	if err != nil {
		return err
	}
	return s.enqueue(ctx, evt, task)
}

// enqueue detaches from the request context so a finished response does not cancel the write.
func (s *Subscriber) enqueue(ctx context.Context, evt events.Event, task *asynq.Task) error {
	if err := s.queue.Enqueue(context.WithoutCancel(ctx), task); err != nil {
		return err
	}
	s.logger.Debug("notification enqueued", slog.String("event_type", evt.Type), slog.String("event_id", evt.ID))
	return nil
}
