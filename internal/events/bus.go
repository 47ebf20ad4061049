// Package events implements the domain event bus used to decouple state transitions from
// downstream consumers such as notifications.
package events

import (
	"context"
	"encoding/json"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fieldforce/fieldforce/internal/shared"
)

// Event types published by the workflow.
const (
	LocationApprovalRequested = "location.approval.requested"
	LocationApproved          = "location.approval.approved"
	LocationRejected          = "location.approval.rejected"
	BookingSubmitted          = "booking.submitted"
	BookingApproved           = "booking.approved"
	BookingRejected           = "booking.rejected"
	BookingCanceled           = "booking.canceled"
	BookingCompleted          = "booking.completed"
	KitAssigned               = "kit.assigned"
	KitReleased               = "kit.released"

	// All subscribes a handler to every event type.
	All = "*"
)

// Metadata describes who caused an event and how to correlate it.
type Metadata struct {
	UserID         string    `json:"userId,omitempty"`
	OrganizationID string    `json:"organizationId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	CorrelationID  string    `json:"correlationId"`
}

// Event is a published domain event.
type Event struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Metadata Metadata        `json:"metadata"`
}

// Decode unmarshals the payload into dest.
func (e Event) Decode(dest any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, dest)
}

// Handler consumes an event. Returned errors are logged by the bus.
type Handler func(ctx context.Context, evt Event) error

// Subscription identifies a registered handler for Unsubscribe.
type Subscription uint64

// Bus publishes events to subscribers.
type Bus interface {
	Publish(ctx context.Context, eventType string, payload any) bool
	Subscribe(eventType string, handler Handler) Subscription
	Unsubscribe(eventType string, sub Subscription) bool
}

// Recorder receives bus outcomes; observability.Metrics implements it.
type Recorder interface {
	EventPublished(eventType string, ok bool)
	EventHandlerFailed(eventType string)
}

// NewEvent builds an event, taking metadata from the request context.
func NewEvent(ctx context.Context, eventType string, payload any, now time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	meta := Metadata{Timestamp: now.UTC()}
	if sess := shared.SessionFromContext(ctx); sess != nil {
		meta.UserID = sess.UserID
		meta.OrganizationID = sess.OrganizationID
	}
	meta.CorrelationID = correlationID(ctx)
	return Event{ID: shared.NewULID(), Type: eventType, Payload: raw, Metadata: meta}, nil
}

func correlationID(ctx context.Context) string {
	if id := shared.RequestMetaFromContext(ctx).RequestID; id != "" {
		return id
	}
	if id := chimw.GetReqID(ctx); id != "" {
		return id
	}
	return shared.NewULID()
}
