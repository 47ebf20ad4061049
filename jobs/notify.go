package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/fieldforce/fieldforce/internal/events"
	"github.com/fieldforce/fieldforce/internal/platform/httpx"
	"github.com/fieldforce/fieldforce/internal/users"
)

// Notification is a message for one user.
type Notification struct {
	To         string
	Name       string
	Subject    string
	Body       string
	EventType  string
	ResourceID string
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier delivers notifications as structured log records.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, msg Notification) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification delivered",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("event_type", msg.EventType),
		slog.String("resource_id", msg.ResourceID),
	)
	return nil
}

// RecipientLookup resolves users; users.Service satisfies it.
type RecipientLookup interface {
	Lookup(ctx context.Context, id string) (users.User, error)
}

// NotificationJob turns decision tasks into notifications for the original requester.
type NotificationJob struct {
	users    RecipientLookup
	notifier Notifier
	logger   *slog.Logger
}

// NewNotificationJob wires the job handlers.
func NewNotificationJob(lookup RecipientLookup, notifier Notifier, logger *slog.Logger) *NotificationJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationJob{users: lookup, notifier: notifier, logger: logger}
}

// HandleLocationDecision processes TaskNotifyLocationDecision.
func (j *NotificationJob) HandleLocationDecision(ctx context.Context, t *asynq.Task) error {
	var p LocationDecisionPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	d := p.Decision
	n := Notification{EventType: p.EventType, ResourceID: d.LocationID}
	switch p.EventType {
	case events.LocationApproved:
		n.Subject = fmt.Sprintf("Location approved: %s", d.Name)
		n.Body = fmt.Sprintf("Your request for %s has been approved and can now be booked.", d.Name)
	case events.LocationRejected:
		n.Subject = fmt.Sprintf("Location rejected: %s", d.Name)
		n.Body = fmt.Sprintf("Your request for %s was rejected. Reason: %s", d.Name, d.Reason)
	default:
		j.logger.Warn("unexpected location event", slog.String("event_type", p.EventType))
		return nil
	}
	return j.deliver(ctx, d.RequestedByID, n)
}

// HandleBookingDecision processes TaskNotifyBookingDecision.
func (j *NotificationJob) HandleBookingDecision(ctx context.Context, t *asynq.Task) error {
	var p BookingDecisionPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	d := p.Decision
	n := Notification{EventType: p.EventType, ResourceID: d.BookingID}
	switch p.EventType {
	case events.BookingApproved:
		n.Subject = fmt.Sprintf("Booking approved: %s", d.Title)
		n.Body = fmt.Sprintf("%s is confirmed.", d.Title)
	case events.BookingRejected:
		n.Subject = fmt.Sprintf("Booking rejected: %s", d.Title)
		n.Body = fmt.Sprintf("%s was rejected. Reason: %s", d.Title, d.Reason)
	default:
		j.logger.Warn("unexpected booking event", slog.String("event_type", p.EventType))
		return nil
	}
	return j.deliver(ctx, d.RequestedByID, n)
}

func (j *NotificationJob) deliver(ctx context.Context, userID string, n Notification) error {
	if userID == "" {
		j.logger.Debug("notification without requester", slog.String("resource_id", n.ResourceID))
		return nil
	}
	u, err := j.users.Lookup(ctx, userID)
	if errors.Is(err, httpx.ErrNotFound) {
		j.logger.Warn("notification recipient missing", slog.String("user_id", userID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup recipient: %w", err)
	}
	if !u.Active {
		return nil
	}
	n.To, n.Name = u.Email, u.Name
	if err := j.notifier.Notify(ctx, n); err != nil {
		return fmt.Errorf("notify %s: %w", u.Email, err)
	}
	return nil
}
