package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fieldforce/fieldforce/internal/events"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotifyLocationDecision tells a location's requester about the review outcome.
	TaskNotifyLocationDecision = "notify:location_decision"
	// TaskNotifyBookingDecision tells a booking's requester about the review outcome.
	TaskNotifyBookingDecision = "notify:booking_decision"

	notifyMaxRetry = 5
)

// LocationDecisionPayload is the body of TaskNotifyLocationDecision.
type LocationDecisionPayload struct {
	EventID    string                  `json:"eventId"`
	EventType  string                  `json:"eventType"`
	OccurredAt time.Time               `json:"occurredAt"`
	Decision   events.LocationDecision `json:"decision"`
}

// BookingDecisionPayload is the body of TaskNotifyBookingDecision.
type BookingDecisionPayload struct {
	EventID    string                 `json:"eventId"`
	EventType  string                 `json:"eventType"`
	OccurredAt time.Time              `json:"occurredAt"`
	Decision   events.BookingDecision `json:"decision"`
}

// NewLocationDecisionTask builds a notification task from a location decision event. The event id
// doubles as the task id so a redelivered event is enqueued once.
func NewLocationDecisionTask(evt events.Event) (*asynq.Task, error) {
	var decision events.LocationDecision
	if err := evt.Decode(&decision); err != nil {
		return nil, fmt.Errorf("jobs: decode %s: %w", evt.Type, err)
	}
	return newTask(TaskNotifyLocationDecision, evt.ID, LocationDecisionPayload{
		EventID:    evt.ID,
		EventType:  evt.Type,
		OccurredAt: evt.Metadata.Timestamp,
		Decision:   decision,
	})
}

// NewBookingDecisionTask builds a notification task from a booking decision event.
func NewBookingDecisionTask(evt events.Event) (*asynq.Task, error) {
	var decision events.BookingDecision
	if err := evt.Decode(&decision); err != nil {
		return nil, fmt.Errorf("jobs: decode %s: %w", evt.Type, err)
	}
	return newTask(TaskNotifyBookingDecision, evt.ID, BookingDecisionPayload{
		EventID:    evt.ID,
		EventType:  evt.Type,
		OccurredAt: evt.Metadata.Timestamp,
		Decision:   decision,
	})
}

func newTask(taskType, id string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(notifyMaxRetry)}
	if id != "" {
		opts = append(opts, asynq.TaskID(id))
	}
	return asynq.NewTask(taskType, data, opts...), nil
}
