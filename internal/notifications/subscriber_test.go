package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/fieldforce/fieldforce/internal/events"
	"github.com/fieldforce/fieldforce/jobs"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (q *recordingQueue) Enqueue(ctx context.Context, task *asynq.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func TestDecisionEventsBecomeTasks(t *testing.T) {
	bus := events.NewMemoryBus(quietLogger, nil)
	queue := &recordingQueue{}
	sub := NewSubscriber(queue, quietLogger)
	sub.Attach(bus)

	require.True(t, bus.Publish(context.Background(), events.LocationApproved, events.LocationDecision{
		LocationID: "L1", Name: "Green Leaf", Status: "approved", RequestedByID: "u-1",
	}))
	require.True(t, bus.Publish(context.Background(), events.BookingRejected, events.BookingDecision{
		BookingID: "B1", Title: "Demo", Status: "rejected", Reason: "duplicate", RequestedByID: "u-2",
	}))
	require.True(t, bus.Publish(context.Background(), events.BookingSubmitted, events.BookingDecision{BookingID: "B2"}))

	require.Len(t, queue.tasks, 2)
	require.Equal(t, jobs.TaskNotifyLocationDecision, queue.tasks[0].Type())
	require.Equal(t, jobs.TaskNotifyBookingDecision, queue.tasks[1].Type())

	var payload jobs.BookingDecisionPayload
	require.NoError(t, json.Unmarshal(queue.tasks[1].Payload(), &payload))
	require.Equal(t, events.BookingRejected, payload.EventType)
	require.Equal(t, "duplicate", payload.Decision.Reason)
	require.NotEmpty(t, payload.EventID)

	sub.Detach(bus)
	bus.Publish(context.Background(), events.LocationRejected, events.LocationDecision{LocationID: "L2"})
	require.Len(t, queue.tasks, 2)
}

func TestQueueFailureStaysInsideBus(t *testing.T) {
	bus := events.NewMemoryBus(quietLogger, nil)
	NewSubscriber(&recordingQueue{err: errors.New("redis down")}, quietLogger).Attach(bus)

	require.True(t, bus.Publish(context.Background(), events.LocationApproved, events.LocationDecision{LocationID: "L1"}))
}
