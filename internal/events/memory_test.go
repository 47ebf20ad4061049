package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldforce/fieldforce/internal/shared"
)

type countingRecorder struct {
	mu        sync.Mutex
	published map[string]int
	failed    map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{published: map[string]int{}, failed: map[string]int{}}
}

func (r *countingRecorder) EventPublished(eventType string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ok {
		r.published[eventType]++
	}
}

func (r *countingRecorder) EventHandlerFailed(eventType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[eventType]++
}

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestMemoryBusSynchronousFanOut(t *testing.T) {
	bus := NewMemoryBus(quietLogger(&bytes.Buffer{}), nil)
	var got []string
	bus.Subscribe(LocationApproved, func(ctx context.Context, evt Event) error {
		got = append(got, "first:"+evt.Type)
		return nil
	})
	bus.Subscribe(LocationApproved, func(ctx context.Context, evt Event) error {
		got = append(got, "second:"+evt.Type)
		return nil
	})
	bus.Subscribe(BookingApproved, func(ctx context.Context, evt Event) error {
		got = append(got, "wrong")
		return nil
	})

	require.True(t, bus.Publish(context.Background(), LocationApproved, map[string]string{"locationId": "L1"}))
	require.Equal(t, []string{"first:" + LocationApproved, "second:" + LocationApproved}, got)
}

func TestMemoryBusFailingHandlersIsolated(t *testing.T) {
	var logs bytes.Buffer
	rec := newCountingRecorder()
	bus := NewMemoryBus(quietLogger(&logs), rec)

	var delivered int
	bus.Subscribe(BookingRejected, func(context.Context, Event) error { return errors.New("smtp down") })
	bus.Subscribe(BookingRejected, func(context.Context, Event) error { panic("nil map") })
	bus.Subscribe(BookingRejected, func(context.Context, Event) error {
		delivered++
		return nil
	})

	require.NotPanics(t, func() {
		require.True(t, bus.Publish(context.Background(), BookingRejected, nil))
	})
	require.Equal(t, 1, delivered)
	require.Equal(t, 2, rec.failed[BookingRejected])
	require.Equal(t, 1, rec.published[BookingRejected])
	require.Contains(t, logs.String(), "smtp down")
	require.Contains(t, logs.String(), "nil map")
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	bus := NewMemoryBus(quietLogger(&bytes.Buffer{}), nil)
	calls := 0
	sub := bus.Subscribe(KitAssigned, func(context.Context, Event) error {
		calls++
		return nil
	})
	bus.Publish(context.Background(), KitAssigned, nil)
	require.True(t, bus.Unsubscribe(KitAssigned, sub))
	require.False(t, bus.Unsubscribe(KitAssigned, sub))
	bus.Publish(context.Background(), KitAssigned, nil)
	require.Equal(t, 1, calls)
}

func TestMemoryBusWildcardSubscriber(t *testing.T) {
	bus := NewMemoryBus(quietLogger(&bytes.Buffer{}), nil)
	var types []string
	bus.Subscribe(All, func(ctx context.Context, evt Event) error {
		types = append(types, evt.Type)
		return nil
	})
	bus.Publish(context.Background(), LocationRejected, nil)
	bus.Publish(context.Background(), BookingCanceled, nil)
	require.Equal(t, []string{LocationRejected, BookingCanceled}, types)
}

func TestMemoryBusMetadataFromContext(t *testing.T) {
	bus := NewMemoryBus(quietLogger(&bytes.Buffer{}), nil)
	var got Event
	bus.Subscribe(LocationApproved, func(ctx context.Context, evt Event) error {
		got = evt
		return nil
	})
	ctx := shared.ContextWithSession(context.Background(), &shared.Session{UserID: "u-1", OrganizationID: "org-1"})
	ctx = shared.ContextWithRequestMeta(ctx, shared.RequestMeta{RequestID: "req-42"})
	bus.Publish(ctx, LocationApproved, map[string]string{"locationId": "L1"})

	require.NotEmpty(t, got.ID)
	require.Equal(t, "u-1", got.Metadata.UserID)
	require.Equal(t, "org-1", got.Metadata.OrganizationID)
	require.Equal(t, "req-42", got.Metadata.CorrelationID)
	require.False(t, got.Metadata.Timestamp.IsZero())

	var payload struct {
		LocationID string `json:"locationId"`
	}
	require.NoError(t, got.Decode(&payload))
	require.Equal(t, "L1", payload.LocationID)
}

func TestMemoryBusUnencodablePayload(t *testing.T) {
	rec := newCountingRecorder()
	bus := NewMemoryBus(quietLogger(&bytes.Buffer{}), rec)
	called := false
	bus.Subscribe(LocationApproved, func(context.Context, Event) error {
		called = true
		return nil
	})
	require.False(t, bus.Publish(context.Background(), LocationApproved, make(chan int)))
	require.False(t, called)
	require.Zero(t, rec.published[LocationApproved])
}
