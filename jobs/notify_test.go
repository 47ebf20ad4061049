package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/fieldforce/fieldforce/internal/events"
	"github.com/fieldforce/fieldforce/internal/rbac"
	"github.com/fieldforce/fieldforce/internal/users"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type captureNotifier struct {
	sent []Notification
	err  error
}

func (c *captureNotifier) Notify(ctx context.Context, n Notification) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, n)
	return nil
}

func newJob(notifier Notifier) *NotificationJob {
	store := users.NewMemoryStore(
		users.User{ID: "u-client", Email: "client@example.com", Name: "Casey", Role: rbac.RoleClientManager, Active: true},
		users.User{ID: "u-gone", Email: "gone@example.com", Role: rbac.RoleClientUser, Active: false},
	)
	return NewNotificationJob(users.NewService(store), notifier, quietLogger)
}

func locationTask(t *testing.T, eventType, requester string) *asynq.Task {
	t.Helper()
	evt, err := events.NewEvent(context.Background(), eventType, events.LocationDecision{
		LocationID: "L1", Name: "Green Leaf", RequestedByID: requester, Reason: "closed",
	}, time.Now())
	require.NoError(t, err)
	task, err := NewLocationDecisionTask(evt)
	require.NoError(t, err)
	return task
}

func TestLocationDecisionNotifiesRequester(t *testing.T) {
	notifier := &captureNotifier{}
	job := newJob(notifier)

	require.NoError(t, job.HandleLocationDecision(context.Background(), locationTask(t, events.LocationRejected, "u-client")))
	require.Len(t, notifier.sent, 1)
	n := notifier.sent[0]
	require.Equal(t, "client@example.com", n.To)
	require.Equal(t, "Location rejected: Green Leaf", n.Subject)
	require.Contains(t, n.Body, "Reason: closed")
	require.Equal(t, "L1", n.ResourceID)
}

func TestNotificationSkipsUnknownOrInactiveRecipients(t *testing.T) {
	notifier := &captureNotifier{}
	job := newJob(notifier)

	for _, requester := range []string{"", "u-missing", "u-gone"} {
		require.NoError(t, job.HandleLocationDecision(context.Background(), locationTask(t, events.LocationApproved, requester)))
	}
	require.Empty(t, notifier.sent)
}

func TestBookingDecisionNotifierFailureIsRetried(t *testing.T) {
	job := newJob(&captureNotifier{err: errors.New("smtp timeout")})
	evt, err := events.NewEvent(context.Background(), events.BookingApproved, events.BookingDecision{
		BookingID: "B1", Title: "Demo", RequestedByID: "u-client",
	}, time.Now())
	require.NoError(t, err)
	task, err := NewBookingDecisionTask(evt)
	require.NoError(t, err)
	require.Equal(t, TaskNotifyBookingDecision, task.Type())

	err = job.HandleBookingDecision(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestMalformedPayloadSkipsRetry(t *testing.T) {
	job := newJob(&captureNotifier{})
	err := job.HandleBookingDecision(context.Background(), asynq.NewTask(TaskNotifyBookingDecision, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestInspectQueue(t *testing.T) {
	stats, err := InspectQueue(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}}, QueueDefault)
	require.NoError(t, err)
	require.Equal(t, QueueStats{Queue: QueueDefault, Pending: 3, Retry: 1}, stats)

	_, err = InspectQueue(stubInspector{err: errors.New("no redis")}, QueueDefault)
	require.Error(t, err)
}

func TestHealthEndpoint(t *testing.T) {
	serve := func(inspector QueueInspector) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		NewHandler(inspector, quietLogger).MountRoutes(r)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		return rec
	}

	rec := serve(stubInspector{info: &asynq.QueueInfo{Pending: 2}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":2,"active":0,"scheduled":0,"retry":0,"archived":0}`, rec.Body.String())

	rec = serve(stubInspector{err: errors.New("down")})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "UNAVAILABLE")
}

type countingRecorder struct{ ok, failed int }

func (c *countingRecorder) JobProcessed(task string, ok bool) {
	if ok {
		c.ok++
		return
	}
	c.failed++
}

func TestInstrumentRecordsOutcome(t *testing.T) {
	rec := &countingRecorder{}
	mw := instrument(rec)
	ok := mw(asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error { return nil }))
	bad := mw(asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error { return errors.New("boom") }))

	task := asynq.NewTask(TaskNotifyLocationDecision, nil)
	require.NoError(t, ok.ProcessTask(context.Background(), task))
	require.Error(t, bad.ProcessTask(context.Background(), task))
	require.Equal(t, 1, rec.ok)
	require.Equal(t, 1, rec.failed)
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	require.Error(t, err)
}
