package perf

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/fieldforce/fieldforce/internal/events"
	"github.com/fieldforce/fieldforce/internal/observability"
	"github.com/fieldforce/fieldforce/internal/rbac"
	"github.com/fieldforce/fieldforce/internal/users"
	"github.com/fieldforce/fieldforce/jobs"
)

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, jobs.Notification) error { return nil }

func TestDecisionFanoutThroughputAndReliability(t *testing.T) {
	metrics := observability.NewMetrics()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := events.NewMemoryBus(logger, metrics)
	job := jobs.NewNotificationJob(users.NewService(users.NewMemoryStore(
		users.User{ID: "u-client", Email: "client@example.com", Role: rbac.RoleClientManager, Active: true},
	)), discardNotifier{}, logger)

	var elapsed time.Duration
	bus.Subscribe(events.LocationApproved, func(ctx context.Context, evt events.Event) error {
		start := time.Now()
		task, err := jobs.NewLocationDecisionTask(evt)
		if err == nil {
			err = job.HandleLocationDecision(ctx, task)
		}
		elapsed += time.Since(start)
		metrics.JobProcessed(jobs.TaskNotifyLocationDecision, err == nil)
		return err
	})
	failures := 0
	bus.Subscribe(events.LocationApproved, func(ctx context.Context, evt events.Event) error {
		failures++
		if failures%25 == 0 {
			return errors.New("downstream timeout")
		}
		return nil
	})

	const published = 500
	for range published {
		if !bus.Publish(context.Background(), events.LocationApproved, events.LocationDecision{
			LocationID: "loc-1", Name: "Store", Status: "approved", RequestedByID: "u-client",
		}) {
			t.Fatal("publish reported failure")
		}
	}

	gatherer, ok := metrics.Registerer().(prometheus.Gatherer)
	if !ok {
		t.Fatal("registry does not gather")
	}
	families, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	if got := metricValue(t, families, "fieldforce_events_published_total", map[string]string{"type": events.LocationApproved, "outcome": "success"}); got != published {
		t.Fatalf("published counter = %v, want %d", got, published)
	}
	success := metricValue(t, families, "fieldforce_jobs_total", map[string]string{"task": jobs.TaskNotifyLocationDecision, "outcome": "success"})
	if success != published {
		t.Fatalf("notification jobs succeeded = %v, want %d", success, published)
	}
	handlerFailures := metricValue(t, families, "fieldforce_event_handler_failures_total", map[string]string{"type": events.LocationApproved})
	if ratio := handlerFailures / published; ratio > 0.05 {
		t.Fatalf("handler failure ratio too high: %f", ratio)
	}
	if mean := elapsed / published; mean > 5*time.Millisecond {
		t.Fatalf("notification job mean above budget: %s", mean)
	}
}

func BenchmarkRolePermissionCheck(b *testing.B) {
	roles := []rbac.Role{rbac.RoleClientManager, rbac.RoleClientUser}
	for b.Loop() {
		if !rbac.HasPermission(rbac.PermLocationsRead, roles...) {
			b.Fatal("client manager should read locations")
		}
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
