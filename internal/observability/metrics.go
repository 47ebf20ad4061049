package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the API and worker processes.
type Metrics struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	eventsPublished   *prometheus.CounterVec
	handlerFailures   *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	sideEffectFailure *prometheus.CounterVec
	jobsTotal         *prometheus.CounterVec
}

// NewMetrics initialises the registry and base collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldforce_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldforce_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldforce_events_published_total",
		Help: "Domain events published, by type and outcome.",
	}, []string{"type", "outcome"})
	handlerFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldforce_event_handler_failures_total",
		Help: "Subscriber errors and panics, by event type.",
	}, []string{"type"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldforce_transitions_total",
		Help: "Approval workflow transitions, by entity, action and outcome.",
	}, []string{"entity", "action", "outcome"})
	sideEffects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldforce_side_effect_failures_total",
		Help: "Best-effort follow-ups that failed after a committed write.",
	}, []string{"name"})
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldforce_jobs_total",
		Help: "Background jobs processed, by task type and outcome.",
	}, []string{"task", "outcome"})
	registry.MustRegister(requests, duration, published, handlerFailures, transitions, sideEffects, jobs)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		eventsPublished:   published,
		handlerFailures:   handlerFailures,
		transitions:       transitions,
		sideEffectFailure: sideEffects,
		jobsTotal:         jobs,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// EventPublished implements events.Recorder.
func (m *Metrics) EventPublished(eventType string, ok bool) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType, outcome(ok)).Inc()
}

// EventHandlerFailed implements events.Recorder.
func (m *Metrics) EventHandlerFailed(eventType string) {
	if m == nil {
		return
	}
	m.handlerFailures.WithLabelValues(eventType).Inc()
}

// Transition counts an approve/reject style attempt on entity.
func (m *Metrics) Transition(entity, action string, ok bool) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, action, outcome(ok)).Inc()
}

// SideEffectFailed counts a failed follow-up. It fits shared.SideEffects.OnFailure.
func (m *Metrics) SideEffectFailed(name string) {
	if m == nil {
		return
	}
	m.sideEffectFailure.WithLabelValues(name).Inc()
}

// JobProcessed counts a background task run.
func (m *Metrics) JobProcessed(task string, ok bool) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(task, outcome(ok)).Inc()
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
