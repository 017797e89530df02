package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the engine.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	resolutions  *prometheus.CounterVec
	sweepLocked  prometheus.Counter
	sweepRuns    prometheus.Counter
	auditLogged  prometheus.Counter
	auditDropped prometheus.Counter
	eventsFired  *prometheus.CounterVec
}

// NewMetricsService registers the engine's Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_resolutions_total",
		Help: "Session resolver outcomes (active, grace, none, error)",
	}, []string{"outcome"})

	sweepLocked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lock_sweep_sessions_locked_total",
		Help: "Sessions auto-locked by the periodic sweep",
	})

	sweepRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lock_sweep_runs_total",
		Help: "Completed lock sweep runs",
	})

	auditLogged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_entries_written_total",
		Help: "Audit entries persisted",
	})

	// The audit trail is a best-effort side channel; losses must at least
	// be visible here.
	auditDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_entries_dropped_total",
		Help: "Audit entries lost to a full buffer or exhausted retries",
	})

	eventsFired := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_events_total",
		Help: "Notification events emitted by the engine",
	}, []string{"type"})

	registry.MustRegister(requestDuration, requestTotal, resolutions, sweepLocked, sweepRuns, auditLogged, auditDropped, eventsFired)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		resolutions:     resolutions,
		sweepLocked:     sweepLocked,
		sweepRuns:       sweepRuns,
		auditLogged:     auditLogged,
		auditDropped:    auditDropped,
		eventsFired:     eventsFired,
	}
}

// Handler serves the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records request latency and count.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveResolution counts a resolver outcome.
func (s *MetricsService) ObserveResolution(outcome string) {
	s.resolutions.WithLabelValues(outcome).Inc()
}

// ObserveSweep records one sweep run and how many sessions it locked.
func (s *MetricsService) ObserveSweep(locked int) {
	s.sweepRuns.Inc()
	s.sweepLocked.Add(float64(locked))
}

// ObserveAuditWritten counts a persisted audit entry.
func (s *MetricsService) ObserveAuditWritten() {
	s.auditLogged.Inc()
}

// ObserveAuditDropped counts a lost audit entry.
func (s *MetricsService) ObserveAuditDropped() {
	s.auditDropped.Inc()
}

// ObserveEvent counts an emitted notification event.
func (s *MetricsService) ObserveEvent(eventType string) {
	s.eventsFired.WithLabelValues(eventType).Inc()
}
