// Package metrics provides Prometheus instrumentation.
// This is part of the platform layer and contains no business logic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Sequence engine metrics
	EnrollmentsCreated   *prometheus.CounterVec
	EnrollmentsRejected  *prometheus.CounterVec
	EnrollmentsProcessed *prometheus.CounterVec
	StepExecutions       *prometheus.CounterVec
	TickDuration         prometheus.Histogram
	WebhookDuration      *prometheus.HistogramVec

	// Scoring metrics
	ScoreUpdates prometheus.Counter
}

// New creates a Metrics instance bound to its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		EnrollmentsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sequence_enrollments_created_total",
				Help: "Enrollments created, by trigger type",
			},
			[]string{"trigger"},
		),
		EnrollmentsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sequence_enrollments_rejected_total",
				Help: "Enrollment attempts rejected, by reason",
			},
			[]string{"reason"},
		),
		EnrollmentsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sequence_enrollments_processed_total",
				Help: "Due enrollments handled by the scheduler, by outcome",
			},
			[]string{"outcome"}, // success, failed, completed
		),
		StepExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sequence_step_executions_total",
				Help: "Step executions, by action type and log status",
			},
			[]string{"action", "status"},
		),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sequence_tick_duration_seconds",
			Help:    "Duration of one process-ready-enrollments pass",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		WebhookDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sequence_webhook_duration_seconds",
				Help:    "Outbound webhook call latency",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"result"},
		),
		ScoreUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "lead_score_updates_total",
			Help: "Persisted lead score changes",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request count and latency per route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// EnrollmentCreated counts a new enrollment for trigger.
func (m *Metrics) EnrollmentCreated(trigger string) {
	if m == nil {
		return
	}
	m.EnrollmentsCreated.WithLabelValues(trigger).Inc()
}

// EnrollmentRejected counts a rejected enrollment attempt.
func (m *Metrics) EnrollmentRejected(reason string) {
	if m == nil {
		return
	}
	m.EnrollmentsRejected.WithLabelValues(reason).Inc()
}

// StepExecuted counts one step attempt.
func (m *Metrics) StepExecuted(action, status string) {
	if m == nil {
		return
	}
	m.StepExecutions.WithLabelValues(action, status).Inc()
}

// TickFinished records the tallies of one scheduler pass.
func (m *Metrics) TickFinished(elapsed time.Duration, success, failed, completed int) {
	if m == nil {
		return
	}
	m.TickDuration.Observe(elapsed.Seconds())
	m.EnrollmentsProcessed.WithLabelValues("success").Add(float64(success))
	m.EnrollmentsProcessed.WithLabelValues("failed").Add(float64(failed))
	m.EnrollmentsProcessed.WithLabelValues("completed").Add(float64(completed))
}

// WebhookCalled records an outbound webhook call.
func (m *Metrics) WebhookCalled(elapsed time.Duration, ok bool) {
	if m == nil {
		return
	}
	result := "error"
	if ok {
		result = "ok"
	}
	m.WebhookDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

// ScoreUpdated counts a persisted score change.
func (m *Metrics) ScoreUpdated() {
	if m == nil {
		return
	}
	m.ScoreUpdates.Inc()
}
