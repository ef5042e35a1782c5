// Package metrics exposes Prometheus metrics for recomputation cycles, alert
// delivery, scheduled jobs and the HTTP surface.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teamvidya/risk-hub/internal/application/command"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

const namespace = "riskhub"

// Metrics holds every collector of the service.
type Metrics struct {
	// Recomputation cycles by mode and result
	Cycles        *prometheus.CounterVec
	CycleDuration *prometheus.HistogramVec

	// Risk levels assigned by the last completed cycle
	Students *prometheus.GaugeVec

	// Rows skipped by stage
	SkippedRows *prometheus.CounterVec

	// Cycles classified by the rule because the model was unavailable
	Fallbacks prometheus.Counter

	// Alert deliveries by result
	Alerts *prometheus.CounterVec

	// Scheduled job runs
	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	// HTTP requests
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers all metrics with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers all metrics with reg and serves them from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Recomputation cycles by mode and result",
		}, []string{"mode", "result"}), // result: "ok", "source_unavailable", "busy", "error"

		CycleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of completed recomputation cycles",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"mode"}),

		Students: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "students_by_risk",
			Help:      "Students per risk level after the last completed cycle",
		}, []string{"level"}),

		SkippedRows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_rows_total",
			Help:      "Rows excluded from a cycle by the stage that rejected them",
		}, []string{"stage"}),

		Fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_fallbacks_total",
			Help:      "Cycles that used the rule classifier instead of the model",
		}),

		Alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alert deliveries by result",
		}, []string{"result"}),

		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and result",
		}, []string{"job", "result"}),

		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled job runs",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 600},
		}, []string{"job"}),

		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		gatherer: g,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ════════════════════════════════════════════════════════════════════════════
// OBSERVERS
// ════════════════════════════════════════════════════════════════════════════

var (
	_ command.CycleObserver = (*Metrics)(nil)
	_ command.AlertObserver = (*Metrics)(nil)
)

// CycleCompleted implements command.CycleObserver.
func (m *Metrics) CycleCompleted(r *command.CycleReport) {
	if m == nil {
		return
	}
	mode := string(r.Mode)
	m.Cycles.WithLabelValues(mode, "ok").Inc()
	m.CycleDuration.WithLabelValues(mode).Observe(r.Duration().Seconds())

	m.Students.Reset()
	for level, n := range r.Levels {
		m.Students.WithLabelValues(string(level)).Set(float64(n))
	}
	for _, f := range r.Skipped {
		m.SkippedRows.WithLabelValues(f.Stage).Inc()
	}
	if r.Fallback != "" {
		m.Fallbacks.Inc()
	}
}

// CycleFailed implements command.CycleObserver.
func (m *Metrics) CycleFailed(mode command.CycleMode, err error) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(string(mode), failureResult(err)).Inc()
}

func failureResult(err error) string {
	switch {
	case errors.Is(err, shared.ErrConcurrentModification):
		return "busy"
	case errors.Is(err, shared.ErrServiceUnavailable):
		return "source_unavailable"
	default:
		return "error"
	}
}

// AlertSent implements command.AlertObserver.
func (m *Metrics) AlertSent() {
	if m != nil {
		m.Alerts.WithLabelValues("sent").Inc()
	}
}

// AlertFailed implements command.AlertObserver.
func (m *Metrics) AlertFailed() {
	if m != nil {
		m.Alerts.WithLabelValues("failed").Inc()
	}
}

// JobFinished implements scheduler.JobObserver.
func (m *Metrics) JobFinished(name string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.JobRuns.WithLabelValues(name, result).Inc()
	m.JobDuration.WithLabelValues(name).Observe(d.Seconds())
}

// ObserveRequest records one HTTP request. route is the matched pattern,
// never the raw path.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}
