package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamvidya/risk-hub/internal/application/command"
	"github.com/teamvidya/risk-hub/internal/domain/profile"
	"github.com/teamvidya/risk-hub/internal/domain/risk"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

func newTestMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWithRegistry(reg, reg)
}

func TestMetrics_CycleCompleted(t *testing.T) {
	m := newTestMetrics()
	start := time.Date(2024, 10, 7, 9, 0, 0, 0, time.UTC)

	m.CycleCompleted(&command.CycleReport{
		Mode:       command.ModePartial,
		Levels:     map[risk.Level]int{risk.Low: 1, risk.Medium: 2},
		Skipped:    []profile.RowFault{{StudentID: 4, Stage: "classify"}},
		Fallback:   "risk model artifact not found",
		StartedAt:  start,
		FinishedAt: start.Add(40 * time.Millisecond),
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cycles.WithLabelValues("partial", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Students.WithLabelValues("Medium")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkippedRows.WithLabelValues("classify")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fallbacks))
}

func TestMetrics_StudentsGaugeIsReplaced(t *testing.T) {
	m := newTestMetrics()
	m.CycleCompleted(&command.CycleReport{Mode: command.ModeFull, Levels: map[risk.Level]int{risk.High: 3}})
	m.CycleCompleted(&command.CycleReport{Mode: command.ModePartial, Levels: map[risk.Level]int{risk.Low: 3}})

	assert.Equal(t, 1, testutil.CollectAndCount(m.Students))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Students.WithLabelValues("Low")))
}

func TestMetrics_CycleFailedClassifiesErrors(t *testing.T) {
	m := newTestMetrics()

	m.CycleFailed(command.ModePartial, shared.ErrCycleInProgress)
	m.CycleFailed(command.ModePartial, shared.SourceUnavailable("profile", "ListProfiles", errors.New("down")))
	m.CycleFailed(command.ModeFull, errors.New("other"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cycles.WithLabelValues("partial", "busy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cycles.WithLabelValues("partial", "source_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cycles.WithLabelValues("full", "error")))
}

func TestMetrics_AlertsAndJobs(t *testing.T) {
	m := newTestMetrics()

	m.AlertSent()
	m.AlertSent()
	m.AlertFailed()
	m.JobFinished("weekly_alerts", time.Second, nil)
	m.JobFinished("weekly_alerts", time.Second, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Alerts.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Alerts.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("weekly_alerts", "error")))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AlertSent()
		m.CycleFailed(command.ModeFull, errors.New("x"))
		m.ObserveRequest(http.MethodGet, "/health", 200, time.Millisecond)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := newTestMetrics()
	m.ObserveRequest(http.MethodGet, "GET /api/students", http.StatusOK, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `riskhub_http_requests_total{method="GET",route="GET /api/students",status="200"} 1`)
}
