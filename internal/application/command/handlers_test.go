package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamvidya/risk-hub/internal/application/query"
	"github.com/teamvidya/risk-hub/internal/domain/attendance"
	"github.com/teamvidya/risk-hub/internal/domain/profile"
	"github.com/teamvidya/risk-hub/internal/domain/risk"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
	"github.com/teamvidya/risk-hub/internal/infrastructure/persistence/memory"
	"github.com/teamvidya/risk-hub/pkg/retry"
)

type fixture struct {
	events    *memory.EventStore
	profiles  *memory.ProfileStore
	artifacts *memory.ArtifactStore
	engine    *Engine
}

func newFixture(t *testing.T, useModel bool) *fixture {
	t.Helper()
	f := &fixture{
		events:    memory.NewEventStore(),
		profiles:  memory.NewProfileStore(),
		artifacts: memory.NewArtifactStore(),
	}
	provider := risk.NewProvider(risk.ProviderConfig{
		UseModel:      useModel,
		TrainOnDemand: useModel,
		Train:         risk.DefaultTrainOptions(),
	}, f.artifacts, TrainingSource(f.events, f.profiles))
	f.engine = NewEngine(f.events, f.profiles, provider, EngineConfig{Logger: quietLogger()})

	_, err := f.engine.Seed(context.Background(), threeStudents())
	require.NoError(t, err)
	return f
}

func (f *fixture) profile(t *testing.T, id int64) profile.Profile {
	t.Helper()
	p, err := f.profiles.GetProfile(context.Background(), id)
	require.NoError(t, err)
	return *p
}

// ════════════════════════════════════════════════════════════════════════════
// ATTENDANCE
// ════════════════════════════════════════════════════════════════════════════

func TestHandleMark_WritesTodayAndRecomputes(t *testing.T) {
	f := newFixture(t, false)
	ist := time.FixedZone("IST", 5*3600+1800)

	h := NewAttendanceHandler(f.events, f.engine, ist)
	// 20:00 UTC on the 6th is already the 7th in Kolkata
	h.now = func() time.Time { return time.Date(2024, time.October, 6, 20, 0, 0, 0, time.UTC) }

	res, err := h.HandleMark(context.Background(), MarkAttendanceCommand{Records: []Mark{
		{StudentID: 3, Status: attendance.StatusPresent},
	}})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Saved)
	assert.Equal(t, "2024-10-07", res.Date)
	require.NotNil(t, res.Report)
	assert.Equal(t, ModePartial, res.Report.Mode)

	// student 3 now has a single present day
	assert.Equal(t, 100, f.profile(t, 3).AttendancePercentage)
	assert.Equal(t, risk.Low, f.profile(t, 3).RiskLevel)
}

func TestHandleMark_SameDayLastWriteWins(t *testing.T) {
	f := newFixture(t, false)
	h := NewAttendanceHandler(f.events, f.engine, time.UTC)
	h.now = func() time.Time { return time.Date(2024, time.October, 7, 9, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	_, err := h.HandleMark(ctx, MarkAttendanceCommand{Records: []Mark{{StudentID: 3, Status: attendance.StatusPresent}}})
	require.NoError(t, err)
	_, err = h.HandleMark(ctx, MarkAttendanceCommand{Records: []Mark{{StudentID: 3, Status: attendance.StatusAbsent}}})
	require.NoError(t, err)

	history, err := f.events.ListStudentEvents(ctx, 3, attendance.OldestFirst, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, attendance.StatusAbsent, history[0].Status)
	assert.Equal(t, 0, f.profile(t, 3).AttendancePercentage)
}

func TestHandleMark_EmptyBatchStillRecomputes(t *testing.T) {
	f := newFixture(t, false)
	h := NewAttendanceHandler(f.events, f.engine, nil)

	res, err := h.HandleMark(context.Background(), MarkAttendanceCommand{})
	require.NoError(t, err)
	assert.Zero(t, res.Saved)
	assert.Equal(t, 3, res.Report.Upserted)
}

func TestHandleMark_RejectsInvalidRecords(t *testing.T) {
	f := newFixture(t, false)
	h := NewAttendanceHandler(f.events, f.engine, nil)

	_, err := h.HandleMark(context.Background(), MarkAttendanceCommand{Records: []Mark{
		{StudentID: 0, Status: attendance.StatusPresent},
		{StudentID: 1, Status: "  "},
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidStudentID)
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestHandleHistorical(t *testing.T) {
	ctx := context.Background()

	t.Run("empty batch is rejected", func(t *testing.T) {
		f := newFixture(t, false)
		h := NewAttendanceHandler(f.events, f.engine, nil)

		_, err := h.HandleHistorical(ctx, UpdateHistoricalAttendanceCommand{})
		require.Error(t, err)
		assert.True(t, shared.IsValidation(err))
	})

	t.Run("bad date is rejected before writing", func(t *testing.T) {
		f := newFixture(t, false)
		h := NewAttendanceHandler(f.events, f.engine, nil)

		_, err := h.HandleHistorical(ctx, UpdateHistoricalAttendanceCommand{Records: []HistoricalMark{
			{StudentID: 1, Date: "07/10/2024", Status: attendance.StatusAbsent},
		}})
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrInvalidFormat)

		all, err := f.events.ListEvents(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 20)
	})

	t.Run("overwrites an existing day", func(t *testing.T) {
		f := newFixture(t, false)
		h := NewAttendanceHandler(f.events, f.engine, nil)

		// student 2 was absent on days 5..9; mark two of them present
		res, err := h.HandleHistorical(ctx, UpdateHistoricalAttendanceCommand{Records: []HistoricalMark{
			{StudentID: 2, Date: seedDay(5).Format(attendance.DateLayout), Status: attendance.StatusPresent},
			{StudentID: 2, Date: seedDay(6).Format(attendance.DateLayout), Status: attendance.StatusPresent},
		}})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Saved)
		assert.Empty(t, res.Date)

		p := f.profile(t, 2)
		assert.Equal(t, 70, p.AttendancePercentage)
		// 55 is still below 60
		assert.Equal(t, risk.Medium, p.RiskLevel)
	})
}

func TestAttendanceSave_StoreFailure(t *testing.T) {
	f := newFixture(t, false)
	h := NewAttendanceHandler(f.events, f.engine, nil)
	f.events.Err = errors.New("disk full")

	_, err := h.HandleMark(context.Background(), MarkAttendanceCommand{Records: []Mark{
		{StudentID: 1, Status: attendance.StatusPresent},
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}

// ════════════════════════════════════════════════════════════════════════════
// ALERTS
// ════════════════════════════════════════════════════════════════════════════

type fakeSender struct {
	mu       sync.Mutex
	sent     []int64
	attempts map[int64]int
	failures map[int64][]error
}

func newFakeSender() *fakeSender {
	return &fakeSender{attempts: map[int64]int{}, failures: map[int64][]error{}}
}

func (s *fakeSender) Send(_ context.Context, p profile.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[p.StudentID]++
	if queue := s.failures[p.StudentID]; len(queue) > 0 {
		s.failures[p.StudentID] = queue[1:]
		return queue[0]
	}
	s.sent = append(s.sent, p.StudentID)
	return nil
}

type countingObserver struct{ sent, failed int }

func (o *countingObserver) AlertSent()   { o.sent++ }
func (o *countingObserver) AlertFailed() { o.failed++ }

func fastRetrier() *retry.Retrier {
	return retry.New(retry.WithMaxAttempts(3), retry.WithInitialDelay(time.Millisecond), retry.WithJitter(0))
}

func TestSendAlerts_SelectsMediumAndHighOnly(t *testing.T) {
	f := newFixture(t, false)
	sender := newFakeSender()
	obs := &countingObserver{}
	h := NewSendAlertsHandler(query.NewAlertSelector(f.profiles), sender, obs, quietLogger()).WithRetrier(fastRetrier())

	report, err := h.Handle(context.Background(), SendAlertsCommand{})
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 3}, report.StudentIDs)
	assert.Equal(t, 2, report.Selected)
	assert.Equal(t, 2, report.Sent)
	assert.Zero(t, report.Failed)
	assert.Equal(t, []int64{2, 3}, sender.sent)
	assert.Equal(t, 2, obs.sent)
}

func TestSendAlerts_DryRunSendsNothing(t *testing.T) {
	f := newFixture(t, false)
	sender := newFakeSender()
	h := NewSendAlertsHandler(query.NewAlertSelector(f.profiles), sender, nil, quietLogger())

	report, err := h.Handle(context.Background(), SendAlertsCommand{DryRun: true})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, []int64{2, 3}, report.StudentIDs)
	assert.Zero(t, report.Sent)
	assert.Empty(t, sender.sent)
}

func TestSendAlerts_RetriesTransientFailures(t *testing.T) {
	f := newFixture(t, false)
	sender := newFakeSender()
	sender.failures[2] = []error{shared.NewDomainError("email", "Send", shared.ErrRateLimited, "429")}
	h := NewSendAlertsHandler(query.NewAlertSelector(f.profiles), sender, nil, quietLogger()).WithRetrier(fastRetrier())

	report, err := h.Handle(context.Background(), SendAlertsCommand{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 2, sender.attempts[2])
}

func TestSendAlerts_PermanentFailureDoesNotStopRun(t *testing.T) {
	f := newFixture(t, false)
	sender := newFakeSender()
	sender.failures[2] = []error{shared.NewDomainError("email", "Send", shared.ErrInvalidInput, "bad address")}
	obs := &countingObserver{}
	h := NewSendAlertsHandler(query.NewAlertSelector(f.profiles), sender, obs, quietLogger()).WithRetrier(fastRetrier())

	report, err := h.Handle(context.Background(), SendAlertsCommand{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, int64(2), report.Failures[0].StudentID)
	assert.Equal(t, 1, sender.attempts[2])
	assert.Equal(t, []int64{3}, sender.sent)
	assert.Equal(t, 1, obs.failed)
}

func TestSendAlerts_SelectionFailureAborts(t *testing.T) {
	f := newFixture(t, false)
	f.profiles.Err = errors.New("timeout")
	h := NewSendAlertsHandler(query.NewAlertSelector(f.profiles), newFakeSender(), nil, quietLogger())

	_, err := h.Handle(context.Background(), SendAlertsCommand{})
	require.Error(t, err)
	assert.True(t, shared.IsRetryable(err))
}

// ════════════════════════════════════════════════════════════════════════════
// TRAINING
// ════════════════════════════════════════════════════════════════════════════

func TestTrainModel_ActivatesNewModel(t *testing.T) {
	f := newFixture(t, true)
	h := NewTrainModelHandler(f.engine, TrainingSource(f.events, f.profiles), quietLogger())

	res, err := h.Handle(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, res.Version)
	// student 3 has no attendance events and does not contribute a row
	assert.Equal(t, 2, res.TrainingRows)
	assert.InDelta(t, 1.0, res.TrainingAccuracy, 1e-9)
	assert.LessOrEqual(t, res.Depth, 5)
	// one save from the seed, one from the retrain
	assert.Equal(t, 2, f.artifacts.Saves)

	current := f.engine.Provider().Current()
	require.NotNil(t, current)
	assert.Equal(t, res.Version, current.Version)
}

func TestTrainModel_RefreshesStoredLevels(t *testing.T) {
	f := newFixture(t, true)
	seeded := f.profile(t, 1)

	stale := seeded
	stale.RiskLevel = risk.High
	if seeded.RiskLevel == risk.High {
		stale.RiskLevel = risk.Low
	}
	f.profiles.Put(stale)

	h := NewTrainModelHandler(f.engine, TrainingSource(f.events, f.profiles), quietLogger())
	res, err := h.Handle(context.Background())
	require.NoError(t, err)

	require.NotNil(t, res.Recompute)
	assert.Equal(t, ModePartial, res.Recompute.Mode)
	assert.Equal(t, risk.StrategyModel, res.Recompute.Strategy)
	assert.Equal(t, 3, res.Recompute.Upserted)
	assert.Equal(t, seeded.RiskLevel, f.profile(t, 1).RiskLevel)
}

func TestTrainModel_RecomputeFailureKeepsModel(t *testing.T) {
	f := newFixture(t, true)
	h := NewTrainModelHandler(f.engine, TrainingSource(f.events, f.profiles), quietLogger())
	f.profiles.UpsertErr = errors.New("connection reset")

	_, err := h.Handle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)

	assert.Equal(t, 2, f.artifacts.Saves)
	assert.NotNil(t, f.engine.Provider().Current())
}

func TestTrainModel_SourceFailure(t *testing.T) {
	f := newFixture(t, true)
	h := NewTrainModelHandler(f.engine, TrainingSource(f.events, f.profiles), quietLogger())
	f.events.Err = errors.New("connection refused")

	_, err := h.Handle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.Equal(t, 1, f.artifacts.Saves)
}
