package command

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/teamvidya/risk-hub/internal/domain/attendance"
	"github.com/teamvidya/risk-hub/internal/domain/profile"
	"github.com/teamvidya/risk-hub/internal/domain/risk"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
	"github.com/teamvidya/risk-hub/internal/infrastructure/persistence/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedDay(n int) time.Time {
	return time.Date(2024, time.September, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func studentHistory(id int64, present, total int) []attendance.Event {
	out := make([]attendance.Event, 0, total)
	for i := 0; i < total; i++ {
		status := attendance.StatusAbsent
		if i < present {
			status = attendance.StatusPresent
		}
		out = append(out, attendance.NewEvent(id, seedDay(i), status))
	}
	return out
}

// threeStudents is the reference data set: 8/10 present with 85 over one
// attempt, 5/10 with 55 over four attempts, and no events with 60 over two.
func threeStudents() SeedCommand {
	var events []attendance.Event
	events = append(events, studentHistory(1, 8, 10)...)
	events = append(events, studentHistory(2, 5, 10)...)

	return SeedCommand{
		Students: []profile.BaseInfo{
			{StudentID: 1, Name: "Asha", Class: 10, MentorEmail: "m1@school.test", GuardianEmail: "g1@home.test"},
			{StudentID: 2, Name: "Bilal", Class: 10, MentorEmail: "m2@school.test", GuardianEmail: "g2@home.test"},
			{StudentID: 3, Name: "Chen", Class: 11, MentorEmail: "m3@school.test", GuardianEmail: "g3@home.test"},
		},
		Scores: []profile.ScoreRecord{
			{StudentID: 1, AverageScore: 85, ExamAttempts: 1, FeeStatus: profile.FeePaid},
			{StudentID: 2, AverageScore: 55, ExamAttempts: 4, FeeStatus: profile.FeePaid},
			{StudentID: 3, AverageScore: 60, ExamAttempts: 2, FeeStatus: profile.FeePaid},
		},
		Attendance: events,
	}
}

// countingLock records the highest number of cycles holding the lock at once.
type countingLock struct {
	inner  CycleLock
	active int32
	peak   int32
}

func (l *countingLock) Acquire(ctx context.Context) (func(), error) {
	release, err := l.inner.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	n := atomic.AddInt32(&l.active, 1)
	for {
		p := atomic.LoadInt32(&l.peak)
		if n <= p || atomic.CompareAndSwapInt32(&l.peak, p, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return func() {
		atomic.AddInt32(&l.active, -1)
		release()
	}, nil
}

type failingArtifacts struct{}

func (failingArtifacts) Load(context.Context) (*risk.Model, error) {
	return nil, shared.ErrModelNotFound
}

func (failingArtifacts) Save(context.Context, *risk.Model) error {
	return errors.New("disk full")
}

type recordingObserver struct {
	mu        sync.Mutex
	completed []*CycleReport
	failed    []error
}

func (o *recordingObserver) CycleCompleted(r *CycleReport) {
	o.mu.Lock()
	o.completed = append(o.completed, r)
	o.mu.Unlock()
}

func (o *recordingObserver) CycleFailed(_ CycleMode, err error) {
	o.mu.Lock()
	o.failed = append(o.failed, err)
	o.mu.Unlock()
}

// ════════════════════════════════════════════════════════════════════════════
// SUITE
// ════════════════════════════════════════════════════════════════════════════

type EngineSuite struct {
	suite.Suite

	ctx       context.Context
	events    *memory.EventStore
	profiles  *memory.ProfileStore
	artifacts *memory.ArtifactStore
	observer  *recordingObserver
	lock      *countingLock
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.events = memory.NewEventStore()
	s.profiles = memory.NewProfileStore()
	s.artifacts = memory.NewArtifactStore()
	s.observer = &recordingObserver{}
	s.lock = &countingLock{inner: NewLocalLock()}
}

func (s *EngineSuite) engine(useModel bool) *Engine {
	provider := risk.NewProvider(risk.ProviderConfig{
		UseModel:      useModel,
		TrainOnDemand: useModel,
		Train:         risk.DefaultTrainOptions(),
	}, s.artifacts, TrainingSource(s.events, s.profiles))

	return NewEngine(s.events, s.profiles, provider, EngineConfig{
		Lock:     s.lock,
		Observer: s.observer,
		Logger:   quietLogger(),
	})
}

func (s *EngineSuite) stored() map[int64]profile.Profile {
	list, err := s.profiles.ListProfiles(s.ctx)
	s.Require().NoError(err)
	out := make(map[int64]profile.Profile, len(list))
	for _, p := range list {
		out[p.StudentID] = p
	}
	return out
}

func (s *EngineSuite) TestSeed_ReferenceScenarioWithRule() {
	res, err := s.engine(false).Seed(s.ctx, threeStudents())
	s.Require().NoError(err)

	s.Equal(20, res.EventsStored)
	s.Empty(res.ModelVersion)
	s.Equal(ModeFull, res.Report.Mode)
	s.Equal(risk.StrategyRule, res.Report.Strategy)
	s.Equal(3, res.Report.Upserted)
	s.Empty(res.Report.Skipped)

	got := s.stored()
	s.Require().Len(got, 3)

	s.Equal(80, got[1].AttendancePercentage)
	s.Equal(risk.Low, got[1].RiskLevel)

	s.Equal(50, got[2].AttendancePercentage)
	s.Equal(risk.Medium, got[2].RiskLevel)

	// no events: 0% attendance, score 60 is not below 50, so Medium not High
	s.Equal(0, got[3].AttendancePercentage)
	s.Equal(risk.Medium, got[3].RiskLevel)

	s.Equal("m3@school.test", got[3].MentorEmail)
	s.Equal(11, got[3].Class)
	s.Equal(profile.FeePaid, got[3].FeeStatus)
}

func (s *EngineSuite) TestSeed_ReferenceScenarioWithModel() {
	res, err := s.engine(true).Seed(s.ctx, threeStudents())
	s.Require().NoError(err)

	s.NotEmpty(res.ModelVersion)
	s.Equal(risk.StrategyModel, res.Report.Strategy)
	s.False(res.Report.Trained, "model was trained before resolution, not on demand")
	s.Equal(1, s.artifacts.Saves)

	got := s.stored()
	s.Equal(risk.Low, got[1].RiskLevel)
	s.Equal(risk.Medium, got[2].RiskLevel)
	s.Equal(risk.Medium, got[3].RiskLevel)
}

func (s *EngineSuite) TestSeed_FailedCommitWritesNothing() {
	e := s.engine(true)
	s.profiles.UpsertErr = errors.New("deadlock detected")

	_, err := e.Seed(s.ctx, threeStudents())
	s.Require().Error(err)
	s.ErrorIs(err, shared.ErrServiceUnavailable)

	events, err := s.events.ListEvents(s.ctx)
	s.Require().NoError(err)
	s.Empty(events)
	s.Empty(s.stored())
	s.Zero(s.artifacts.Saves)
	s.Nil(e.Provider().Current())
	s.Len(s.observer.failed, 1)
}

func (s *EngineSuite) TestSeed_FailedReseedKeepsPreviousHistory() {
	e := NewEngine(s.events, s.profiles, risk.NewProvider(risk.ProviderConfig{
		UseModel: true,
		Train:    risk.DefaultTrainOptions(),
	}, s.artifacts, nil), EngineConfig{
		Logger: quietLogger(),
		Seed:   memory.NewSeedWriter(s.events, s.profiles),
	})
	_, err := e.Seed(s.ctx, threeStudents())
	s.Require().NoError(err)
	before := s.stored()
	eventsBefore, err := s.events.ListEvents(s.ctx)
	s.Require().NoError(err)
	model := e.Provider().Current()

	reseed := threeStudents()
	reseed.Attendance = studentHistory(1, 1, 10)
	s.profiles.UpsertErr = errors.New("deadlock detected")

	_, err = e.Seed(s.ctx, reseed)
	s.Require().Error(err)

	eventsAfter, err := s.events.ListEvents(s.ctx)
	s.Require().NoError(err)
	s.Equal(eventsBefore, eventsAfter)
	s.Equal(before, s.stored())
	s.Equal(1, s.artifacts.Saves)
	s.Same(model, e.Provider().Current())
}

func (s *EngineSuite) TestSeed_ModelSaveFailureKeepsCommittedRows() {
	provider := risk.NewProvider(risk.ProviderConfig{
		UseModel: true,
		Train:    risk.DefaultTrainOptions(),
	}, failingArtifacts{}, nil)
	e := NewEngine(s.events, s.profiles, provider, EngineConfig{Logger: quietLogger()})

	res, err := e.Seed(s.ctx, threeStudents())
	s.Require().NoError(err)

	s.Empty(res.ModelVersion)
	s.Equal(risk.StrategyModel, res.Report.Strategy)
	s.Equal(20, res.EventsStored)
	s.Len(s.stored(), 3)
	s.Nil(provider.Current())
}

func (s *EngineSuite) TestRecompute_IsIdempotent() {
	e := s.engine(false)
	_, err := e.Seed(s.ctx, threeStudents())
	s.Require().NoError(err)
	afterSeed := s.stored()

	_, err = e.Recompute(s.ctx)
	s.Require().NoError(err)
	first := s.stored()

	_, err = e.Recompute(s.ctx)
	s.Require().NoError(err)
	second := s.stored()

	s.Equal(afterSeed, first)
	s.Equal(first, second)
}

func (s *EngineSuite) TestRecompute_PartialUpsertPreservesExternalEdits() {
	e := s.engine(false)
	_, err := e.Seed(s.ctx, threeStudents())
	s.Require().NoError(err)

	edited := s.stored()[1]
	edited.MentorEmail = "a@x.com"
	edited.Name = "Asha K."
	s.profiles.Put(edited)

	s.Require().NoError(s.events.UpsertEvents(s.ctx, []attendance.Event{
		attendance.NewEvent(1, seedDay(30), attendance.StatusAbsent),
	}))

	report, err := e.Recompute(s.ctx)
	s.Require().NoError(err)
	s.Equal(ModePartial, report.Mode)

	got := s.stored()[1]
	s.Equal("a@x.com", got.MentorEmail)
	s.Equal("Asha K.", got.Name)
	s.Equal(73, got.AttendancePercentage) // 8 of 11
	s.Equal(risk.Medium, got.RiskLevel)
}

func (s *EngineSuite) TestRecompute_SourceUnavailableWritesNothing() {
	e := s.engine(false)
	_, err := e.Seed(s.ctx, threeStudents())
	s.Require().NoError(err)
	before := s.stored()

	s.events.Err = errors.New("connection reset")
	_, err = e.Recompute(s.ctx)

	s.Require().Error(err)
	s.ErrorIs(err, shared.ErrServiceUnavailable)
	s.Equal(before, s.stored())
	s.Len(s.observer.failed, 1)
}

func (s *EngineSuite) TestRecompute_FailedUpsertLeavesStateUntouched() {
	e := s.engine(false)
	_, err := e.Seed(s.ctx, threeStudents())
	s.Require().NoError(err)
	before := s.stored()

	s.Require().NoError(s.events.UpsertEvents(s.ctx, studentHistory(3, 10, 10)))
	s.profiles.UpsertErr = errors.New("deadlock detected")

	_, err = e.Recompute(s.ctx)
	s.Require().Error(err)
	s.ErrorIs(err, shared.ErrServiceUnavailable)
	s.Equal(before, s.stored())
}

func (s *EngineSuite) TestRecompute_UnknownCategorySkipsOnlyThatRow() {
	e := s.engine(true)
	_, err := e.Seed(s.ctx, threeStudents())
	s.Require().NoError(err)

	s.profiles.Put(profile.Profile{
		StudentID: 4, Name: "Dana", FeeStatus: "Waived",
		AttendancePercentage: 99, AverageScore: 90, ExamAttempts: 1, RiskLevel: risk.High,
	})

	report, err := e.Recompute(s.ctx)
	s.Require().NoError(err)

	s.Equal(4, report.Students)
	s.Equal(3, report.Upserted)
	s.Require().Len(report.Skipped, 1)
	s.Equal(int64(4), report.Skipped[0].StudentID)
	s.Equal("classify", report.Skipped[0].Stage)
	s.ErrorIs(report.Skipped[0].Err, shared.ErrUnknownCategory)

	got := s.stored()
	s.Equal(risk.High, got[4].RiskLevel, "skipped row keeps its stored values")
	s.Equal(99, got[4].AttendancePercentage)
	s.Equal(risk.Low, got[1].RiskLevel)
}

func (s *EngineSuite) TestRecompute_MissingModelTrainsOnDemand() {
	seeder := s.engine(false)
	_, err := seeder.Seed(s.ctx, threeStudents())
	s.Require().NoError(err)
	s.Zero(s.artifacts.Saves)

	report, err := s.engine(true).Recompute(s.ctx)
	s.Require().NoError(err)

	s.True(report.Trained)
	s.Equal(risk.StrategyModel, report.Strategy)
	s.Equal(1, s.artifacts.Saves)
	s.Equal(3, report.Upserted)
}

func (s *EngineSuite) TestRecompute_MissingModelFallsBackToRule() {
	_, err := s.engine(false).Seed(s.ctx, threeStudents())
	s.Require().NoError(err)

	provider := risk.NewProvider(risk.ProviderConfig{UseModel: true}, s.artifacts, nil)
	e := NewEngine(s.events, s.profiles, provider, EngineConfig{Logger: quietLogger()})

	report, err := e.Recompute(s.ctx)
	s.Require().NoError(err)
	s.Equal(risk.StrategyRule, report.Strategy)
	s.NotEmpty(report.Fallback)
	s.Equal(3, report.Upserted)
}

func (s *EngineSuite) TestRecompute_CyclesAreSerialized() {
	e := s.engine(false)
	_, err := e.Seed(s.ctx, threeStudents())
	s.Require().NoError(err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Recompute(s.ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}
	s.Equal(int32(1), atomic.LoadInt32(&s.lock.peak))
	s.Len(s.observer.completed, 9)
}

func (s *EngineSuite) TestRecompute_ReportCountsLevels() {
	e := s.engine(false)
	_, err := e.Seed(s.ctx, threeStudents())
	s.Require().NoError(err)

	report, err := e.Recompute(s.ctx)
	s.Require().NoError(err)

	s.Equal(20, report.Events)
	s.Equal(map[risk.Level]int{risk.Low: 1, risk.Medium: 2}, report.Levels)
	s.NotEmpty(report.CycleID)
	s.False(report.FinishedAt.Before(report.StartedAt))
}

// ════════════════════════════════════════════════════════════════════════════
// SEED VALIDATION & LOCKS
// ════════════════════════════════════════════════════════════════════════════

func TestSeedCommand_Validate(t *testing.T) {
	assert.Error(t, SeedCommand{}.Validate())

	cmd := threeStudents()
	assert.NoError(t, cmd.Validate())

	cmd.Attendance = append(cmd.Attendance, attendance.Event{StudentID: 1, Status: attendance.StatusPresent})
	err := cmd.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)
}

func TestLocalLock_HonoursContext(t *testing.T) {
	l := NewLocalLock()
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release2, err := l.Acquire(context.Background())
	require.NoError(t, err)
	release2()
}

type failingLock struct{ err error }

func (f failingLock) Acquire(context.Context) (func(), error) { return nil, f.err }

func TestChainLock_ReleasesAcquiredOnFailure(t *testing.T) {
	first := NewLocalLock()
	busy := errors.New("held elsewhere")

	_, err := ChainLock{first, failingLock{err: busy}}.Acquire(context.Background())
	assert.ErrorIs(t, err, busy)

	// first lock must have been released
	release, err := first.Acquire(context.Background())
	require.NoError(t, err)
	release()
}
