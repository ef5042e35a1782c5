package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamvidya/risk-hub/internal/domain/attendance"
	"github.com/teamvidya/risk-hub/internal/domain/profile"
	"github.com/teamvidya/risk-hub/internal/domain/risk"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
	"github.com/teamvidya/risk-hub/internal/infrastructure/persistence/memory"
)

func storeWith(profiles ...profile.Profile) *memory.ProfileStore {
	s := memory.NewProfileStore()
	for _, p := range profiles {
		s.Put(p)
	}
	return s
}

func sampleProfiles() []profile.Profile {
	return []profile.Profile{
		{StudentID: 3, AttendancePercentage: 0, AverageScore: 60, ExamAttempts: 2, FeeStatus: profile.FeePaid, RiskLevel: risk.Medium},
		{StudentID: 1, AttendancePercentage: 80, AverageScore: 85, ExamAttempts: 1, FeeStatus: profile.FeePaid, RiskLevel: risk.Low},
		{StudentID: 2, AttendancePercentage: 50, AverageScore: 55, ExamAttempts: 4, FeeStatus: profile.FeeOverdue, RiskLevel: risk.Medium},
		{StudentID: 4, AttendancePercentage: 41, AverageScore: 30, ExamAttempts: 5, FeeStatus: profile.FeeOverdue, RiskLevel: risk.High},
	}
}

// ════════════════════════════════════════════════════════════════════════════
// DASHBOARD
// ════════════════════════════════════════════════════════════════════════════

func TestDashboard_StudentsOrderedByID(t *testing.T) {
	h := NewDashboardHandler(storeWith(sampleProfiles()...))

	got, err := h.Students(context.Background())
	require.NoError(t, err)

	ids := make([]int64, len(got))
	for i, p := range got {
		ids[i] = p.StudentID
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)
}

func TestDashboard_StudentsEmptyIsNotNil(t *testing.T) {
	got, err := NewDashboardHandler(memory.NewProfileStore()).Students(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDashboard_KPIs(t *testing.T) {
	h := NewDashboardHandler(storeWith(sampleProfiles()...))

	stats, err := h.KPIs(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, stats.TotalStudents)
	assert.Equal(t, 1, stats.HighRiskCount)
	assert.Equal(t, 2, stats.OverdueFeesCount)
	// (0+80+50+41)/4 = 42.75, truncated
	assert.Equal(t, 42, stats.AverageAttendance)
}

func TestDashboard_Charts(t *testing.T) {
	h := NewDashboardHandler(storeWith(sampleProfiles()...))

	stats, err := h.Charts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[risk.Level]int{risk.Low: 1, risk.Medium: 2, risk.High: 1}, stats.RiskDistribution)
	require.Len(t, stats.AttendanceVsScores, 4)
	assert.Equal(t, ScatterPoint{AttendancePercentage: 80, AverageScore: 85}, stats.AttendanceVsScores[0])
}

func TestDashboard_NoProfiles(t *testing.T) {
	h := NewDashboardHandler(memory.NewProfileStore())

	_, err := h.KPIs(context.Background())
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = h.Charts(context.Background())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDashboard_StoreFailure(t *testing.T) {
	s := storeWith(sampleProfiles()...)
	s.Err = errors.New("connection refused")

	_, err := NewDashboardHandler(s).KPIs(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}

// ════════════════════════════════════════════════════════════════════════════
// MENTOR SUGGESTION
// ════════════════════════════════════════════════════════════════════════════

func TestSuggest(t *testing.T) {
	tests := []struct {
		name string
		p    profile.Profile
		want string
	}{
		{"low", profile.Profile{RiskLevel: risk.Low, AttendancePercentage: 90, AverageScore: 90}, SuggestionLow},
		{"high", profile.Profile{RiskLevel: risk.High, AttendancePercentage: 40, AverageScore: 30}, SuggestionHigh},
		{"medium attendance", profile.Profile{RiskLevel: risk.Medium, AttendancePercentage: 74, AverageScore: 40}, SuggestionMediumAttendance},
		{"medium scores", profile.Profile{RiskLevel: risk.Medium, AttendancePercentage: 75, AverageScore: 59}, SuggestionMediumScores},
		{"medium pattern", profile.Profile{RiskLevel: risk.Medium, AttendancePercentage: 90, AverageScore: 90, ExamAttempts: 5}, SuggestionMediumPattern},
		{"unclassified", profile.Profile{}, SuggestionLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Suggest(tt.p))
		})
	}
}

func TestSuggestionHandler(t *testing.T) {
	h := NewSuggestionHandler(storeWith(sampleProfiles()...))

	got, err := h.Handle(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.StudentID)
	assert.Equal(t, risk.Medium, got.RiskLevel)
	assert.Equal(t, SuggestionMediumAttendance, got.Suggestion)

	_, err = h.Handle(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

// ════════════════════════════════════════════════════════════════════════════
// ATTENDANCE HISTORY
// ════════════════════════════════════════════════════════════════════════════

func historyStore(t *testing.T) *memory.EventStore {
	t.Helper()
	s := memory.NewEventStore()
	start := time.Date(2024, time.October, 1, 0, 0, 0, 0, time.UTC)

	var events []attendance.Event
	for i := 0; i < 10; i++ {
		status := attendance.StatusPresent
		if i%3 == 0 {
			status = attendance.StatusAbsent
		}
		events = append(events, attendance.NewEvent(1, start.AddDate(0, 0, i), status))
	}
	events = append(events, attendance.NewEvent(2, start, attendance.StatusLate))
	require.NoError(t, s.UpsertEvents(context.Background(), events))
	return s
}

func TestHistory_RecentIsNewestFirstAndCapped(t *testing.T) {
	h := NewHistoryHandler(historyStore(t))

	got, err := h.Recent(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, got, RecentDays)
	assert.Equal(t, "2024-10-10", got[0].Date)
	assert.Equal(t, "2024-10-04", got[RecentDays-1].Date)
	assert.Equal(t, attendance.StatusAbsent, got[0].Status)
}

func TestHistory_FullIsOldestFirst(t *testing.T) {
	h := NewHistoryHandler(historyStore(t))

	got, err := h.Full(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, got, 10)
	assert.Equal(t, "2024-10-01", got[0].Date)
	assert.Equal(t, "2024-10-10", got[9].Date)
}

func TestHistory_UnknownStudentIsEmpty(t *testing.T) {
	got, err := NewHistoryHandler(historyStore(t)).Full(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHistory_InvalidID(t *testing.T) {
	_, err := NewHistoryHandler(historyStore(t)).Recent(context.Background(), 0)
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

// ════════════════════════════════════════════════════════════════════════════
// ALERT SELECTOR
// ════════════════════════════════════════════════════════════════════════════

func TestAlertSelector(t *testing.T) {
	sel := NewAlertSelector(storeWith(sampleProfiles()...))

	got, err := sel.Recipients(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, id := range []int64{2, 3, 4} {
		assert.Equal(t, id, got[i].StudentID)
	}
}

func TestAlertSelector_NoneAtRisk(t *testing.T) {
	sel := NewAlertSelector(storeWith(profile.Profile{StudentID: 1, RiskLevel: risk.Low}))

	got, err := sel.Recipients(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}
