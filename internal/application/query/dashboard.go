// Package query contains read operations (CQRS - Queries).
// Queries never modify state and only read committed profiles and events.
package query

import (
	"context"

	"github.com/teamvidya/risk-hub/internal/domain/profile"
	"github.com/teamvidya/risk-hub/internal/domain/risk"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DASHBOARD QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// ErrNoProfiles is returned by aggregate queries when nothing is stored yet.
var ErrNoProfiles = shared.NewDomainError("profile", "Stats", shared.ErrNotFound, "no data found")

// KPIStats are the headline numbers of the dashboard.
type KPIStats struct {
	TotalStudents     int `json:"total_students"`
	HighRiskCount     int `json:"high_risk_count"`
	AverageAttendance int `json:"average_attendance"`
	OverdueFeesCount  int `json:"overdue_fees_count"`
}

// ScatterPoint is one student on the attendance/score chart.
type ScatterPoint struct {
	AttendancePercentage int `json:"attendance_percentage"`
	AverageScore         int `json:"average_score"`
}

// DashboardStats feeds the dashboard charts.
type DashboardStats struct {
	RiskDistribution   map[risk.Level]int `json:"risk_distribution"`
	AttendanceVsScores []ScatterPoint     `json:"attendance_vs_scores"`
}

// DashboardHandler serves the dashboard read models.
type DashboardHandler struct {
	profiles profile.Store
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(profiles profile.Store) *DashboardHandler {
	return &DashboardHandler{profiles: profiles}
}

// Students returns every profile ordered by student_id.
func (h *DashboardHandler) Students(ctx context.Context) ([]profile.Profile, error) {
	out, err := h.profiles.ListProfiles(ctx)
	if err != nil {
		return nil, shared.SourceUnavailable("profile", "ListProfiles", err)
	}
	if out == nil {
		out = []profile.Profile{}
	}
	return out, nil
}

// KPIs computes the headline numbers. The average attendance is the mean
// truncated towards zero.
func (h *DashboardHandler) KPIs(ctx context.Context) (*KPIStats, error) {
	profiles, err := h.Students(ctx)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, ErrNoProfiles
	}

	stats := &KPIStats{TotalStudents: len(profiles)}
	sum := 0
	for _, p := range profiles {
		sum += p.AttendancePercentage
		if p.RiskLevel == risk.High {
			stats.HighRiskCount++
		}
		if p.FeeStatus == profile.FeeOverdue {
			stats.OverdueFeesCount++
		}
	}
	stats.AverageAttendance = sum / len(profiles)
	return stats, nil
}

// Charts computes the risk distribution and the attendance/score scatter.
// Only tiers that occur appear in the distribution.
func (h *DashboardHandler) Charts(ctx context.Context) (*DashboardStats, error) {
	profiles, err := h.Students(ctx)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, ErrNoProfiles
	}

	stats := &DashboardStats{
		RiskDistribution:   make(map[risk.Level]int),
		AttendanceVsScores: make([]ScatterPoint, 0, len(profiles)),
	}
	for _, p := range profiles {
		if p.RiskLevel != "" {
			stats.RiskDistribution[p.RiskLevel]++
		}
		stats.AttendanceVsScores = append(stats.AttendanceVsScores, ScatterPoint{
			AttendancePercentage: p.AttendancePercentage,
			AverageScore:         p.AverageScore,
		})
	}
	return stats, nil
}
