package query

import (
	"context"

	"github.com/teamvidya/risk-hub/internal/domain/profile"
	"github.com/teamvidya/risk-hub/internal/domain/risk"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

// Suggestion texts shown to mentors.
const (
	SuggestionLow = "Student is performing well. Continue to provide encouragement and monitor progress."

	SuggestionHigh = "High Priority: The model predicts a high risk. This student's low attendance and scores " +
		"require immediate intervention. Recommend a parent-teacher meeting to discuss a personalized support plan."

	SuggestionMediumAttendance = "The model predicts a medium risk, primarily due to low attendance. A follow-up " +
		"conversation is needed to understand the reasons for absence and reinforce the importance of regular classes."

	SuggestionMediumScores = "The model predicts a medium risk because academic scores are dropping. Suggest " +
		"scheduling extra tutorial sessions and focusing on weaker subjects."

	SuggestionMediumPattern = "The model predicts a medium risk. While individual metrics aren't critical, the " +
		"overall pattern is concerning. Recommend a check-in to discuss any challenges the student may be facing."
)

// Suggest picks the mentor suggestion for a profile.
func Suggest(p profile.Profile) string {
	switch p.RiskLevel {
	case risk.High:
		return SuggestionHigh
	case risk.Medium:
		switch {
		case p.AttendancePercentage < risk.MediumAttendanceBelow:
			return SuggestionMediumAttendance
		case p.AverageScore < risk.MediumScoreBelow:
			return SuggestionMediumScores
		default:
			return SuggestionMediumPattern
		}
	}
	return SuggestionLow
}

// MentorSuggestion is the response of the suggestion query.
type MentorSuggestion struct {
	StudentID  int64      `json:"student_id"`
	RiskLevel  risk.Level `json:"risk_level"`
	Suggestion string     `json:"suggestion"`
}

// SuggestionHandler serves mentor suggestions.
type SuggestionHandler struct {
	profiles profile.Store
}

// NewSuggestionHandler creates a new SuggestionHandler.
func NewSuggestionHandler(profiles profile.Store) *SuggestionHandler {
	return &SuggestionHandler{profiles: profiles}
}

// Handle returns the suggestion for one student.
func (h *SuggestionHandler) Handle(ctx context.Context, studentID int64) (*MentorSuggestion, error) {
	p, err := h.profiles.GetProfile(ctx, studentID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, shared.SourceUnavailable("profile", "GetProfile", err)
	}
	return &MentorSuggestion{
		StudentID:  p.StudentID,
		RiskLevel:  p.RiskLevel,
		Suggestion: Suggest(*p),
	}, nil
}
