// Package risk classifies a student's feature vector into a risk tier.
//
// Two strategies share one batch contract: the deterministic Rule and a
// decision-tree Model trained on labels produced by that same Rule. The
// Provider decides at cycle time which one is used.
package risk

import "fmt"

// Level is a risk tier.
type Level string

const (
	Low    Level = "Low"
	Medium Level = "Medium"
	High   Level = "High"
)

// Levels lists every tier in ascending severity.
var Levels = []Level{Low, Medium, High}

// IsValid reports whether l is one of the three tiers.
func (l Level) IsValid() bool {
	switch l {
	case Low, Medium, High:
		return true
	}
	return false
}

// ParseLevel parses a tier name.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if !l.IsValid() {
		return "", fmt.Errorf("risk: unknown level %q", s)
	}
	return l, nil
}

// Alerting reports whether the tier is selected for notifications.
func (l Level) Alerting() bool {
	return l == Medium || l == High
}

// Features is the vector both strategies classify.
type Features struct {
	AttendancePercentage int    `json:"attendance_percentage"`
	AverageScore         int    `json:"average_score"`
	ExamAttempts         int    `json:"exam_attempts"`
	FeeStatus            string `json:"fee_status"`
}

// Rule thresholds.
const (
	HighAttendanceBelow   = 70
	HighScoreBelow        = 50
	MediumAttendanceBelow = 75
	MediumScoreBelow      = 60
	MediumAttemptsAbove   = 3
)

// Rule is the deterministic classifier. High is checked first and
// short-circuits; fee_status does not take part.
func Rule(f Features) Level {
	if f.AttendancePercentage < HighAttendanceBelow && f.AverageScore < HighScoreBelow {
		return High
	}
	if f.AttendancePercentage < MediumAttendanceBelow ||
		f.AverageScore < MediumScoreBelow ||
		f.ExamAttempts > MediumAttemptsAbove {
		return Medium
	}
	return Low
}
