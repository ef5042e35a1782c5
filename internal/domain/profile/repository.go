package profile

import (
	"context"

	"github.com/teamvidya/risk-hub/internal/domain/risk"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Store is the reconciled profile storage.
type Store interface {
	// ListProfiles returns every profile ordered by student_id.
	ListProfiles(ctx context.Context) ([]Profile, error)

	// GetProfile returns one profile or shared.ErrStudentNotFound.
	GetProfile(ctx context.Context, studentID int64) (*Profile, error)

	// ListProfilesByRisk returns the profiles whose risk_level is one of levels,
	// ordered by student_id.
	ListProfilesByRisk(ctx context.Context, levels ...risk.Level) ([]Profile, error)

	// UpsertProfiles inserts absent profiles and overwrites only the given
	// columns of existing ones. The batch is applied atomically.
	UpsertProfiles(ctx context.Context, profiles []Profile, columns ColumnSet) error
}

// Apply copies the columns of src onto dst. It is the in-memory meaning of a
// column-restricted upsert.
func Apply(dst *Profile, src Profile, columns ColumnSet) {
	for _, c := range columns {
		switch c {
		case ColStudentID:
			dst.StudentID = src.StudentID
		case ColName:
			dst.Name = src.Name
		case ColClass:
			dst.Class = src.Class
		case ColMentorEmail:
			dst.MentorEmail = src.MentorEmail
		case ColGuardianEmail:
			dst.GuardianEmail = src.GuardianEmail
		case ColFeeStatus:
			dst.FeeStatus = src.FeeStatus
		case ColAttendancePercentage:
			dst.AttendancePercentage = src.AttendancePercentage
		case ColAverageScore:
			dst.AverageScore = src.AverageScore
		case ColExamAttempts:
			dst.ExamAttempts = src.ExamAttempts
		case ColRiskLevel:
			dst.RiskLevel = src.RiskLevel
		}
	}
}

// Value returns the stored value of column c.
func (p Profile) Value(c Column) any {
	switch c {
	case ColStudentID:
		return p.StudentID
	case ColName:
		return p.Name
	case ColClass:
		return p.Class
	case ColMentorEmail:
		return p.MentorEmail
	case ColGuardianEmail:
		return p.GuardianEmail
	case ColFeeStatus:
		return string(p.FeeStatus)
	case ColAttendancePercentage:
		return p.AttendancePercentage
	case ColAverageScore:
		return p.AverageScore
	case ColExamAttempts:
		return p.ExamAttempts
	case ColRiskLevel:
		return string(p.RiskLevel)
	}
	return nil
}
