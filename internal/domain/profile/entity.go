// Package profile holds the reconciled student profile and the merge of its
// three sources (roster, scores, attendance) into candidate rows.
package profile

import (
	"github.com/teamvidya/risk-hub/internal/domain/risk"
)

// FeeStatus is the fee payment state of a student.
type FeeStatus string

const (
	FeePaid    FeeStatus = "Paid"
	FeeOverdue FeeStatus = "Overdue"
)

// Default values for features missing from every source.
const (
	DefaultAttendance   = 0
	DefaultAverageScore = 50
	DefaultExamAttempts = 1
	DefaultFeeStatus    = FeePaid
)

// Profile is the reconciled, denormalized student record.
type Profile struct {
	StudentID            int64      `json:"student_id"`
	Name                 string     `json:"name"`
	Class                int        `json:"class"`
	MentorEmail          string     `json:"mentor_email"`
	GuardianEmail        string     `json:"guardian_email"`
	FeeStatus            FeeStatus  `json:"fee_status"`
	AttendancePercentage int        `json:"attendance_percentage"`
	AverageScore         int        `json:"average_score"`
	ExamAttempts         int        `json:"exam_attempts"`
	RiskLevel            risk.Level `json:"risk_level"`
}

// Features returns the classifier input of the profile.
func (p Profile) Features() risk.Features {
	return risk.Features{
		AttendancePercentage: p.AttendancePercentage,
		AverageScore:         p.AverageScore,
		ExamAttempts:         p.ExamAttempts,
		FeeStatus:            string(p.FeeStatus),
	}
}

// BaseInfo is one roster entry. The roster is authoritative for identity.
type BaseInfo struct {
	StudentID     int64  `json:"student_id" yaml:"student_id"`
	Name          string `json:"name" yaml:"name"`
	Class         int    `json:"class" yaml:"class"`
	MentorEmail   string `json:"mentor_email" yaml:"mentor_email"`
	GuardianEmail string `json:"guardian_email" yaml:"guardian_email"`
}

// ScoreRecord is the externally sourced exam and fee record. FeeStatus is
// optional; an empty value is treated as absent.
type ScoreRecord struct {
	StudentID    int64     `json:"student_id" yaml:"student_id"`
	AverageScore int       `json:"average_score" yaml:"average_score"`
	ExamAttempts int       `json:"exam_attempts" yaml:"exam_attempts"`
	FeeStatus    FeeStatus `json:"fee_status,omitempty" yaml:"fee_status,omitempty"`
}
