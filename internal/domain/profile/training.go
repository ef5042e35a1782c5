package profile

import (
	"sort"

	"github.com/teamvidya/risk-hub/internal/domain/attendance"
	"github.com/teamvidya/risk-hub/internal/domain/risk"
)

// TrainingSet inner-joins score records with attendance summaries: only
// students present in both contribute a row. A missing fee status takes the
// default so the encoder never sees an empty category. Rows are ordered by
// student_id.
func TrainingSet(scores []ScoreRecord, summaries []attendance.Summary) []risk.Features {
	pct := attendance.Index(summaries)

	sorted := append([]ScoreRecord(nil), scores...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StudentID < sorted[j].StudentID })

	out := make([]risk.Features, 0, len(sorted))
	for _, s := range sorted {
		sum, ok := pct[s.StudentID]
		if !ok {
			continue
		}
		fee := s.FeeStatus
		if fee == "" {
			fee = DefaultFeeStatus
		}
		out = append(out, risk.Features{
			AttendancePercentage: sum.Percentage,
			AverageScore:         s.AverageScore,
			ExamAttempts:         s.ExamAttempts,
			FeeStatus:            string(fee),
		})
	}
	return out
}

// ScoreRecords extracts the score columns of stored profiles.
func ScoreRecords(profiles []Profile) []ScoreRecord {
	out := make([]ScoreRecord, len(profiles))
	for i, p := range profiles {
		out[i] = ScoreRecord{
			StudentID:    p.StudentID,
			AverageScore: p.AverageScore,
			ExamAttempts: p.ExamAttempts,
			FeeStatus:    p.FeeStatus,
		}
	}
	return out
}
