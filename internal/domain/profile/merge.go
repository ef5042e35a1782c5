package profile

import (
	"fmt"

	"github.com/teamvidya/risk-hub/internal/domain/attendance"
	"github.com/teamvidya/risk-hub/internal/domain/risk"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

// Input is the snapshot one merge works on.
//
// Stored is empty on the initial load and holds the reconciled profiles when
// recomputing in place. A nil Base or Scores means the source is not
// resupplied this cycle and the stored values are kept.
type Input struct {
	Stored     []Profile
	Base       []BaseInfo
	Scores     []ScoreRecord
	Attendance []attendance.Summary
}

// RowFault records a row excluded from a cycle.
type RowFault struct {
	StudentID int64  `json:"student_id"`
	Stage     string `json:"stage"`
	Err       error  `json:"-"`
	Reason    string `json:"reason"`
}

// Result is the output of Merge.
type Result struct {
	// Columns is the column set carried by the joined rows.
	Columns ColumnSet

	// Candidates holds one profile per roster student, ordered by
	// student_id. RiskLevel is not set.
	Candidates []Profile

	// Faults lists roster students that could not be turned into candidates.
	Faults []RowFault
}

// Merge joins the sources into candidate profiles.
//
// The roster is the union of stored and base student ids; ids that only
// appear in scores or attendance are not emitted. Every source replaces its
// columns by dropping them from the accumulated table before joining.
func Merge(in Input) (Result, error) {
	acc, err := join(in)
	if err != nil {
		return Result{}, err
	}

	filled := FillDefaults(acc)
	candidates, faults := Candidates(filled)
	return Result{Columns: filled.Columns, Candidates: candidates, Faults: faults}, nil
}

func join(in Input) (Table, error) {
	ids := make([]int64, 0, len(in.Stored)+len(in.Base))
	for _, p := range in.Stored {
		ids = append(ids, p.StudentID)
	}
	for _, b := range in.Base {
		ids = append(ids, b.StudentID)
	}
	acc := KeyTable(ids)

	var err error
	if len(in.Stored) > 0 {
		stale := ColumnSet{ColAttendancePercentage, ColRiskLevel}
		if in.Base != nil {
			stale = append(stale, BaseColumns.NonKey()...)
		}
		if in.Scores != nil {
			stale = append(stale, ScoreColumns.NonKey()...)
		}
		if acc, err = LeftJoin(acc, StoredTable(in.Stored).Drop(stale...)); err != nil {
			return Table{}, err
		}
	}
	if in.Base != nil {
		if acc, err = LeftJoin(acc.Drop(BaseColumns...), BaseTable(in.Base)); err != nil {
			return Table{}, err
		}
	}
	if in.Scores != nil {
		if acc, err = LeftJoin(acc.Drop(ScoreColumns...), ScoreTable(in.Scores)); err != nil {
			return Table{}, err
		}
	}
	return LeftJoin(acc.Drop(ColAttendancePercentage), AttendanceTable(in.Attendance))
}

// FillDefaults sets every null feature column to its default. Columns the
// table does not carry are added.
func FillDefaults(t Table) Table {
	cols := append(ColumnSet{}, t.Columns...)
	for _, c := range []Column{ColAttendancePercentage, ColAverageScore, ColExamAttempts, ColFeeStatus} {
		if !cols.Has(c) {
			cols = append(cols, c)
		}
	}

	out := Table{Columns: cols, Rows: make([]Row, len(t.Rows))}
	for i, r := range t.Rows {
		nr := make(Row, len(r)+4)
		for c, v := range r {
			nr[c] = v
		}
		setDefault(nr, ColAttendancePercentage, DefaultAttendance)
		setDefault(nr, ColAverageScore, DefaultAverageScore)
		setDefault(nr, ColExamAttempts, DefaultExamAttempts)
		if fee, ok := nr[ColFeeStatus].(FeeStatus); !ok || fee == "" {
			nr[ColFeeStatus] = DefaultFeeStatus
		}
		out.Rows[i] = nr
	}
	return out
}

func setDefault(r Row, c Column, v int) {
	if cur, ok := r[c]; !ok || cur == nil {
		r[c] = v
	}
}

// Candidates converts rows into typed profiles. A row lacking a feature, or
// carrying one that is out of range, is reported as a MissingFeature fault
// and left out; the rest of the batch is unaffected.
func Candidates(t Table) ([]Profile, []RowFault) {
	out := make([]Profile, 0, len(t.Rows))
	var faults []RowFault
	for _, r := range t.Rows {
		p, err := toProfile(r)
		if err != nil {
			faults = append(faults, RowFault{StudentID: r.StudentID(), Stage: "merge", Err: err, Reason: err.Error()})
			continue
		}
		out = append(out, p)
	}
	return out, faults
}

func toProfile(r Row) (Profile, error) {
	p := Profile{StudentID: r.StudentID()}
	if p.StudentID <= 0 {
		return Profile{}, shared.ErrInvalidStudentID
	}

	var err error
	if p.AttendancePercentage, err = intFeature(r, ColAttendancePercentage, 0, 100); err != nil {
		return Profile{}, err
	}
	if p.AverageScore, err = intFeature(r, ColAverageScore, 0, 100); err != nil {
		return Profile{}, err
	}
	if p.ExamAttempts, err = intFeature(r, ColExamAttempts, 0, 1<<16); err != nil {
		return Profile{}, err
	}
	fee, ok := r[ColFeeStatus].(FeeStatus)
	if !ok || fee == "" {
		return Profile{}, missingFeature(ColFeeStatus, "absent")
	}
	p.FeeStatus = fee

	p.Name, _ = r[ColName].(string)
	p.Class, _ = r[ColClass].(int)
	p.MentorEmail, _ = r[ColMentorEmail].(string)
	p.GuardianEmail, _ = r[ColGuardianEmail].(string)
	if lvl, ok := r[ColRiskLevel].(risk.Level); ok {
		p.RiskLevel = lvl
	}
	return p, nil
}

func intFeature(r Row, c Column, lo, hi int) (int, error) {
	v, ok := r[c]
	if !ok || v == nil {
		return 0, missingFeature(c, "absent")
	}
	n, ok := v.(int)
	if !ok {
		return 0, missingFeature(c, fmt.Sprintf("not an integer (%T)", v))
	}
	if n < lo || n > hi {
		return 0, missingFeature(c, fmt.Sprintf("%d outside [%d, %d]", n, lo, hi))
	}
	return n, nil
}

func missingFeature(c Column, detail string) error {
	return shared.WrapError("profile", "Merge", shared.ErrMissingFeature,
		"missing feature", fmt.Errorf("%s: %s", c, detail))
}
