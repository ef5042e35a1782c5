package profile

import (
	"fmt"
	"sort"

	"github.com/teamvidya/risk-hub/internal/domain/attendance"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

// Column names a profile field as stored.
type Column string

const (
	ColStudentID            Column = "student_id"
	ColName                 Column = "name"
	ColClass                Column = "class"
	ColMentorEmail          Column = "mentor_email"
	ColGuardianEmail        Column = "guardian_email"
	ColFeeStatus            Column = "fee_status"
	ColAttendancePercentage Column = "attendance_percentage"
	ColAverageScore         Column = "average_score"
	ColExamAttempts         Column = "exam_attempts"
	ColRiskLevel            Column = "risk_level"
)

// ColumnSet is an ordered set of columns.
type ColumnSet []Column

var (
	// FullColumns is every profile column, used by the initial bulk load.
	FullColumns = ColumnSet{
		ColStudentID, ColName, ColClass, ColMentorEmail, ColGuardianEmail,
		ColFeeStatus, ColAttendancePercentage, ColAverageScore, ColExamAttempts, ColRiskLevel,
	}

	// PartialColumns is what an incremental recompute overwrites.
	PartialColumns = ColumnSet{ColStudentID, ColAttendancePercentage, ColRiskLevel}

	BaseColumns       = ColumnSet{ColStudentID, ColName, ColClass, ColMentorEmail, ColGuardianEmail}
	ScoreColumns      = ColumnSet{ColStudentID, ColAverageScore, ColExamAttempts, ColFeeStatus}
	AttendanceColumns = ColumnSet{ColStudentID, ColAttendancePercentage}
)

// Has reports whether c is in the set.
func (s ColumnSet) Has(c Column) bool {
	for _, x := range s {
		if x == c {
			return true
		}
	}
	return false
}

// Without returns the set minus cols. The key column is never removed.
func (s ColumnSet) Without(cols ...Column) ColumnSet {
	drop := ColumnSet(cols)
	out := make(ColumnSet, 0, len(s))
	for _, c := range s {
		if c != ColStudentID && drop.Has(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// NonKey returns the set without student_id.
func (s ColumnSet) NonKey() ColumnSet {
	out := make(ColumnSet, 0, len(s))
	for _, c := range s {
		if c != ColStudentID {
			out = append(out, c)
		}
	}
	return out
}

// Overlap returns the non-key columns present in both sets.
func (s ColumnSet) Overlap(o ColumnSet) ColumnSet {
	var out ColumnSet
	for _, c := range s.NonKey() {
		if o.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks the set can drive an upsert: it must contain the key,
// known columns only, and no duplicates.
func (s ColumnSet) Validate() error {
	seen := make(map[Column]bool, len(s))
	for _, c := range s {
		if !FullColumns.Has(c) {
			return shared.WrapError("profile", "Columns", shared.ErrInvalidInput, "unknown column", fmt.Errorf("%q", c))
		}
		if seen[c] {
			return shared.WrapError("profile", "Columns", shared.ErrInvalidInput, "duplicate column", fmt.Errorf("%q", c))
		}
		seen[c] = true
	}
	if !seen[ColStudentID] {
		return shared.NewDomainError("profile", "Columns", shared.ErrInvalidInput, "column set must include student_id")
	}
	return nil
}

// Row is one student's values keyed by column. An absent key is a null.
type Row map[Column]any

// StudentID returns the key of the row.
func (r Row) StudentID() int64 {
	id, _ := r[ColStudentID].(int64)
	return id
}

// Table is a set of rows sharing a column set.
type Table struct {
	Columns ColumnSet
	Rows    []Row
}

// Drop removes cols from the table. student_id cannot be dropped; columns
// the table does not have are ignored.
func (t Table) Drop(cols ...Column) Table {
	out := Table{Columns: t.Columns.Without(cols...), Rows: make([]Row, len(t.Rows))}
	for i, r := range t.Rows {
		nr := make(Row, len(out.Columns))
		for _, c := range out.Columns {
			if v, ok := r[c]; ok {
				nr[c] = v
			}
		}
		out.Rows[i] = nr
	}
	return out
}

// LeftJoin joins right onto left by student_id, keeping every left row.
// Tables sharing a non-key column are refused with ErrColumnCollision: the
// caller must drop the stale column first, so no row ever carries two
// versions of one field.
func LeftJoin(left, right Table) (Table, error) {
	if overlap := left.Columns.Overlap(right.Columns); len(overlap) > 0 {
		return Table{}, shared.WrapError("profile", "Join", shared.ErrColumnCollision,
			"rows share a non-key column", fmt.Errorf("columns %v", overlap))
	}

	index := make(map[int64]Row, len(right.Rows))
	for _, r := range right.Rows {
		index[r.StudentID()] = r
	}

	cols := append(append(ColumnSet{}, left.Columns...), right.Columns.NonKey()...)
	out := Table{Columns: cols, Rows: make([]Row, len(left.Rows))}
	for i, l := range left.Rows {
		nr := make(Row, len(cols))
		for c, v := range l {
			nr[c] = v
		}
		if r, ok := index[l.StudentID()]; ok {
			for _, c := range right.Columns.NonKey() {
				if v, ok := r[c]; ok {
					nr[c] = v
				}
			}
		}
		out.Rows[i] = nr
	}
	return out, nil
}

// ════════════════════════════════════════════════════════════════════════════
// SOURCE TABLES
// ════════════════════════════════════════════════════════════════════════════

// KeyTable returns a student_id-only table of the given ids, sorted and
// without duplicates.
func KeyTable(ids []int64) Table {
	seen := make(map[int64]bool, len(ids))
	uniq := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })

	t := Table{Columns: ColumnSet{ColStudentID}, Rows: make([]Row, len(uniq))}
	for i, id := range uniq {
		t.Rows[i] = Row{ColStudentID: id}
	}
	return t
}

// BaseTable converts the roster.
func BaseTable(base []BaseInfo) Table {
	t := Table{Columns: BaseColumns, Rows: make([]Row, 0, len(base))}
	for _, b := range base {
		t.Rows = append(t.Rows, Row{
			ColStudentID:     b.StudentID,
			ColName:          b.Name,
			ColClass:         b.Class,
			ColMentorEmail:   b.MentorEmail,
			ColGuardianEmail: b.GuardianEmail,
		})
	}
	return t
}

// ScoreTable converts score records. An empty fee status stays null.
func ScoreTable(scores []ScoreRecord) Table {
	t := Table{Columns: ScoreColumns, Rows: make([]Row, 0, len(scores))}
	for _, s := range scores {
		r := Row{
			ColStudentID:    s.StudentID,
			ColAverageScore: s.AverageScore,
			ColExamAttempts: s.ExamAttempts,
		}
		if s.FeeStatus != "" {
			r[ColFeeStatus] = s.FeeStatus
		}
		t.Rows = append(t.Rows, r)
	}
	return t
}

// AttendanceTable converts aggregated attendance.
func AttendanceTable(summaries []attendance.Summary) Table {
	t := Table{Columns: AttendanceColumns, Rows: make([]Row, 0, len(summaries))}
	for _, s := range summaries {
		t.Rows = append(t.Rows, Row{
			ColStudentID:            s.StudentID,
			ColAttendancePercentage: s.Percentage,
		})
	}
	return t
}

// StoredTable converts reconciled profiles.
func StoredTable(profiles []Profile) Table {
	t := Table{Columns: FullColumns, Rows: make([]Row, 0, len(profiles))}
	for _, p := range profiles {
		t.Rows = append(t.Rows, Row{
			ColStudentID:            p.StudentID,
			ColName:                 p.Name,
			ColClass:                p.Class,
			ColMentorEmail:          p.MentorEmail,
			ColGuardianEmail:        p.GuardianEmail,
			ColFeeStatus:            p.FeeStatus,
			ColAttendancePercentage: p.AttendancePercentage,
			ColAverageScore:         p.AverageScore,
			ColExamAttempts:         p.ExamAttempts,
			ColRiskLevel:            p.RiskLevel,
		})
	}
	return t
}
