package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teamvidya/risk-hub/internal/domain/profile"
	"github.com/teamvidya/risk-hub/internal/domain/risk"
)

func TestUpsertProfileSQL_Partial(t *testing.T) {
	got := upsertProfileSQL(profile.PartialColumns)

	assert.Equal(t,
		"INSERT INTO students (student_id, attendance_percentage, risk_level) VALUES ($1, $2, $3) "+
			"ON CONFLICT (student_id) DO UPDATE SET attendance_percentage = EXCLUDED.attendance_percentage, "+
			"risk_level = EXCLUDED.risk_level, updated_at = NOW()",
		got)
	assert.NotContains(t, got, "mentor_email")
}

func TestUpsertProfileSQL_Full(t *testing.T) {
	got := upsertProfileSQL(profile.FullColumns)

	for _, c := range profile.FullColumns.NonKey() {
		assert.Contains(t, got, string(c)+" = EXCLUDED."+string(c))
	}
	assert.Contains(t, got, "$10")
}

func TestUpsertProfileSQL_KeyOnly(t *testing.T) {
	got := upsertProfileSQL(profile.ColumnSet{profile.ColStudentID})
	assert.Contains(t, got, "DO NOTHING")
}

func TestProfileArgs(t *testing.T) {
	p := profile.Profile{StudentID: 7, AttendancePercentage: 64}

	args := profileArgs(p, profile.PartialColumns)
	assert.Equal(t, []any{int64(7), 64, nil}, args)

	p.RiskLevel = risk.High
	args = profileArgs(p, profile.PartialColumns)
	assert.Equal(t, "High", args[2])
}
