package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRule_Precedence(t *testing.T) {
	cases := []struct {
		name string
		in   Features
		want Level
	}{
		{"both high conditions", Features{AttendancePercentage: 65, AverageScore: 40, ExamAttempts: 1, FeeStatus: "Paid"}, High},
		{"low attendance alone", Features{AttendancePercentage: 65, AverageScore: 80, ExamAttempts: 1, FeeStatus: "Paid"}, Medium},
		{"all good", Features{AttendancePercentage: 90, AverageScore: 90, ExamAttempts: 1, FeeStatus: "Paid"}, Low},
		{"low score alone", Features{AttendancePercentage: 90, AverageScore: 40, ExamAttempts: 1, FeeStatus: "Paid"}, Medium},
		{"many attempts", Features{AttendancePercentage: 90, AverageScore: 90, ExamAttempts: 4, FeeStatus: "Paid"}, Medium},
		{"attempts at boundary", Features{AttendancePercentage: 90, AverageScore: 90, ExamAttempts: 3, FeeStatus: "Paid"}, Low},
		{"attendance at high boundary", Features{AttendancePercentage: 70, AverageScore: 40, ExamAttempts: 1, FeeStatus: "Paid"}, Medium},
		{"score at high boundary", Features{AttendancePercentage: 60, AverageScore: 50, ExamAttempts: 1, FeeStatus: "Paid"}, Medium},
		{"attendance at medium boundary", Features{AttendancePercentage: 75, AverageScore: 60, ExamAttempts: 1, FeeStatus: "Paid"}, Low},
		{"fee status ignored", Features{AttendancePercentage: 90, AverageScore: 90, ExamAttempts: 1, FeeStatus: "Overdue"}, Low},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Rule(c.in))
		})
	}
}

func TestRule_HasNoMemory(t *testing.T) {
	f := Features{AttendancePercentage: 65, AverageScore: 40, ExamAttempts: 1}
	assert.Equal(t, High, Rule(f))

	f.AverageScore = 95
	f.AttendancePercentage = 95
	assert.Equal(t, Low, Rule(f))
}

func TestRuleClassifier_PreservesOrder(t *testing.T) {
	batch := []Features{
		{AttendancePercentage: 90, AverageScore: 90, ExamAttempts: 1},
		{AttendancePercentage: 65, AverageScore: 40, ExamAttempts: 1},
		{AttendancePercentage: 65, AverageScore: 80, ExamAttempts: 1},
	}

	got, err := RuleClassifier{}.Classify(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, Low, got[0].Level)
	assert.Equal(t, High, got[1].Level)
	assert.Equal(t, Medium, got[2].Level)
}

func TestLevel(t *testing.T) {
	for _, l := range Levels {
		assert.True(t, l.IsValid())
	}
	assert.False(t, Level("Critical").IsValid())
	assert.True(t, High.Alerting())
	assert.True(t, Medium.Alerting())
	assert.False(t, Low.Alerting())

	l, err := ParseLevel("Medium")
	require.NoError(t, err)
	assert.Equal(t, Medium, l)

	_, err = ParseLevel("medium")
	assert.Error(t, err)
}
