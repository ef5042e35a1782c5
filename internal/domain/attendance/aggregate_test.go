package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func history(studentID int64, present, total int) []Event {
	events := make([]Event, 0, total)
	for i := 0; i < total; i++ {
		status := StatusAbsent
		if i < present {
			status = StatusPresent
		}
		events = append(events, NewEvent(studentID, day(i), status))
	}
	return events
}

func TestPercentage_RoundsHalfUp(t *testing.T) {
	cases := []struct {
		present, total, want int
	}{
		{8, 10, 80},
		{5, 10, 50},
		{0, 4, 0},
		{4, 4, 100},
		{1, 8, 13},  // 12.5
		{3, 8, 38},  // 37.5
		{2, 3, 67},  // 66.67
		{1, 3, 33},  // 33.33
		{1, 200, 1}, // 0.5
		{0, 0, 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Percentage(c.present, c.total), "%d/%d", c.present, c.total)
	}
}

func TestAggregate_OneSummaryPerStudentWithEvents(t *testing.T) {
	var events []Event
	events = append(events, history(2, 5, 10)...)
	events = append(events, history(1, 8, 10)...)

	got := Aggregate(events)
	require.Len(t, got, 2)

	assert.Equal(t, Summary{StudentID: 1, Present: 8, Total: 10, Percentage: 80}, got[0])
	assert.Equal(t, Summary{StudentID: 2, Present: 5, Total: 10, Percentage: 50}, got[1])
}

func TestAggregate_StudentWithoutEventsIsAbsent(t *testing.T) {
	got := Index(Aggregate(history(1, 1, 1)))

	_, ok := got[3]
	assert.False(t, ok)
	assert.Empty(t, Aggregate(nil))
}

func TestAggregate_StatusComparisonIsExact(t *testing.T) {
	events := []Event{
		NewEvent(7, day(0), "present"),
		NewEvent(7, day(1), StatusPresent),
		NewEvent(7, day(2), StatusLate),
		NewEvent(7, day(3), StatusExcused),
	}

	got := Aggregate(events)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Present)
	assert.Equal(t, 25, got[0].Percentage)
}

func TestAggregate_PercentageAlwaysInRange(t *testing.T) {
	for total := 1; total <= 40; total++ {
		for present := 0; present <= total; present++ {
			got := Aggregate(history(1, present, total))
			require.Len(t, got, 1)
			p := got[0].Percentage
			assert.GreaterOrEqual(t, p, 0)
			assert.LessOrEqual(t, p, 100)

			exact := 100 * float64(present) / float64(total)
			assert.InDelta(t, exact, float64(p), 0.5)
		}
	}
}

func TestAggregate_IsPureOverItsInput(t *testing.T) {
	events := history(4, 3, 4)

	first := Aggregate(events)
	second := Aggregate(events)

	assert.Equal(t, first, second)
}

func TestDedupe_LastWriteWins(t *testing.T) {
	events := []Event{
		NewEvent(1, day(0), StatusAbsent),
		NewEvent(2, day(0), StatusPresent),
		NewEvent(1, day(0).Add(9*time.Hour), StatusPresent),
	}

	got := Dedupe(events)
	require.Len(t, got, 2)
	assert.Equal(t, StatusPresent, got[0].Status)
	assert.Equal(t, int64(1), got[0].StudentID)
}

func TestEvent_Validate(t *testing.T) {
	assert.NoError(t, NewEvent(1, day(0), StatusPresent).Validate())
	assert.Error(t, NewEvent(0, day(0), StatusPresent).Validate())
	assert.Error(t, NewEvent(1, day(0), " ").Validate())
	assert.Error(t, Event{StudentID: 1, Status: StatusPresent}.Validate())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-09-03")
	require.NoError(t, err)
	assert.Equal(t, day(2), d)

	_, err = ParseDate("03/09/2024")
	assert.Error(t, err)
}
