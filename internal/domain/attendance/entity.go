// Package attendance holds the daily attendance event model and the
// aggregation that reduces a set of events to one percentage per student.
//
// Events are upserted by (student_id, date): a later write for the same day
// replaces the stored status and never adds a second row.
package attendance

import (
	"strings"
	"time"

	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

// DateLayout is the wire and storage layout of an attendance date.
const DateLayout = "2006-01-02"

// Status is the recorded attendance mark for one student on one day.
type Status string

const (
	StatusPresent Status = "Present"
	StatusAbsent  Status = "Absent"
	StatusLate    Status = "Late"
	StatusExcused Status = "Excused"
)

// IsValid reports whether the status is a non-empty mark.
// Only StatusPresent counts towards attendance; every other mark counts as a
// recorded day without presence.
func (s Status) IsValid() bool {
	return strings.TrimSpace(string(s)) != ""
}

// IsPresent reports whether the mark counts as attended.
// The comparison is exact: "present" in lower case is not a presence.
func (s Status) IsPresent() bool {
	return s == StatusPresent
}

// Event is one student's attendance mark for one calendar day.
type Event struct {
	StudentID int64     `json:"student_id"`
	Date      time.Time `json:"date"`
	Status    Status    `json:"status"`
}

// Key identifies the upsert slot of an event.
type Key struct {
	StudentID int64
	Date      string
}

// Key returns the (student_id, date) slot of the event.
func (e Event) Key() Key {
	return Key{StudentID: e.StudentID, Date: e.Date.Format(DateLayout)}
}

// Validate checks the event can be stored.
func (e Event) Validate() error {
	if e.StudentID <= 0 {
		return shared.ErrInvalidStudentID
	}
	if e.Date.IsZero() {
		return shared.ErrInvalidDate
	}
	if !e.Status.IsValid() {
		return shared.ErrInvalidStatus
	}
	return nil
}

// NewEvent builds an event truncated to its calendar day.
func NewEvent(studentID int64, day time.Time, status Status) Event {
	y, m, d := day.Date()
	return Event{
		StudentID: studentID,
		Date:      time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Status:    status,
	}
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, shared.WrapError("attendance", "ParseDate", shared.ErrInvalidFormat, "date must be YYYY-MM-DD", err)
	}
	return t, nil
}

// Dedupe collapses events that share a (student_id, date) slot, keeping the
// last write. Order of first appearance is preserved.
func Dedupe(events []Event) []Event {
	idx := make(map[Key]int, len(events))
	out := make([]Event, 0, len(events))
	for _, e := range events {
		k := e.Key()
		if i, ok := idx[k]; ok {
			out[i] = e
			continue
		}
		idx[k] = len(out)
		out = append(out, e)
	}
	return out
}
