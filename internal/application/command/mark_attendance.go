package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teamvidya/risk-hub/internal/domain/attendance"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE COMMANDS
// Both commands write events first and then run a partial cycle, so the
// cycle always observes the write that triggered it.
// ══════════════════════════════════════════════════════════════════════════════

// Mark is one student's status for today.
type Mark struct {
	StudentID int64             `json:"student_id" validate:"required,gt=0"`
	Status    attendance.Status `json:"status" validate:"required"`
}

// MarkAttendanceCommand records today's attendance.
type MarkAttendanceCommand struct {
	Records []Mark
}

// Validate validates the command. An empty batch is allowed and only
// triggers the recomputation.
func (c MarkAttendanceCommand) Validate() error {
	var errs []error
	for i, r := range c.Records {
		if r.StudentID <= 0 {
			errs = append(errs, fmt.Errorf("record %d: %w", i, shared.ErrInvalidStudentID))
		}
		if !r.Status.IsValid() {
			errs = append(errs, fmt.Errorf("record %d: %w", i, shared.ErrInvalidStatus))
		}
	}
	return errors.Join(errs...)
}

// HistoricalMark is a status for an explicit date.
type HistoricalMark struct {
	StudentID int64             `json:"student_id" validate:"required,gt=0"`
	Date      string            `json:"date" validate:"required,datetime=2006-01-02"`
	Status    attendance.Status `json:"status" validate:"required"`
}

// UpdateHistoricalAttendanceCommand corrects or backfills past days.
type UpdateHistoricalAttendanceCommand struct {
	Records []HistoricalMark
}

// Validate validates the command.
func (c UpdateHistoricalAttendanceCommand) Validate() error {
	if len(c.Records) == 0 {
		return shared.ErrNoEventsToSave
	}
	var errs []error
	for i, r := range c.Records {
		if _, err := attendance.ParseDate(r.Date); err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
		}
		if r.StudentID <= 0 {
			errs = append(errs, fmt.Errorf("record %d: %w", i, shared.ErrInvalidStudentID))
		}
		if !r.Status.IsValid() {
			errs = append(errs, fmt.Errorf("record %d: %w", i, shared.ErrInvalidStatus))
		}
	}
	return errors.Join(errs...)
}

// AttendanceResult contains the outcome of an attendance write.
type AttendanceResult struct {
	Saved  int          `json:"saved"`
	Date   string       `json:"date,omitempty"`
	Report *CycleReport `json:"report"`
}

// AttendanceHandler handles the attendance commands.
type AttendanceHandler struct {
	events   attendance.EventStore
	engine   *Engine
	location *time.Location
	now      func() time.Time
}

// NewAttendanceHandler creates a new AttendanceHandler. Today's date is
// taken in location.
func NewAttendanceHandler(events attendance.EventStore, engine *Engine, location *time.Location) *AttendanceHandler {
	if location == nil {
		location = time.UTC
	}
	return &AttendanceHandler{
		events:   events,
		engine:   engine,
		location: location,
		now:      time.Now,
	}
}

// Today returns the current calendar day in the handler's location.
func (h *AttendanceHandler) Today() time.Time {
	return h.now().In(h.location)
}

// HandleMark executes MarkAttendanceCommand.
func (h *AttendanceHandler) HandleMark(ctx context.Context, cmd MarkAttendanceCommand) (*AttendanceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("mark_attendance: validation failed: %w", err)
	}

	today := h.Today()
	events := make([]attendance.Event, 0, len(cmd.Records))
	for _, r := range cmd.Records {
		events = append(events, attendance.NewEvent(r.StudentID, today, r.Status))
	}

	return h.save(ctx, attendance.Dedupe(events), today.Format(attendance.DateLayout))
}

// HandleHistorical executes UpdateHistoricalAttendanceCommand.
func (h *AttendanceHandler) HandleHistorical(ctx context.Context, cmd UpdateHistoricalAttendanceCommand) (*AttendanceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("update_historical_attendance: validation failed: %w", err)
	}

	events := make([]attendance.Event, 0, len(cmd.Records))
	for _, r := range cmd.Records {
		d, _ := attendance.ParseDate(r.Date)
		events = append(events, attendance.NewEvent(r.StudentID, d, r.Status))
	}

	return h.save(ctx, attendance.Dedupe(events), "")
}

func (h *AttendanceHandler) save(ctx context.Context, events []attendance.Event, date string) (*AttendanceResult, error) {
	if len(events) > 0 {
		if err := h.events.UpsertEvents(ctx, events); err != nil {
			return nil, shared.SourceUnavailable("attendance", "UpsertEvents", err)
		}
	}

	report, err := h.engine.Recompute(ctx)
	if err != nil {
		return nil, fmt.Errorf("attendance saved but recomputation failed: %w", err)
	}

	return &AttendanceResult{Saved: len(events), Date: date, Report: report}, nil
}
