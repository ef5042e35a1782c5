package query

import (
	"context"

	"github.com/teamvidya/risk-hub/internal/domain/attendance"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

// RecentDays is the window of the short attendance history.
const RecentDays = 7

// DayMark is one day of a student's history.
type DayMark struct {
	Date   string            `json:"date"`
	Status attendance.Status `json:"status"`
}

// HistoryHandler serves per-student attendance history.
type HistoryHandler struct {
	events attendance.EventStore
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(events attendance.EventStore) *HistoryHandler {
	return &HistoryHandler{events: events}
}

// Recent returns the latest RecentDays marks, newest first.
func (h *HistoryHandler) Recent(ctx context.Context, studentID int64) ([]DayMark, error) {
	return h.list(ctx, studentID, attendance.NewestFirst, RecentDays)
}

// Full returns the complete history, oldest first.
func (h *HistoryHandler) Full(ctx context.Context, studentID int64) ([]DayMark, error) {
	return h.list(ctx, studentID, attendance.OldestFirst, 0)
}

func (h *HistoryHandler) list(ctx context.Context, studentID int64, order attendance.HistoryOrder, limit int) ([]DayMark, error) {
	if studentID <= 0 {
		return nil, shared.ErrInvalidStudentID
	}
	events, err := h.events.ListStudentEvents(ctx, studentID, order, limit)
	if err != nil {
		return nil, shared.SourceUnavailable("attendance", "ListStudentEvents", err)
	}
	out := make([]DayMark, len(events))
	for i, e := range events {
		out[i] = DayMark{Date: e.Date.Format(attendance.DateLayout), Status: e.Status}
	}
	return out, nil
}
