package attendance

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// HistoryOrder selects the ordering of a per-student history read.
type HistoryOrder int

const (
	// NewestFirst orders by date descending.
	NewestFirst HistoryOrder = iota
	// OldestFirst orders by date ascending.
	OldestFirst
)

// EventStore is the attendance event source.
type EventStore interface {
	// ListEvents returns every stored event.
	ListEvents(ctx context.Context) ([]Event, error)

	// UpsertEvents stores events keyed by (student_id, date). A later write
	// for an existing slot replaces its status.
	UpsertEvents(ctx context.Context, events []Event) error

	// ReplaceEvents atomically deletes every event and inserts the given set.
	// Used by the initial bulk load.
	ReplaceEvents(ctx context.Context, events []Event) error

	// ListStudentEvents returns one student's events in the given order.
	// A limit of zero or less returns the full history.
	ListStudentEvents(ctx context.Context, studentID int64, order HistoryOrder, limit int) ([]Event, error)
}
