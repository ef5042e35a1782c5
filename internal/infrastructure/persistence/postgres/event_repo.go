package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/teamvidya/risk-hub/internal/domain/attendance"
)

// EventRepository implements attendance.EventStore for PostgreSQL.
type EventRepository struct {
	conn *Connection
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(conn *Connection) *EventRepository {
	return &EventRepository{conn: conn}
}

var _ attendance.EventStore = (*EventRepository)(nil)

const upsertEventSQL = `
	INSERT INTO daily_attendance (student_id, date, status, recorded_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (student_id, date) DO UPDATE SET
		status = EXCLUDED.status,
		recorded_at = EXCLUDED.recorded_at
`

// ListEvents returns every stored event.
func (r *EventRepository) ListEvents(ctx context.Context) ([]attendance.Event, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT student_id, date, status
		FROM daily_attendance
		ORDER BY date, student_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	return scanEvents(rows)
}

// UpsertEvents writes events keyed by (student_id, date) in one transaction.
func (r *EventRepository) UpsertEvents(ctx context.Context, events []attendance.Event) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return err
		}
	}

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range events {
			batch.Queue(upsertEventSQL, e.StudentID, e.Date, string(e.Status))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to upsert attendance: %w", err)
		}
		return nil
	})
}

// ReplaceEvents swaps the whole event table for events in one transaction.
func (r *EventRepository) ReplaceEvents(ctx context.Context, events []attendance.Event) error {
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return replaceEvents(ctx, tx, events)
	})
}

func replaceEvents(ctx context.Context, tx pgx.Tx, events []attendance.Event) error {
	if _, err := tx.Exec(ctx, `DELETE FROM daily_attendance`); err != nil {
		return fmt.Errorf("failed to clear attendance: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, len(events))
	for i, e := range events {
		rows[i] = []any{e.StudentID, e.Date, string(e.Status), now}
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"daily_attendance"},
		[]string{"student_id", "date", "status", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy attendance: %w", err)
	}
	return nil
}

// ListStudentEvents returns one student's history in the given order. A
// non-positive limit returns everything.
func (r *EventRepository) ListStudentEvents(ctx context.Context, studentID int64, order attendance.HistoryOrder, limit int) ([]attendance.Event, error) {
	direction := "ASC"
	if order == attendance.NewestFirst {
		direction = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT student_id, date, status
		FROM daily_attendance
		WHERE student_id = $1
		ORDER BY date %s
	`, direction)
	args := []any{studentID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance for student %d: %w", studentID, err)
	}
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]attendance.Event, error) {
	defer rows.Close()

	var out []attendance.Event
	for rows.Next() {
		var (
			id     int64
			date   time.Time
			status string
		)
		if err := rows.Scan(&id, &date, &status); err != nil {
			return nil, fmt.Errorf("failed to scan attendance row: %w", err)
		}
		out = append(out, attendance.NewEvent(id, date, attendance.Status(status)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read attendance rows: %w", err)
	}
	return out, nil
}
