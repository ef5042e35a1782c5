package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/teamvidya/risk-hub/internal/application/command"
	"github.com/teamvidya/risk-hub/internal/domain/attendance"
	"github.com/teamvidya/risk-hub/internal/domain/profile"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

// SeedRepository commits the initial load in a single transaction.
type SeedRepository struct {
	conn *Connection
}

// NewSeedRepository creates a new SeedRepository.
func NewSeedRepository(conn *Connection) *SeedRepository {
	return &SeedRepository{conn: conn}
}

var _ command.SeedWriter = (*SeedRepository)(nil)

// WriteSeed replaces daily_attendance and upserts every profile column. Either
// both tables change or neither does.
func (r *SeedRepository) WriteSeed(ctx context.Context, events []attendance.Event, profiles []profile.Profile) error {
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	for _, p := range profiles {
		if p.StudentID <= 0 {
			return shared.ErrInvalidStudentID
		}
	}

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if err := replaceEvents(ctx, tx, events); err != nil {
			return err
		}
		if len(profiles) == 0 {
			return nil
		}
		return upsertProfiles(ctx, tx, profiles, profile.FullColumns)
	})
}
