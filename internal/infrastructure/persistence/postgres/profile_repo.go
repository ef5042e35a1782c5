package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/teamvidya/risk-hub/internal/domain/profile"
	"github.com/teamvidya/risk-hub/internal/domain/risk"
	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

// ProfileRepository implements profile.Store for PostgreSQL.
type ProfileRepository struct {
	conn *Connection
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{conn: conn}
}

var _ profile.Store = (*ProfileRepository)(nil)

const selectProfileSQL = `
	SELECT student_id, name, class, mentor_email, guardian_email, fee_status,
		   attendance_percentage, average_score, exam_attempts, COALESCE(risk_level, '')
	FROM students
`

// ListProfiles returns every profile ordered by student_id.
func (r *ProfileRepository) ListProfiles(ctx context.Context) ([]profile.Profile, error) {
	rows, err := r.conn.Query(ctx, selectProfileSQL+" ORDER BY student_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	return scanProfiles(rows)
}

// ListProfilesByRisk returns the profiles in any of levels ordered by
// student_id.
func (r *ProfileRepository) ListProfilesByRisk(ctx context.Context, levels ...risk.Level) ([]profile.Profile, error) {
	names := make([]string, len(levels))
	for i, l := range levels {
		names[i] = string(l)
	}

	rows, err := r.conn.Query(ctx, selectProfileSQL+" WHERE risk_level = ANY($1) ORDER BY student_id", names)
	if err != nil {
		return nil, fmt.Errorf("failed to query students by risk: %w", err)
	}
	return scanProfiles(rows)
}

// GetProfile returns one profile or shared.ErrStudentNotFound.
func (r *ProfileRepository) GetProfile(ctx context.Context, studentID int64) (*profile.Profile, error) {
	rows, err := r.conn.Query(ctx, selectProfileSQL+" WHERE student_id = $1", studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query student %d: %w", studentID, err)
	}
	list, err := scanProfiles(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, shared.ErrStudentNotFound
	}
	return &list[0], nil
}

// UpsertProfiles inserts or updates profiles keyed by student_id in one
// transaction. On conflict only columns are overwritten, so values written
// outside the engine survive a partial upsert.
func (r *ProfileRepository) UpsertProfiles(ctx context.Context, profiles []profile.Profile, columns profile.ColumnSet) error {
	if err := columns.Validate(); err != nil {
		return err
	}
	for _, p := range profiles {
		if p.StudentID <= 0 {
			return shared.ErrInvalidStudentID
		}
	}
	if len(profiles) == 0 {
		return nil
	}

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return upsertProfiles(ctx, tx, profiles, columns)
	})
}

func upsertProfiles(ctx context.Context, tx pgx.Tx, profiles []profile.Profile, columns profile.ColumnSet) error {
	query := upsertProfileSQL(columns)
	batch := &pgx.Batch{}
	for _, p := range profiles {
		batch.Queue(query, profileArgs(p, columns)...)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert students: %w", err)
	}
	return nil
}

// upsertProfileSQL builds the statement for a column set. Column names come
// from the fixed profile.Column constants, never from input.
func upsertProfileSQL(columns profile.ColumnSet) string {
	names := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, c := range columns {
		names[i] = string(c)
		params[i] = fmt.Sprintf("$%d", i+1)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO students (%s) VALUES (%s) ON CONFLICT (student_id) DO ",
		strings.Join(names, ", "), strings.Join(params, ", "))

	sets := make([]string, 0, len(columns))
	for _, c := range columns.NonKey() {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	if len(sets) == 0 {
		b.WriteString("NOTHING")
		return b.String()
	}
	sets = append(sets, "updated_at = NOW()")
	b.WriteString("UPDATE SET ")
	b.WriteString(strings.Join(sets, ", "))
	return b.String()
}

func profileArgs(p profile.Profile, columns profile.ColumnSet) []any {
	args := make([]any, len(columns))
	for i, c := range columns {
		v := p.Value(c)
		if c == profile.ColRiskLevel && v == "" {
			v = nil
		}
		args[i] = v
	}
	return args
}

func scanProfiles(rows pgx.Rows) ([]profile.Profile, error) {
	defer rows.Close()

	var out []profile.Profile
	for rows.Next() {
		var (
			p     profile.Profile
			fee   string
			level string
		)
		if err := rows.Scan(
			&p.StudentID, &p.Name, &p.Class, &p.MentorEmail, &p.GuardianEmail, &fee,
			&p.AttendancePercentage, &p.AverageScore, &p.ExamAttempts, &level,
		); err != nil {
			return nil, fmt.Errorf("failed to scan student row: %w", err)
		}
		p.FeeStatus = profile.FeeStatus(fee)
		p.RiskLevel = risk.Level(level)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read student rows: %w", err)
	}
	return out, nil
}
