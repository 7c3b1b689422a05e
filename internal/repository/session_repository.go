package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/solacestudio/studio-reservation/internal/model"
)

// ErrSessionNotFound is returned when a class session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepo provides data access to the class_sessions table.  All
// timestamp fields are stored in UTC.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo returns a SessionRepo bound to the given database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionColumns = `id, name, class_type, room, starts_at, ends_at, max_capacity,
	waitlist_capacity, cancel_deadline_hours, late_fee_cents, drop_in_price_cents,
	is_active, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*model.ClassSession, error) {
	var s model.ClassSession
	err := row.Scan(
		&s.ID, &s.Name, &s.ClassType, &s.Room, &s.StartsAt, &s.EndsAt, &s.MaxCapacity,
		&s.WaitlistCapacity, &s.CancelDeadlineHours, &s.LateFeeCents, &s.DropInPriceCents,
		&s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByID returns one session.  Missing rows map to ErrSessionNotFound.
func (r *SessionRepo) GetByID(ctx context.Context, id uint64) (*model.ClassSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM class_sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return s, err
}

// ListUpcoming returns active sessions starting at or after `from`, ordered
// by start time.  limit <= 0 defaults to 50.
func (r *SessionRepo) ListUpcoming(ctx context.Context, from time.Time, limit int) ([]*model.ClassSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM class_sessions
		 WHERE is_active = 1 AND starts_at >= ?
		 ORDER BY starts_at ASC
		 LIMIT ?`, from, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sessions := make([]*model.ClassSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Create inserts a session and populates the generated id and timestamps on
// the provided record.
func (r *SessionRepo) Create(ctx context.Context, s *model.ClassSession) error {
	const q = `INSERT INTO class_sessions
		(name, class_type, room, starts_at, ends_at, max_capacity, waitlist_capacity,
		 cancel_deadline_hours, late_fee_cents, drop_in_price_cents, is_active)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`
	result, err := r.db.ExecContext(ctx, q,
		s.Name, s.ClassType, s.Room, s.StartsAt.UTC(), s.EndsAt.UTC(), s.MaxCapacity,
		s.WaitlistCapacity, s.CancelDeadlineHours, s.LateFeeCents, s.DropInPriceCents, s.IsActive)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	// Query back the full row to populate timestamps and defaults.
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM class_sessions WHERE id = ?`, s.ID)
	stored, err := scanSession(row)
	if err != nil {
		return err
	}
	*s = *stored
	return nil
}

// Deactivate flags a session inactive so it stops accepting bookings.
// Existing reservations are untouched.  Returns ErrSessionNotFound when no
// row matched.
func (r *SessionRepo) Deactivate(ctx context.Context, id uint64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE class_sessions SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}
