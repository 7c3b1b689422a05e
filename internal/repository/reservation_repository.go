package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/solacestudio/studio-reservation/internal/model"
)

// ErrReservationNotFound is returned when a reservation does not exist.
var ErrReservationNotFound = errors.New("reservation not found")

// Non-terminal statuses used by the duplicate-booking and hydration
// queries.  A reservation in any other status no longer occupies a seat or
// a waitlist slot.
const openStatuses = `'CONFIRMED','CHECKED_IN','WAITLISTED'`

// ReservationRepo provides data access to the reservations table.
// Reservations are never deleted, only transitioned to terminal statuses,
// so the table is also the booking audit trail.  All timestamp fields are
// stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, session_id, member_id, status, position, account_id,
	payment_method, amount_cents, fee_cents, refund_cents, booked_at, waitlisted_at,
	promoted_at, checked_in_at, cancelled_at, completed_at, created_at, updated_at`

func scanReservation(row interface{ Scan(...any) error }) (*model.Reservation, error) {
	var r model.Reservation
	var accountID sql.NullInt64
	var waitlistedAt, promotedAt, checkedInAt, cancelledAt, completedAt sql.NullTime
	err := row.Scan(
		&r.ID, &r.SessionID, &r.MemberID, &r.Status, &r.Position, &accountID,
		&r.PaymentMethod, &r.AmountCents, &r.FeeCents, &r.RefundCents, &r.BookedAt, &waitlistedAt,
		&promotedAt, &checkedInAt, &cancelledAt, &completedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if accountID.Valid {
		id := uint64(accountID.Int64)
		r.AccountID = &id
	}
	r.WaitlistedAt = nullTimePtr(waitlistedAt)
	r.PromotedAt = nullTimePtr(promotedAt)
	r.CheckedInAt = nullTimePtr(checkedInAt)
	r.CancelledAt = nullTimePtr(cancelledAt)
	r.CompletedAt = nullTimePtr(completedAt)
	return &r, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullableID(id *uint64) any {
	if id == nil {
		return nil
	}
	return *id
}

// GetByID returns one reservation.  Missing rows map to
// ErrReservationNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	return res, err
}

// ActiveByMemberAndSession returns the member's non-terminal reservation
// for a session, or (nil, nil) when there is none.  At most one such row
// can exist per (member, session) pair.
func (r *ReservationRepo) ActiveByMemberAndSession(ctx context.Context, memberID, sessionID uint64) (*model.Reservation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE member_id = ? AND session_id = ? AND status IN (`+openStatuses+`)
		 LIMIT 1`, memberID, sessionID)
	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

// ListOpenBySession returns every confirmed, checked-in or waitlisted
// reservation for the session, ordered by id for determinism.  Used to
// hydrate the capacity tracker.
func (r *ReservationRepo) ListOpenBySession(ctx context.Context, sessionID uint64) ([]*model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE session_id = ? AND status IN (`+openStatuses+`)
		 ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReservationDetail is a reservation joined with its session for display to
// members.
type ReservationDetail struct {
	ID            uint64  `json:"id"`
	SessionID     uint64  `json:"session_id"`
	SessionName   string  `json:"session_name"`
	Room          string  `json:"room"`
	StartsAt      string  `json:"starts_at"`
	EndsAt        string  `json:"ends_at"`
	Status        string  `json:"status"`
	Position      uint32  `json:"position"`
	PaymentMethod string  `json:"payment_method"`
	AmountCents   uint32  `json:"amount_cents"`
	FeeCents      uint32  `json:"fee_cents"`
	RefundCents   uint32  `json:"refund_cents"`
	BookedAt      string  `json:"booked_at"`
	CancelledAt   *string `json:"cancelled_at,omitempty"`
}

const detailQuery = `SELECT r.id, r.session_id, s.name, s.room, s.starts_at, s.ends_at,
		r.status, r.position, r.payment_method, r.amount_cents, r.fee_cents,
		r.refund_cents, r.booked_at, r.cancelled_at
	FROM reservations r
	JOIN class_sessions s ON s.id = r.session_id`

func scanDetail(row interface{ Scan(...any) error }) (*ReservationDetail, error) {
	var d ReservationDetail
	var startsAt, endsAt, bookedAt time.Time
	var cancelledAt sql.NullTime
	err := row.Scan(
		&d.ID, &d.SessionID, &d.SessionName, &d.Room, &startsAt, &endsAt,
		&d.Status, &d.Position, &d.PaymentMethod, &d.AmountCents, &d.FeeCents,
		&d.RefundCents, &bookedAt, &cancelledAt,
	)
	if err != nil {
		return nil, err
	}
	d.StartsAt = startsAt.UTC().Format(time.RFC3339)
	d.EndsAt = endsAt.UTC().Format(time.RFC3339)
	d.BookedAt = bookedAt.UTC().Format(time.RFC3339)
	if cancelledAt.Valid {
		iso := cancelledAt.Time.UTC().Format(time.RFC3339)
		d.CancelledAt = &iso
	}
	return &d, nil
}

// ListByMember returns the member's reservations with session details,
// newest first.  When no reservations exist, an empty slice is returned.
func (r *ReservationRepo) ListByMember(ctx context.Context, memberID uint64) ([]*ReservationDetail, error) {
	rows, err := r.db.QueryContext(ctx,
		detailQuery+` WHERE r.member_id = ? ORDER BY r.booked_at DESC, r.id DESC`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	details := make([]*ReservationDetail, 0)
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return details, nil
}

// GetDetailForMember returns a single reservation detail, enforcing
// ownership.  It returns ErrReservationNotFound when the row does not exist
// and ErrForbidden when it belongs to another member.
func (r *ReservationRepo) GetDetailForMember(ctx context.Context, reservationID, memberID uint64) (*ReservationDetail, error) {
	var ownerID uint64
	err := r.db.QueryRowContext(ctx,
		`SELECT member_id FROM reservations WHERE id = ?`, reservationID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	if ownerID != memberID {
		return nil, ErrForbidden
	}
	row := r.db.QueryRowContext(ctx, detailQuery+` WHERE r.id = ?`, reservationID)
	return scanDetail(row)
}

// RosterEntry is one reservation on a session's roster as seen by staff.
type RosterEntry struct {
	ReservationID uint64 `json:"reservation_id"`
	MemberID      uint64 `json:"member_id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	Status        string `json:"status"`
	Position      uint32 `json:"position"`
	PaymentMethod string `json:"payment_method"`
}

// RosterBySession returns all open reservations for a session with member
// contact details, confirmed seats first, then the waitlist in order.
func (r *ReservationRepo) RosterBySession(ctx context.Context, sessionID uint64) ([]*RosterEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.id, r.member_id, m.first_name, m.last_name, m.email,
		        r.status, r.position, r.payment_method
		 FROM reservations r
		 JOIN members m ON m.id = r.member_id
		 WHERE r.session_id = ? AND r.status IN (`+openStatuses+`)
		 ORDER BY FIELD(r.status, 'CONFIRMED', 'CHECKED_IN', 'WAITLISTED'), r.position ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	roster := make([]*RosterEntry, 0)
	for rows.Next() {
		var e RosterEntry
		if err := rows.Scan(&e.ReservationID, &e.MemberID, &e.FirstName, &e.LastName,
			&e.Email, &e.Status, &e.Position, &e.PaymentMethod); err != nil {
			return nil, err
		}
		roster = append(roster, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roster, nil
}

// CreateTx inserts a reservation within an existing transaction and
// populates the generated id on the record.  The caller must commit or
// roll back.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `INSERT INTO reservations
		(session_id, member_id, status, position, account_id, payment_method,
		 amount_cents, fee_cents, refund_cents, booked_at, waitlisted_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`
	result, err := tx.ExecContext(ctx, q,
		res.SessionID, res.MemberID, res.Status, res.Position, nullableID(res.AccountID),
		res.PaymentMethod, res.AmountCents, res.FeeCents, res.RefundCents,
		res.BookedAt.UTC(), nullableTime(res.WaitlistedAt))
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	return nil
}

// UpdateTx writes every mutable reservation field within an existing
// transaction.  The caller must commit or roll back.
func (r *ReservationRepo) UpdateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `UPDATE reservations SET
		status = ?, position = ?, amount_cents = ?, fee_cents = ?, refund_cents = ?,
		waitlisted_at = ?, promoted_at = ?, checked_in_at = ?, cancelled_at = ?, completed_at = ?
		WHERE id = ?`
	_, err := tx.ExecContext(ctx, q,
		res.Status, res.Position, res.AmountCents, res.FeeCents, res.RefundCents,
		nullableTime(res.WaitlistedAt), nullableTime(res.PromotedAt), nullableTime(res.CheckedInAt),
		nullableTime(res.CancelledAt), nullableTime(res.CompletedAt), res.ID)
	return err
}
