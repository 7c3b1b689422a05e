package model

import "time"

// Reservation statuses.  CHECKED_IN is a sub-state of CONFIRMED: the member
// holds a seat and has arrived.  CANCELLED, LATE_CANCELLED, NO_SHOW and
// COMPLETED are terminal; reservations are never deleted, only transitioned,
// so the table doubles as an audit trail.
const (
	StatusConfirmed     = "CONFIRMED"
	StatusWaitlisted    = "WAITLISTED"
	StatusCheckedIn     = "CHECKED_IN"
	StatusCancelled     = "CANCELLED"
	StatusLateCancelled = "LATE_CANCELLED"
	StatusNoShow        = "NO_SHOW"
	StatusCompleted     = "COMPLETED"
)

// Payment methods accepted for a booking.  MEMBERSHIP and PACKAGE consume a
// ledger credit; DROP_IN is paid directly; COMPLIMENTARY is free of charge.
const (
	PayMembership    = "MEMBERSHIP"
	PayPackage       = "PACKAGE"
	PayDropIn        = "DROP_IN"
	PayComplimentary = "COMPLIMENTARY"
)

// Reservation records one member's claim on a class session.  At most one
// non-terminal reservation may exist per (member, session) pair.  Position is
// the seat ordinal for confirmed reservations and the queue ordinal for
// waitlisted ones; it is unique within its status partition of a session.
//
// Fields:
//  ID            – primary key identifier.
//  SessionID     – session being reserved.
//  MemberID      – member who made the reservation.
//  Status        – current state (see status constants above).
//  Position      – seat ordinal or waitlist ordinal, starting at 1.
//  AccountID     – ledger account debited for this reservation, if any.
//  PaymentMethod – how the seat was paid for.
//  AmountCents   – amount charged at booking time, in cents.
//  FeeCents      – late-cancellation fee assessed, in cents.
//  RefundCents   – amount refunded on an on-time cancellation, in cents.
//  BookedAt      – when the booking was accepted.
//  WaitlistedAt  – when the reservation entered the waitlist (nullable).
//  PromotedAt    – when the reservation was promoted off the waitlist.
//  CheckedInAt   – when the member checked in.
//  CancelledAt   – when the reservation was cancelled.
//  CompletedAt   – when the reservation was completed.
//  CreatedAt     – creation timestamp.
//  UpdatedAt     – last update timestamp.
type Reservation struct {
	ID            uint64     // reservations.id
	SessionID     uint64     // reservations.session_id
	MemberID      uint64     // reservations.member_id
	Status        string     // reservations.status
	Position      uint32     // reservations.position
	AccountID     *uint64    // reservations.account_id (nullable)
	PaymentMethod string     // reservations.payment_method
	AmountCents   uint32     // reservations.amount_cents
	FeeCents      uint32     // reservations.fee_cents
	RefundCents   uint32     // reservations.refund_cents
	BookedAt      time.Time  // reservations.booked_at
	WaitlistedAt  *time.Time // reservations.waitlisted_at (nullable)
	PromotedAt    *time.Time // reservations.promoted_at (nullable)
	CheckedInAt   *time.Time // reservations.checked_in_at (nullable)
	CancelledAt   *time.Time // reservations.cancelled_at (nullable)
	CompletedAt   *time.Time // reservations.completed_at (nullable)
	CreatedAt     time.Time  // reservations.created_at
	UpdatedAt     time.Time  // reservations.updated_at
}

// Terminal reports whether the reservation is in a terminal status.
func (r *Reservation) Terminal() bool {
	switch r.Status {
	case StatusCancelled, StatusLateCancelled, StatusNoShow, StatusCompleted:
		return true
	}
	return false
}

// Seated reports whether the reservation currently holds a confirmed seat.
func (r *Reservation) Seated() bool {
	return r.Status == StatusConfirmed || r.Status == StatusCheckedIn
}
