package model

import "time"

// ClassSession represents one scheduled, capacity-bounded occurrence of a
// studio class.  Sessions are created by staff scheduling and are read-only
// to the reservation core except for their derived occupancy counts.
//
// Fields:
//  ID                  – primary key identifier.
//  Name                – class name shown on the schedule (e.g. "Lagree Fitness").
//  ClassType           – category of the class.
//  Room                – studio room where the session takes place.
//  StartsAt            – when the session begins (UTC).
//  EndsAt              – when the session ends (must be after StartsAt).
//  MaxCapacity         – maximum number of confirmed seats (>= 1).
//  WaitlistCapacity    – maximum number of waitlisted reservations (>= 0).
//  CancelDeadlineHours – hours before StartsAt after which a cancellation
//                        counts as late.
//  LateFeeCents        – fee assessed on a late cancellation, in cents.
//  DropInPriceCents    – price of a single drop-in booking, in cents.
//  IsActive            – whether the session accepts bookings.
//  CreatedAt           – creation timestamp.
//  UpdatedAt           – last update timestamp.
type ClassSession struct {
	ID                  uint64    // class_sessions.id
	Name                string    // class_sessions.name
	ClassType           string    // class_sessions.class_type
	Room                string    // class_sessions.room
	StartsAt            time.Time // class_sessions.starts_at
	EndsAt              time.Time // class_sessions.ends_at
	MaxCapacity         uint32    // class_sessions.max_capacity
	WaitlistCapacity    uint32    // class_sessions.waitlist_capacity
	CancelDeadlineHours uint32    // class_sessions.cancel_deadline_hours
	LateFeeCents        uint32    // class_sessions.late_fee_cents
	DropInPriceCents    uint32    // class_sessions.drop_in_price_cents
	IsActive            bool      // class_sessions.is_active
	CreatedAt           time.Time // class_sessions.created_at
	UpdatedAt           time.Time // class_sessions.updated_at
}

// CancelDeadline returns the instant after which a cancellation for this
// session is considered late.
func (s *ClassSession) CancelDeadline() time.Time {
	return s.StartsAt.Add(-time.Duration(s.CancelDeadlineHours) * time.Hour)
}
