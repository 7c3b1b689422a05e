// Package booking implements the class reservation and capacity-management
// core: seat confirmation and waitlisting under per-session exclusion,
// credit accounting, cancellation classification and synchronous waitlist
// promotion.  The package owns no I/O of its own; persistence, time and
// event delivery are supplied through the Store, Clock and EventSink
// contracts defined here.
package booking

import "errors"

// Sentinel errors returned by the reservation core.  Handlers compare with
// errors.Is and translate into HTTP statuses.
var (
	// ErrValidation is returned for malformed input.  Validation failures
	// are rejected before any lock is taken.
	ErrValidation = errors.New("invalid input")

	// ErrSessionNotFound is returned when no session exists for the id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrReservationNotFound is returned when no reservation exists for the id.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrAccountNotFound is returned when a referenced ledger account does
	// not exist or does not belong to the booking member.
	ErrAccountNotFound = errors.New("ledger account not found")

	// ErrSessionInactive is returned when booking into a deactivated session.
	ErrSessionInactive = errors.New("session is not active")

	// ErrSessionStarted is returned when booking into a session whose start
	// time has already passed.
	ErrSessionStarted = errors.New("session already started")

	// ErrDuplicateBooking is returned when the member already holds a
	// non-terminal reservation for the session.
	ErrDuplicateBooking = errors.New("duplicate booking")

	// ErrCapacityExceeded is returned when both the confirmed seats and the
	// waitlist are full.
	ErrCapacityExceeded = errors.New("session and waitlist are full")

	// ErrInsufficientCredit is returned when a ledger debit would exceed the
	// account's usable balance or the account has expired.
	ErrInsufficientCredit = errors.New("insufficient credit")

	// ErrInvalidTransition is returned when an operation is not legal from
	// the reservation's current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrBusy is returned when a session or account lock could not be
	// acquired within the configured wait.  The operation may be retried.
	ErrBusy = errors.New("resource busy, retry later")

	// ErrOverRefund signals an attempt to credit more than was consumed.
	// The credit is clamped; the condition is a programming-invariant
	// violation and is logged as a defect wherever it surfaces.
	ErrOverRefund = errors.New("credit exceeds prior consumption")
)
