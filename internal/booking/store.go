package booking

import (
	"context"

	"github.com/solacestudio/studio-reservation/internal/model"
)

// Store is the persistence contract the core consumes.  Reads return the
// package's sentinel errors when a record is missing.  The two write methods
// must each be atomic: either every record passed in is persisted or none
// is, so a failed write never leaves partial state visible.  The engine
// holds the relevant session and account locks across every call, so
// implementations do not need their own optimistic retry loops.
type Store interface {
	// Session returns the session or ErrSessionNotFound.
	Session(ctx context.Context, id uint64) (*model.ClassSession, error)

	// Reservation returns the reservation or ErrReservationNotFound.
	Reservation(ctx context.Context, id uint64) (*model.Reservation, error)

	// ActiveReservation returns the member's non-terminal reservation for
	// the session, or (nil, nil) when there is none.
	ActiveReservation(ctx context.Context, memberID, sessionID uint64) (*model.Reservation, error)

	// OpenReservations returns every confirmed, checked-in or waitlisted
	// reservation for the session; used to hydrate the capacity tracker.
	OpenReservations(ctx context.Context, sessionID uint64) ([]*model.Reservation, error)

	// Account returns the ledger account or ErrAccountNotFound.
	Account(ctx context.Context, id uint64) (*model.LedgerAccount, error)

	// CreateReservation persists a new reservation, assigns its ID, and in
	// the same transaction writes the updated account and its debit entry
	// when non-nil.  The entry's reservation id is filled in after the
	// insert.
	CreateReservation(ctx context.Context, res *model.Reservation, acct *model.LedgerAccount, entry *model.LedgerEntry) error

	// ApplyTransition persists every changed reservation, account and
	// ledger entry of one state transition in a single transaction.
	ApplyTransition(ctx context.Context, res []*model.Reservation, accts []*model.LedgerAccount, entries []*model.LedgerEntry) error
}
