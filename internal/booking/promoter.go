package booking

import (
	"context"
	"errors"
	"time"

	"github.com/solacestudio/studio-reservation/internal/model"
)

// WaitlistPromoter fills a freed confirmed seat from the session's
// waitlist.  Promotion is strictly FIFO by waitlist-added time; candidates
// whose credit debit fails (expired or exhausted since waitlisting) are
// skipped and stay in the queue.  At most one reservation is promoted per
// freed seat, and promotion always runs synchronously inside the unit of
// work of the cancellation that freed the seat, so a freed seat can never
// be claimed twice.
type WaitlistPromoter struct {
	store   Store
	tracker *CapacityTracker
	ledger  *Ledger
}

// promotion is the planned outcome of a successful pick: the promoted
// reservation, the debited account with its entry (nil for drop-in and
// complimentary bookings), the queue entries behind the promoted one with
// their compacted positions, and the account lock still held for the
// caller to release after persisting.
type promotion struct {
	res         *model.Reservation
	acct        *model.LedgerAccount
	entry       *model.LedgerEntry
	reseated    []*model.Reservation
	heldAccount uint64
}

// Promote picks the next eligible waitlisted reservation for the freed seat
// ordinal.  It returns nil when no candidate is eligible, leaving the seat
// empty until the next booking request claims it directly.  The caller must
// hold the session lock and must persist the returned records before
// touching the tracker.
func (p *WaitlistPromoter) Promote(ctx context.Context, sess *model.ClassSession, freedPosition uint32, now time.Time) (*promotion, error) {
	for _, entry := range p.tracker.Waitlist(sess.ID) {
		res, err := p.store.Reservation(ctx, entry.ReservationID)
		if err != nil {
			if errors.Is(err, ErrReservationNotFound) {
				continue
			}
			return nil, err
		}
		if res.Status != model.StatusWaitlisted {
			continue
		}

		var acct *model.LedgerAccount
		var ledEntry *model.LedgerEntry
		var held uint64
		if res.AccountID != nil {
			id := *res.AccountID
			if err := p.ledger.Lock(ctx, id); err != nil {
				if errors.Is(err, ErrBusy) {
					// Account contended elsewhere; treat like a failed
					// debit and move on rather than stalling the cancel.
					continue
				}
				return nil, err
			}
			acct, err = p.store.Account(ctx, id)
			if err != nil {
				p.ledger.Unlock(id)
				if errors.Is(err, ErrAccountNotFound) {
					continue
				}
				return nil, err
			}
			if acct.MemberID != res.MemberID {
				// Never spend credits from an account the reservation's
				// member does not own.
				p.ledger.Unlock(id)
				continue
			}
			ledEntry, err = p.ledger.Debit(acct, res.ID, 1, now)
			if err != nil {
				p.ledger.Unlock(id)
				continue
			}
			held = id
		}

		res.Status = model.StatusConfirmed
		res.Position = freedPosition
		promotedAt := now
		res.PromotedAt = &promotedAt
		res.UpdatedAt = now
		if res.PaymentMethod == model.PayDropIn {
			// Drop-ins are charged at confirmation, not at waitlisting.
			res.AmountCents = sess.DropInPriceCents
		}
		reseated, err := reseatBehind(ctx, p.store, p.tracker, sess.ID, res.ID, now)
		if err != nil {
			if held != 0 {
				p.ledger.Unlock(held)
			}
			return nil, err
		}
		return &promotion{res: res, acct: acct, entry: ledEntry, reseated: reseated, heldAccount: held}, nil
	}
	return nil, nil
}
