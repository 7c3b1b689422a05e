package booking

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/solacestudio/studio-reservation/internal/model"
)

// CreditSource says how a booking pays for its seat.  MEMBERSHIP and PACKAGE
// consume one credit from the referenced ledger account; DROP_IN charges the
// session's drop-in price; COMPLIMENTARY charges nothing.
type CreditSource struct {
	Method    string
	AccountID uint64
}

func (s CreditSource) usesLedger() bool {
	return s.Method == model.PayMembership || s.Method == model.PayPackage
}

func (s CreditSource) validate() error {
	switch s.Method {
	case model.PayMembership, model.PayPackage:
		if s.AccountID == 0 {
			return ErrValidation
		}
	case model.PayDropIn, model.PayComplimentary:
		if s.AccountID != 0 {
			return ErrValidation
		}
	default:
		return ErrValidation
	}
	return nil
}

// ReservationEngine is the state machine for reservations.  Every operation
// runs under the target session's exclusion scope, acquired with a bounded
// wait, and ledger accounts are locked after the session in a fixed order
// so concurrent book/cancel pairs cannot deadlock.  All writes of one
// transition are handed to the store in a single atomic call; the capacity
// tracker and event sink only see a transition after it has been persisted.
type ReservationEngine struct {
	store        Store
	tracker      *CapacityTracker
	ledger       *Ledger
	promoter     *WaitlistPromoter
	sink         EventSink
	sessionLocks *KeyedMutex
	checkInGrace time.Duration
}

// NewReservationEngine wires the engine with its capacity tracker, ledger
// and waitlist promoter.  lockWait bounds session/account lock acquisition;
// checkInGrace is how long after a session's start check-in is still
// accepted (defaults to 15 minutes).
func NewReservationEngine(store Store, sink EventSink, lockWait, checkInGrace time.Duration) *ReservationEngine {
	if checkInGrace <= 0 {
		checkInGrace = 15 * time.Minute
	}
	tracker := NewCapacityTracker()
	ledger := NewLedger(lockWait)
	e := &ReservationEngine{
		store:        store,
		tracker:      tracker,
		ledger:       ledger,
		sink:         sink,
		sessionLocks: NewKeyedMutex(lockWait),
		checkInGrace: checkInGrace,
	}
	e.promoter = &WaitlistPromoter{store: store, tracker: tracker, ledger: ledger}
	return e
}

// Book claims a seat in the session for the member.  The outcome is a
// CONFIRMED reservation when a seat is free (debiting one credit for ledger
// payment methods), a WAITLISTED reservation when only the waitlist has
// room (credits are consumed at promotion, not before), or an error:
// ErrCapacityExceeded, ErrDuplicateBooking, ErrInsufficientCredit,
// ErrSessionInactive, ErrSessionStarted, ErrBusy.
func (e *ReservationEngine) Book(ctx context.Context, memberID, sessionID uint64, src CreditSource, now time.Time) (*model.Reservation, error) {
	if memberID == 0 || sessionID == 0 {
		return nil, ErrValidation
	}
	if err := src.validate(); err != nil {
		return nil, err
	}
	if err := e.sessionLocks.Lock(ctx, sessionID); err != nil {
		return nil, err
	}
	defer e.sessionLocks.Unlock(sessionID)

	sess, err := e.store.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsActive {
		return nil, ErrSessionInactive
	}
	if !sess.StartsAt.After(now) {
		return nil, ErrSessionStarted
	}
	if err := e.hydrate(ctx, sessionID); err != nil {
		return nil, err
	}
	dup, err := e.store.ActiveReservation(ctx, memberID, sessionID)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return nil, ErrDuplicateBooking
	}

	outcome, pos := e.tracker.TryReserveSeat(sess)
	if outcome == SeatWaitlistFull {
		return nil, ErrCapacityExceeded
	}

	res := &model.Reservation{
		SessionID:     sessionID,
		MemberID:      memberID,
		Position:      pos,
		PaymentMethod: src.Method,
		BookedAt:      now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if src.usesLedger() {
		id := src.AccountID
		res.AccountID = &id
	}

	if outcome == SeatWaitlisted {
		if src.usesLedger() {
			// The debit happens at promotion, but the account must exist and
			// belong to the booking member already.
			acct, err := e.store.Account(ctx, src.AccountID)
			if err != nil {
				return nil, err
			}
			if acct.MemberID != memberID {
				return nil, ErrAccountNotFound
			}
		}
		res.Status = model.StatusWaitlisted
		wlAt := now
		res.WaitlistedAt = &wlAt
		if err := e.store.CreateReservation(ctx, res, nil, nil); err != nil {
			return nil, err
		}
		e.tracker.Enqueue(sessionID, res.ID, memberID, pos, wlAt)
		return res, nil
	}

	res.Status = model.StatusConfirmed
	if src.Method == model.PayDropIn {
		res.AmountCents = sess.DropInPriceCents
	}
	var acct *model.LedgerAccount
	var entry *model.LedgerEntry
	if src.usesLedger() {
		if err := e.ledger.Lock(ctx, src.AccountID); err != nil {
			return nil, err
		}
		defer e.ledger.Unlock(src.AccountID)
		acct, err = e.store.Account(ctx, src.AccountID)
		if err != nil {
			return nil, err
		}
		if acct.MemberID != memberID {
			return nil, ErrAccountNotFound
		}
		// The seat decision above was not recorded yet, so a failed debit
		// leaves nothing to roll back.
		entry, err = e.ledger.Debit(acct, 0, 1, now)
		if err != nil {
			return nil, err
		}
	}
	if err := e.store.CreateReservation(ctx, res, acct, entry); err != nil {
		return nil, err
	}
	e.tracker.Confirm(sessionID, res.ID, pos)
	e.emit(ctx, newEvent(EventReservationConfirmed, sessionID, res.ID, memberID, pos, now))
	return res, nil
}

// Cancel cancels a confirmed or waitlisted reservation.  Waitlisted
// cancellations are always on time: the entry is removed, the queue behind
// it compacts, no credits move.  Confirmed cancellations are classified
// against the session's deadline: on time reverses the credit (or refunds
// the drop-in amount) and frees the seat; late forfeits the credit and
// assesses the session's late fee, but still frees the seat so it does not
// sit empty.  Either way the freed seat is offered to the waitlist promoter
// within the same unit of work.
func (e *ReservationEngine) Cancel(ctx context.Context, reservationID uint64, now time.Time) (*model.Reservation, error) {
	if reservationID == 0 {
		return nil, ErrValidation
	}
	probe, err := e.store.Reservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := e.sessionLocks.Lock(ctx, probe.SessionID); err != nil {
		return nil, err
	}
	defer e.sessionLocks.Unlock(probe.SessionID)

	// Re-read under the session lock; the status may have changed while we
	// were waiting.
	res, err := e.store.Reservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := e.hydrate(ctx, res.SessionID); err != nil {
		return nil, err
	}

	switch res.Status {
	case model.StatusWaitlisted:
		return e.cancelWaitlisted(ctx, res, now)
	case model.StatusConfirmed:
		return e.cancelConfirmed(ctx, res, now)
	default:
		// Terminal statuses and CHECKED_IN (the member is in the room)
		// cannot be cancelled.
		return nil, ErrInvalidTransition
	}
}

func (e *ReservationEngine) cancelWaitlisted(ctx context.Context, res *model.Reservation, now time.Time) (*model.Reservation, error) {
	res.Status = model.StatusCancelled
	res.CancelledAt = &now
	res.UpdatedAt = now
	reseated, err := reseatBehind(ctx, e.store, e.tracker, res.SessionID, res.ID, now)
	if err != nil {
		return nil, err
	}
	changed := append([]*model.Reservation{res}, reseated...)
	if err := e.store.ApplyTransition(ctx, changed, nil, nil); err != nil {
		return nil, err
	}
	e.tracker.RemoveFromWaitlist(res.SessionID, res.ID)
	e.emit(ctx, newEvent(EventReservationCancelled, res.SessionID, res.ID, res.MemberID, res.Position, now))
	return res, nil
}

func (e *ReservationEngine) cancelConfirmed(ctx context.Context, res *model.Reservation, now time.Time) (*model.Reservation, error) {
	sess, err := e.store.Session(ctx, res.SessionID)
	if err != nil {
		return nil, err
	}

	var accts []*model.LedgerAccount
	var entries []*model.LedgerEntry
	var heldAccounts []uint64
	defer func() {
		for _, id := range heldAccounts {
			e.ledger.Unlock(id)
		}
	}()

	res.CancelledAt = &now
	res.UpdatedAt = now
	switch Classify(sess, now) {
	case OnTime:
		res.Status = model.StatusCancelled
		res.RefundCents = res.AmountCents
		if res.AccountID != nil {
			id := *res.AccountID
			if err := e.ledger.Lock(ctx, id); err != nil {
				return nil, err
			}
			heldAccounts = append(heldAccounts, id)
			acct, err := e.store.Account(ctx, id)
			if err != nil {
				return nil, err
			}
			entry, err := e.ledger.Credit(acct, res.ID, 1, now)
			if err != nil {
				// Clamped; the reversal itself must never exceed the debit.
				log.Printf("booking: defect: %v (account=%d reservation=%d)", err, id, res.ID)
			}
			accts = append(accts, acct)
			entries = append(entries, entry)
		}
	case Late:
		res.Status = model.StatusLateCancelled
		res.FeeCents = FeeFor(sess, Late)
		// The consumed credit is forfeit; the fee hits the member's payment
		// record, so the ledger balance is untouched.
		if res.AccountID != nil {
			entries = append(entries, &model.LedgerEntry{
				AccountID:      *res.AccountID,
				ReservationID:  res.ID,
				Type:           model.EntryFee,
				AmountCents:    res.FeeCents,
				IdempotencyKey: uuid.NewString(),
				CreatedAt:      now,
			})
		}
	}

	freedPos := res.Position
	promo, err := e.promoter.Promote(ctx, sess, freedPos, now)
	if err != nil {
		return nil, err
	}

	changed := []*model.Reservation{res}
	if promo != nil {
		if promo.heldAccount != 0 {
			heldAccounts = append(heldAccounts, promo.heldAccount)
		}
		changed = append(changed, promo.res)
		changed = append(changed, promo.reseated...)
		if promo.acct != nil {
			accts = append(accts, promo.acct)
			entries = append(entries, promo.entry)
		}
	}
	if err := e.store.ApplyTransition(ctx, changed, accts, entries); err != nil {
		return nil, err
	}

	e.tracker.ReleaseSeat(res.SessionID, res.ID)
	e.emit(ctx, newEvent(EventSeatFreed, sess.ID, res.ID, res.MemberID, freedPos, now))
	cancelled := newEvent(EventReservationCancelled, sess.ID, res.ID, res.MemberID, freedPos, now)
	cancelled.FeeCents = res.FeeCents
	cancelled.RefundCents = res.RefundCents
	e.emit(ctx, cancelled)
	if promo != nil {
		e.tracker.RemoveFromWaitlist(sess.ID, promo.res.ID)
		e.tracker.Confirm(sess.ID, promo.res.ID, freedPos)
		e.emit(ctx, newEvent(EventReservationPromoted, sess.ID, promo.res.ID, promo.res.MemberID, freedPos, now))
	}
	return res, nil
}

// CheckIn marks a confirmed reservation as checked in.  Allowed from
// booking time until checkInGrace past the session start.  Checking in an
// already checked-in reservation is a no-op, not an error.
func (e *ReservationEngine) CheckIn(ctx context.Context, reservationID uint64, now time.Time) (*model.Reservation, error) {
	if reservationID == 0 {
		return nil, ErrValidation
	}
	probe, err := e.store.Reservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := e.sessionLocks.Lock(ctx, probe.SessionID); err != nil {
		return nil, err
	}
	defer e.sessionLocks.Unlock(probe.SessionID)

	res, err := e.store.Reservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case model.StatusCheckedIn:
		return res, nil
	case model.StatusConfirmed:
	default:
		return nil, ErrInvalidTransition
	}
	sess, err := e.store.Session(ctx, res.SessionID)
	if err != nil {
		return nil, err
	}
	if now.After(sess.StartsAt.Add(e.checkInGrace)) {
		return nil, ErrInvalidTransition
	}
	res.Status = model.StatusCheckedIn
	res.CheckedInAt = &now
	res.UpdatedAt = now
	if err := e.store.ApplyTransition(ctx, []*model.Reservation{res}, nil, nil); err != nil {
		return nil, err
	}
	return res, nil
}

// MarkNoShow transitions a confirmed, never-checked-in reservation to
// NO_SHOW once the session has ended.  The consumed credit is forfeit and
// no promotion is triggered; the seat has already passed.
func (e *ReservationEngine) MarkNoShow(ctx context.Context, reservationID uint64, now time.Time) (*model.Reservation, error) {
	if reservationID == 0 {
		return nil, ErrValidation
	}
	probe, err := e.store.Reservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := e.sessionLocks.Lock(ctx, probe.SessionID); err != nil {
		return nil, err
	}
	defer e.sessionLocks.Unlock(probe.SessionID)

	res, err := e.store.Reservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.Status != model.StatusConfirmed {
		return nil, ErrInvalidTransition
	}
	sess, err := e.store.Session(ctx, res.SessionID)
	if err != nil {
		return nil, err
	}
	if now.Before(sess.EndsAt) {
		return nil, ErrInvalidTransition
	}
	res.Status = model.StatusNoShow
	res.UpdatedAt = now
	if err := e.store.ApplyTransition(ctx, []*model.Reservation{res}, nil, nil); err != nil {
		return nil, err
	}
	return res, nil
}

// Complete transitions a checked-in reservation to COMPLETED after the
// session has ended.
func (e *ReservationEngine) Complete(ctx context.Context, reservationID uint64, now time.Time) (*model.Reservation, error) {
	if reservationID == 0 {
		return nil, ErrValidation
	}
	probe, err := e.store.Reservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := e.sessionLocks.Lock(ctx, probe.SessionID); err != nil {
		return nil, err
	}
	defer e.sessionLocks.Unlock(probe.SessionID)

	res, err := e.store.Reservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.Status != model.StatusCheckedIn {
		return nil, ErrInvalidTransition
	}
	sess, err := e.store.Session(ctx, res.SessionID)
	if err != nil {
		return nil, err
	}
	if now.Before(sess.EndsAt) {
		return nil, ErrInvalidTransition
	}
	res.Status = model.StatusCompleted
	res.CompletedAt = &now
	res.UpdatedAt = now
	if err := e.store.ApplyTransition(ctx, []*model.Reservation{res}, nil, nil); err != nil {
		return nil, err
	}
	return res, nil
}

// Availability returns the session's confirmed-seat count and waitlist
// length, hydrating the tracker on first use.
func (e *ReservationEngine) Availability(ctx context.Context, sessionID uint64) (confirmed, waitlisted uint32, err error) {
	if err := e.sessionLocks.Lock(ctx, sessionID); err != nil {
		return 0, 0, err
	}
	defer e.sessionLocks.Unlock(sessionID)
	if err := e.hydrate(ctx, sessionID); err != nil {
		return 0, 0, err
	}
	confirmed, waitlisted = e.tracker.Counts(sessionID)
	return confirmed, waitlisted, nil
}

// Invalidate drops the cached occupancy for a session, e.g. after staff
// deactivates it.
func (e *ReservationEngine) Invalidate(sessionID uint64) {
	e.tracker.Forget(sessionID)
}

func (e *ReservationEngine) hydrate(ctx context.Context, sessionID uint64) error {
	if e.tracker.Loaded(sessionID) {
		return nil
	}
	open, err := e.store.OpenReservations(ctx, sessionID)
	if err != nil {
		return err
	}
	e.tracker.Load(sessionID, open)
	return nil
}

func (e *ReservationEngine) emit(ctx context.Context, ev Event) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Publish(ctx, ev); err != nil {
		log.Printf("booking: publish %s event failed: %v", ev.Type, err)
	}
}

// reseatBehind plans the position compaction that follows removing one
// entry from a session's waitlist: every entry behind the removed one moves
// up by one.  It returns the affected reservations with their new
// positions, ready to persist alongside the removal.
func reseatBehind(ctx context.Context, store Store, tracker *CapacityTracker, sessionID, removedID uint64, now time.Time) ([]*model.Reservation, error) {
	var out []*model.Reservation
	behind := false
	for _, entry := range tracker.Waitlist(sessionID) {
		if entry.ReservationID == removedID {
			behind = true
			continue
		}
		if !behind {
			continue
		}
		r, err := store.Reservation(ctx, entry.ReservationID)
		if err != nil {
			return nil, err
		}
		r.Position = entry.Position - 1
		r.UpdatedAt = now
		out = append(out, r)
	}
	return out, nil
}
