package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solacestudio/studio-reservation/internal/model"
)

func TestBook_ConfirmedDebitsOneCredit(t *testing.T) {
	store := newMemStore()
	store.addSession(testSession(1, 10, 5))
	store.addAccount(testAccount(1, 7, 3))
	engine, sink := newTestEngine(store)

	res, err := engine.Book(context.Background(), 7, 1, membership(1), baseTime)
	require.NoError(t, err)

	assert.Equal(t, model.StatusConfirmed, res.Status)
	assert.Equal(t, uint32(1), res.Position)
	assert.Equal(t, uint32(1), store.account(1).Consumed)

	entries := store.entriesFor(res.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, model.EntryDebit, entries[0].Type)
	assert.Equal(t, []string{EventReservationConfirmed}, sink.types())
}

func TestBook_DuplicateRejected(t *testing.T) {
	store := newMemStore()
	store.addSession(testSession(1, 10, 5))
	store.addAccount(testAccount(1, 7, 3))
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	_, err := engine.Book(ctx, 7, 1, membership(1), baseTime)
	require.NoError(t, err)
	_, err = engine.Book(ctx, 7, 1, membership(1), baseTime.Add(time.Minute))
	assert.ErrorIs(t, err, ErrDuplicateBooking)
}

func TestBook_WaitlistedWithoutDebit(t *testing.T) {
	store := newMemStore()
	store.addSession(testSession(1, 1, 2))
	store.addAccount(testAccount(1, 7, 3))
	store.addAccount(testAccount(2, 8, 3))
	engine, sink := newTestEngine(store)
	ctx := context.Background()

	_, err := engine.Book(ctx, 7, 1, membership(1), baseTime)
	require.NoError(t, err)

	res, err := engine.Book(ctx, 8, 1, membership(2), baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaitlisted, res.Status)
	assert.Equal(t, uint32(1), res.Position)
	require.NotNil(t, res.WaitlistedAt)
	// Credits are consumed at promotion, not at waitlisting.
	assert.Equal(t, uint32(0), store.account(2).Consumed)
	assert.Empty(t, store.entriesFor(res.ID))
	// No event for joining the waitlist.
	assert.Equal(t, []string{EventReservationConfirmed}, sink.types())
}

func TestBook_WaitlistFull(t *testing.T) {
	store := newMemStore()
	store.addSession(testSession(1, 1, 1))
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	_, err := engine.Book(ctx, 7, 1, CreditSource{Method: model.PayDropIn}, baseTime)
	require.NoError(t, err)
	_, err = engine.Book(ctx, 8, 1, CreditSource{Method: model.PayDropIn}, baseTime)
	require.NoError(t, err)
	_, err = engine.Book(ctx, 9, 1, CreditSource{Method: model.PayDropIn}, baseTime)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestBook_InsufficientCreditOnSecondSession(t *testing.T) {
	store := newMemStore()
	store.addSession(testSession(1, 10, 0))
	sess2 := testSession(2, 10, 0)
	store.addSession(sess2)
	store.addAccount(testAccount(1, 7, 1))
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	_, err := engine.Book(ctx, 7, 1, membership(1), baseTime)
	require.NoError(t, err)
	_, err = engine.Book(ctx, 7, 2, membership(1), baseTime)
	assert.ErrorIs(t, err, ErrInsufficientCredit)
	// The failed debit must not have claimed a seat.
	confirmed, _, err := engine.Availability(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), confirmed)
}

func TestBook_SessionGuards(t *testing.T) {
	store := newMemStore()
	inactive := testSession(1, 10, 5)
	inactive.IsActive = false
	store.addSession(inactive)
	store.addSession(testSession(2, 10, 5))
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	_, err := engine.Book(ctx, 7, 1, CreditSource{Method: model.PayDropIn}, baseTime)
	assert.ErrorIs(t, err, ErrSessionInactive)

	started := testSession(2, 10, 5)
	_, err = engine.Book(ctx, 7, 2, CreditSource{Method: model.PayDropIn}, started.StartsAt)
	assert.ErrorIs(t, err, ErrSessionStarted)

	_, err = engine.Book(ctx, 7, 99, CreditSource{Method: model.PayDropIn}, baseTime)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestBook_ValidatesCreditSource(t *testing.T) {
	store := newMemStore()
	store.addSession(testSession(1, 10, 5))
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	_, err := engine.Book(ctx, 7, 1, CreditSource{Method: model.PayMembership}, baseTime)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = engine.Book(ctx, 7, 1, CreditSource{Method: model.PayDropIn, AccountID: 1}, baseTime)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = engine.Book(ctx, 7, 1, CreditSource{Method: "CASH"}, baseTime)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBook_RejectsForeignAccount(t *testing.T) {
	store := newMemStore()
	store.addSession(testSession(1, 10, 5))
	store.addAccount(testAccount(1, 8, 3)) // belongs to member 8
	engine, _ := newTestEngine(store)

	_, err := engine.Book(context.Background(), 7, 1, membership(1), baseTime)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestBook_RejectsForeignAccountOnWaitlist(t *testing.T) {
	store := newMemStore()
	store.addSession(testSession(1, 1, 2))
	store.addAccount(testAccount(2, 9, 3)) // belongs to member 9
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	_, err := engine.Book(ctx, 7, 1, CreditSource{Method: model.PayDropIn}, baseTime)
	require.NoError(t, err)

	// The session is full, so member 8 would be waitlisted; the account
	// reference must still be theirs.
	_, err = engine.Book(ctx, 8, 1, membership(2), baseTime.Add(time.Minute))
	assert.ErrorIs(t, err, ErrAccountNotFound)
	_, err = engine.Book(ctx, 8, 1, membership(99), baseTime.Add(time.Minute))
	assert.ErrorIs(t, err, ErrAccountNotFound)

	// The rejected bookings left no queue entry and touched no credits.
	_, waitlisted, err := engine.Availability(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), waitlisted)
	assert.Equal(t, uint32(0), store.account(2).Consumed)
}

func TestCancel_OnTimeReversesCredit(t *testing.T) {
	store := newMemStore()
	store.addSession(testSession(1, 10, 5))
	store.addAccount(testAccount(1, 7, 3))
	engine, sink := newTestEngine(store)
	ctx := context.Background()

	res, err := engine.Book(ctx, 7, 1, membership(1), baseTime)
	require.NoError(t, err)
	require.Equal(t, uint32(1), store.account(1).Consumed)

	cancelled, err := engine.Cancel(ctx, res.ID, baseTime.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Equal(t, uint32(0), cancelled.FeeCents)
	// Round trip: the account balance is exactly where it started.
	assert.Equal(t, uint32(0), store.account(1).Consumed)

	entries := store.entriesFor(res.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, model.EntryDebit, entries[0].Type)
	assert.Equal(t, model.EntryCredit, entries[1].Type)
	assert.Equal(t, []string{EventReservationConfirmed, EventSeatFreed, EventReservationCancelled}, sink.types())
}

func TestCancel_LateForfeitsCreditAndAssessesFee(t *testing.T) {
	store := newMemStore()
	sess := testSession(1, 10, 5)
	store.addSession(sess)
	store.addAccount(testAccount(1, 7, 3))
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	res, err := engine.Book(ctx, 7, 1, membership(1), baseTime)
	require.NoError(t, err)

	lateAt := sess.StartsAt.Add(-time.Hour) // one hour past the 2h deadline
	cancelled, err := engine.Cancel(ctx, res.ID, lateAt)
	require.NoError(t, err)

	assert.Equal(t, model.StatusLateCancelled, cancelled.Status)
	assert.Equal(t, sess.LateFeeCents, cancelled.FeeCents)
	assert.Equal(t, uint32(0), cancelled.RefundCents)
	// The consumed credit stays spent.
	assert.Equal(t, uint32(1), store.account(1).Consumed)

	entries := store.entriesFor(res.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, model.EntryFee, entries[1].Type)
	assert.Equal(t, sess.LateFeeCents, entries[1].AmountCents)

	// The freed seat is bookable again even after a late cancel.
	confirmed, _, err := engine.Availability(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), confirmed)
}

func TestCancel_DropInRefund(t *testing.T) {
	store := newMemStore()
	sess := testSession(1, 10, 5)
	store.addSession(sess)
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	res, err := engine.Book(ctx, 7, 1, CreditSource{Method: model.PayDropIn}, baseTime)
	require.NoError(t, err)
	assert.Equal(t, sess.DropInPriceCents, res.AmountCents)

	cancelled, err := engine.Cancel(ctx, res.ID, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, sess.DropInPriceCents, cancelled.RefundCents)
	assert.Empty(t, store.entriesFor(res.ID))
}

func TestCancel_TwiceIsInvalid(t *testing.T) {
	store := newMemStore()
	store.addSession(testSession(1, 10, 5))
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	res, err := engine.Book(ctx, 7, 1, CreditSource{Method: model.PayDropIn}, baseTime)
	require.NoError(t, err)
	_, err = engine.Cancel(ctx, res.ID, baseTime.Add(time.Hour))
	require.NoError(t, err)
	_, err = engine.Cancel(ctx, res.ID, baseTime.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancel_CheckedInRejected(t *testing.T) {
	store := newMemStore()
	store.addSession(testSession(1, 10, 5))
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	res, err := engine.Book(ctx, 7, 1, CreditSource{Method: model.PayDropIn}, baseTime)
	require.NoError(t, err)
	_, err = engine.CheckIn(ctx, res.ID, baseTime.Add(time.Hour))
	require.NoError(t, err)
	_, err = engine.Cancel(ctx, res.ID, baseTime.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancel_WaitlistedCompactsQueue(t *testing.T) {
	store := newMemStore()
	store.addSession(testSession(1, 1, 3))
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	_, err := engine.Book(ctx, 1, 1, CreditSource{Method: model.PayDropIn}, baseTime)
	require.NoError(t, err)
	w1, err := engine.Book(ctx, 2, 1, CreditSource{Method: model.PayDropIn}, baseTime.Add(time.Second))
	require.NoError(t, err)
	w2, err := engine.Book(ctx, 3, 1, CreditSource{Method: model.PayDropIn}, baseTime.Add(2*time.Second))
	require.NoError(t, err)
	require.Equal(t, uint32(2), w2.Position)

	cancelled, err := engine.Cancel(ctx, w1.ID, baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	// Waitlist cancellations are always on time and carry no fee.
	assert.Equal(t, uint32(0), cancelled.FeeCents)

	// The entry behind the removed one moved up, in memory and in the store.
	assert.Equal(t, uint32(1), store.reservation(w2.ID).Position)
	_, waitlisted, err := engine.Availability(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), waitlisted)
}

func TestCancel_PromotesFirstInQueue(t *testing.T) {
	store := newMemStore()
	sess := testSession(1, 1, 2)
	store.addSession(sess)
	store.addAccount(testAccount(1, 1, 3))
	store.addAccount(testAccount(2, 2, 3))
	store.addAccount(testAccount(3, 3, 3))
	engine, sink := newTestEngine(store)
	ctx := context.Background()

	seated, err := engine.Book(ctx, 1, 1, membership(1), baseTime)
	require.NoError(t, err)
	w1, err := engine.Book(ctx, 2, 1, membership(2), baseTime.Add(time.Second))
	require.NoError(t, err)
	w2, err := engine.Book(ctx, 3, 1, membership(3), baseTime.Add(2*time.Second))
	require.NoError(t, err)

	_, err = engine.Cancel(ctx, seated.ID, baseTime.Add(time.Minute))
	require.NoError(t, err)

	promoted := store.reservation(w1.ID)
	assert.Equal(t, model.StatusConfirmed, promoted.Status)
	assert.Equal(t, uint32(1), promoted.Position)
	require.NotNil(t, promoted.PromotedAt)
	// The promoted member's credit is consumed at promotion time.
	assert.Equal(t, uint32(1), store.account(2).Consumed)
	debits := store.entriesFor(w1.ID)
	require.Len(t, debits, 1)
	assert.Equal(t, model.EntryDebit, debits[0].Type)

	// Whoever was behind moves to the head of the queue.
	assert.Equal(t, uint32(1), store.reservation(w2.ID).Position)

	// Canceller got their credit back; the books balance.
	assert.Equal(t, uint32(0), store.account(1).Consumed)

	assert.Equal(t, []string{
		EventReservationConfirmed,
		EventSeatFreed,
		EventReservationCancelled,
		EventReservationPromoted,
	}, sink.types())
}

func TestCancel_PromotionSkipsExhaustedAccount(t *testing.T) {
	store := newMemStore()
	store.addSession(testSession(1, 1, 2))
	store.addAccount(testAccount(1, 1, 3))
	store.addAccount(testAccount(2, 2, 0)) // no credits left by promotion time
	store.addAccount(testAccount(3, 3, 3))
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	seated, err := engine.Book(ctx, 1, 1, membership(1), baseTime)
	require.NoError(t, err)
	w1, err := engine.Book(ctx, 2, 1, membership(2), baseTime.Add(time.Second))
	require.NoError(t, err)
	w2, err := engine.Book(ctx, 3, 1, membership(3), baseTime.Add(2*time.Second))
	require.NoError(t, err)

	_, err = engine.Cancel(ctx, seated.ID, baseTime.Add(time.Minute))
	require.NoError(t, err)

	// The broke candidate is skipped but keeps their place in line.
	skipped := store.reservation(w1.ID)
	assert.Equal(t, model.StatusWaitlisted, skipped.Status)
	assert.Equal(t, uint32(1), skipped.Position)

	promoted := store.reservation(w2.ID)
	assert.Equal(t, model.StatusConfirmed, promoted.Status)
	assert.Equal(t, uint32(1), store.account(3).Consumed)
}

func TestCancel_NoPromotionLeavesSeatOpen(t *testing.T) {
	store := newMemStore()
	store.addSession(testSession(1, 1, 2))
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	res, err := engine.Book(ctx, 1, 1, CreditSource{Method: model.PayDropIn}, baseTime)
	require.NoError(t, err)
	_, err = engine.Cancel(ctx, res.ID, baseTime.Add(time.Minute))
	require.NoError(t, err)

	confirmed, _, err := engine.Availability(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), confirmed)

	// The next booking claims the freed seat directly.
	next, err := engine.Book(ctx, 2, 1, CreditSource{Method: model.PayDropIn}, baseTime.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, next.Status)
	assert.Equal(t, uint32(1), next.Position)
}

func TestCheckIn_WithinGraceAndIdempotent(t *testing.T) {
	store := newMemStore()
	sess := testSession(1, 10, 5)
	store.addSession(sess)
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	res, err := engine.Book(ctx, 7, 1, CreditSource{Method: model.PayDropIn}, baseTime)
	require.NoError(t, err)

	within := sess.StartsAt.Add(10 * time.Minute)
	checked, err := engine.CheckIn(ctx, res.ID, within)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCheckedIn, checked.Status)
	require.NotNil(t, checked.CheckedInAt)

	// Repeating the call is a no-op, not an error.
	again, err := engine.CheckIn(ctx, res.ID, within.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCheckedIn, again.Status)
}

func TestCheckIn_AfterGraceRejected(t *testing.T) {
	store := newMemStore()
	sess := testSession(1, 10, 5)
	store.addSession(sess)
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	res, err := engine.Book(ctx, 7, 1, CreditSource{Method: model.PayDropIn}, baseTime)
	require.NoError(t, err)

	_, err = engine.CheckIn(ctx, res.ID, sess.StartsAt.Add(16*time.Minute))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkNoShow_OnlyAfterSessionEnds(t *testing.T) {
	store := newMemStore()
	sess := testSession(1, 10, 5)
	store.addSession(sess)
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	res, err := engine.Book(ctx, 7, 1, CreditSource{Method: model.PayDropIn}, baseTime)
	require.NoError(t, err)

	_, err = engine.MarkNoShow(ctx, res.ID, sess.StartsAt.Add(30*time.Minute))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	marked, err := engine.MarkNoShow(ctx, res.ID, sess.EndsAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, model.StatusNoShow, marked.Status)
}

func TestComplete_RequiresCheckIn(t *testing.T) {
	store := newMemStore()
	sess := testSession(1, 10, 5)
	store.addSession(sess)
	engine, _ := newTestEngine(store)
	ctx := context.Background()

	res, err := engine.Book(ctx, 7, 1, CreditSource{Method: model.PayDropIn}, baseTime)
	require.NoError(t, err)

	_, err = engine.Complete(ctx, res.ID, sess.EndsAt.Add(time.Minute))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = engine.CheckIn(ctx, res.ID, sess.StartsAt)
	require.NoError(t, err)
	done, err := engine.Complete(ctx, res.ID, sess.EndsAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
}

func TestBook_ConcurrentRespectsCapacity(t *testing.T) {
	store := newMemStore()
	store.addSession(testSession(1, 2, 0))
	engine, _ := newTestEngine(store)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Book(context.Background(), uint64(i+1), 1, CreditSource{Method: model.PayDropIn}, baseTime)
		}(i)
	}
	wg.Wait()

	var confirmed, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			confirmed++
		case errors.Is(err, ErrCapacityExceeded):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 2, confirmed)
	assert.Equal(t, 1, rejected)
}

func TestAvailability_HydratesFromStore(t *testing.T) {
	store := newMemStore()
	store.addSession(testSession(1, 10, 5))
	wlAt := baseTime
	store.reservations[1] = &model.Reservation{ID: 1, SessionID: 1, MemberID: 1, Status: model.StatusConfirmed, Position: 1, BookedAt: baseTime}
	store.reservations[2] = &model.Reservation{ID: 2, SessionID: 1, MemberID: 2, Status: model.StatusWaitlisted, Position: 1, BookedAt: baseTime, WaitlistedAt: &wlAt}
	store.nextID = 2
	engine, _ := newTestEngine(store)

	confirmed, waitlisted, err := engine.Availability(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), confirmed)
	assert.Equal(t, uint32(1), waitlisted)
}
