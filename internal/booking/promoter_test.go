package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solacestudio/studio-reservation/internal/model"
)

func promoterFixture(store *memStore) *WaitlistPromoter {
	tracker := NewCapacityTracker()
	return &WaitlistPromoter{store: store, tracker: tracker, ledger: NewLedger(time.Second)}
}

func TestPromote_EmptyWaitlist(t *testing.T) {
	store := newMemStore()
	sess := testSession(1, 1, 2)
	store.addSession(sess)
	p := promoterFixture(store)

	promo, err := p.Promote(context.Background(), sess, 1, baseTime)
	require.NoError(t, err)
	assert.Nil(t, promo)
}

func TestPromote_SkipsStaleEntries(t *testing.T) {
	store := newMemStore()
	sess := testSession(1, 1, 2)
	store.addSession(sess)
	p := promoterFixture(store)

	// First queue entry was cancelled out from under the tracker; the second
	// is live.
	wlAt := baseTime
	store.reservations[1] = &model.Reservation{ID: 1, SessionID: 1, MemberID: 1, Status: model.StatusCancelled, BookedAt: baseTime, WaitlistedAt: &wlAt}
	store.reservations[2] = &model.Reservation{ID: 2, SessionID: 1, MemberID: 2, Status: model.StatusWaitlisted, BookedAt: baseTime, WaitlistedAt: &wlAt, PaymentMethod: model.PayComplimentary}
	store.nextID = 2
	p.tracker.Enqueue(1, 1, 1, 1, baseTime)
	p.tracker.Enqueue(1, 2, 2, 2, baseTime.Add(time.Second))

	promo, err := p.Promote(context.Background(), sess, 1, baseTime.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, promo)
	assert.Equal(t, uint64(2), promo.res.ID)
	assert.Equal(t, model.StatusConfirmed, promo.res.Status)
	assert.Equal(t, uint32(1), promo.res.Position)
	assert.Nil(t, promo.acct)
	assert.Zero(t, promo.heldAccount)
}

func TestPromote_DropInChargedAtPromotion(t *testing.T) {
	store := newMemStore()
	sess := testSession(1, 1, 2)
	store.addSession(sess)
	p := promoterFixture(store)

	wlAt := baseTime
	store.reservations[1] = &model.Reservation{ID: 1, SessionID: 1, MemberID: 1, Status: model.StatusWaitlisted, BookedAt: baseTime, WaitlistedAt: &wlAt, PaymentMethod: model.PayDropIn}
	store.nextID = 1
	p.tracker.Enqueue(1, 1, 1, 1, baseTime)

	promo, err := p.Promote(context.Background(), sess, 1, baseTime.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, promo)
	assert.Equal(t, sess.DropInPriceCents, promo.res.AmountCents)
}

func TestPromote_SkipsForeignAccountReference(t *testing.T) {
	store := newMemStore()
	sess := testSession(1, 1, 2)
	store.addSession(sess)
	store.addAccount(testAccount(5, 9, 3)) // belongs to member 9
	p := promoterFixture(store)

	// A stale row pointing at another member's account must never be
	// debited, no matter how it got persisted.
	wlAt := baseTime
	acctID := uint64(5)
	store.reservations[1] = &model.Reservation{ID: 1, SessionID: 1, MemberID: 8, Status: model.StatusWaitlisted, AccountID: &acctID, BookedAt: baseTime, WaitlistedAt: &wlAt, PaymentMethod: model.PayMembership}
	store.nextID = 1
	p.tracker.Enqueue(1, 1, 8, 1, baseTime)

	promo, err := p.Promote(context.Background(), sess, 1, baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, promo)
	assert.Equal(t, uint32(0), store.account(5).Consumed)

	// The skip released the account lock.
	require.NoError(t, p.ledger.Lock(context.Background(), acctID))
	p.ledger.Unlock(acctID)
}

func TestPromote_DebitsAndHoldsAccountLock(t *testing.T) {
	store := newMemStore()
	sess := testSession(1, 1, 2)
	store.addSession(sess)
	store.addAccount(testAccount(5, 1, 2))
	p := promoterFixture(store)

	wlAt := baseTime
	acctID := uint64(5)
	store.reservations[1] = &model.Reservation{ID: 1, SessionID: 1, MemberID: 1, Status: model.StatusWaitlisted, AccountID: &acctID, BookedAt: baseTime, WaitlistedAt: &wlAt, PaymentMethod: model.PayMembership}
	store.nextID = 1
	p.tracker.Enqueue(1, 1, 1, 1, baseTime)

	promo, err := p.Promote(context.Background(), sess, 1, baseTime.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, promo)
	require.NotNil(t, promo.acct)
	assert.Equal(t, uint32(1), promo.acct.Consumed)
	assert.Equal(t, model.EntryDebit, promo.entry.Type)
	assert.Equal(t, acctID, promo.heldAccount)

	// The account lock is handed to the caller still held; a second Lock
	// must fail until it is released.
	p.ledger.locks.wait = 20 * time.Millisecond
	err = p.ledger.Lock(context.Background(), acctID)
	assert.ErrorIs(t, err, ErrBusy)
	p.ledger.Unlock(promo.heldAccount)
}
