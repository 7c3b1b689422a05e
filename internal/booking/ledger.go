package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/solacestudio/studio-reservation/internal/model"
)

// Ledger performs credit accounting against member ledger accounts.  It owns
// the per-account exclusion scope: an account is only mutated between Lock
// and Unlock, which serializes debits and credits so the last credit on an
// account cannot be spent twice.  Debit and Credit mutate the account copy
// in memory and return the audit entry; persisting both is the caller's
// job, inside the same transaction as the reservation change that caused
// the movement.
type Ledger struct {
	locks *KeyedMutex
}

// NewLedger returns a Ledger whose account locks give up after lockWait.
func NewLedger(lockWait time.Duration) *Ledger {
	return &Ledger{locks: NewKeyedMutex(lockWait)}
}

// Lock acquires the exclusion scope for the account.  Returns ErrBusy on
// contention past the configured wait.
func (l *Ledger) Lock(ctx context.Context, accountID uint64) error {
	return l.locks.Lock(ctx, accountID)
}

// Unlock releases the account's exclusion scope.
func (l *Ledger) Unlock(accountID uint64) {
	l.locks.Unlock(accountID)
}

// Debit consumes credits from the account.  It fails with
// ErrInsufficientCredit when the account has expired as of now or when
// consumption would exceed granted + rollover.  The caller must hold the
// account lock.
func (l *Ledger) Debit(acct *model.LedgerAccount, reservationID uint64, credits uint32, now time.Time) (*model.LedgerEntry, error) {
	if acct.Expired(now) || acct.Remaining() < credits {
		return nil, ErrInsufficientCredit
	}
	acct.Consumed += credits
	acct.UpdatedAt = now
	return newLedgerEntry(acct.ID, reservationID, model.EntryDebit, credits, now), nil
}

// Credit reverses a prior debit.  Crediting more than was consumed clamps
// consumption at zero and returns ErrOverRefund alongside the entry for the
// clamped amount; that condition indicates a defect in the caller and must
// be logged, never retried.  The caller must hold the account lock.
func (l *Ledger) Credit(acct *model.LedgerAccount, reservationID uint64, credits uint32, now time.Time) (*model.LedgerEntry, error) {
	var overRefund error
	if credits > acct.Consumed {
		credits = acct.Consumed
		overRefund = ErrOverRefund
	}
	acct.Consumed -= credits
	acct.UpdatedAt = now
	return newLedgerEntry(acct.ID, reservationID, model.EntryCredit, credits, now), overRefund
}

func newLedgerEntry(accountID, reservationID uint64, typ string, credits uint32, now time.Time) *model.LedgerEntry {
	return &model.LedgerEntry{
		AccountID:      accountID,
		ReservationID:  reservationID,
		Type:           typ,
		Credits:        credits,
		IdempotencyKey: uuid.NewString(),
		CreatedAt:      now,
	}
}
