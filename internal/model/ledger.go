package model

import "time"

// Ledger account sources.  MEMBERSHIP accounts come from a plan's class
// allotment; PACKAGE accounts come from a purchased class pack.
const (
	SourceMembership = "MEMBERSHIP"
	SourcePackage    = "PACKAGE"
)

// Ledger entry types recorded for every credit movement.
const (
	EntryDebit  = "DEBIT"
	EntryCredit = "CREDIT"
	EntryFee    = "FEE"
)

// LedgerAccount is a member's pool of usable class credits tied to a
// membership plan or a purchased package.  Consumption never exceeds
// granted + rollover, and reversal never drives consumed below zero.  The
// balance is mutated exclusively by the reservation engine through the
// ledger's debit and credit operations.
//
// Fields:
//  ID        – primary key identifier.
//  MemberID  – member owning the account.
//  Source    – MEMBERSHIP or PACKAGE.
//  Granted   – credits granted for the current period.
//  Rollover  – credits carried over from the previous period.
//  Consumed  – credits consumed so far.
//  ExpiresAt – when unused credits expire (nullable = never).
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type LedgerAccount struct {
	ID        uint64     // ledger_accounts.id
	MemberID  uint64     // ledger_accounts.member_id
	Source    string     // ledger_accounts.source
	Granted   uint32     // ledger_accounts.granted
	Rollover  uint32     // ledger_accounts.rollover
	Consumed  uint32     // ledger_accounts.consumed
	ExpiresAt *time.Time // ledger_accounts.expires_at (nullable)
	CreatedAt time.Time  // ledger_accounts.created_at
	UpdatedAt time.Time  // ledger_accounts.updated_at
}

// Remaining returns the number of credits still usable on the account.
func (a *LedgerAccount) Remaining() uint32 {
	total := a.Granted + a.Rollover
	if a.Consumed >= total {
		return 0
	}
	return total - a.Consumed
}

// Expired reports whether the account's credits have expired as of now.
func (a *LedgerAccount) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}

// LedgerEntry is the audit record written for every debit, credit or fee
// against a ledger account.  Entries are append-only.  The idempotency key
// lets a retried transition be detected downstream.
type LedgerEntry struct {
	ID             uint64    // ledger_entries.id
	AccountID      uint64    // ledger_entries.account_id
	ReservationID  uint64    // ledger_entries.reservation_id
	Type           string    // ledger_entries.entry_type
	Credits        uint32    // ledger_entries.credits
	AmountCents    uint32    // ledger_entries.amount_cents
	IdempotencyKey string    // ledger_entries.idempotency_key
	CreatedAt      time.Time // ledger_entries.created_at
}
