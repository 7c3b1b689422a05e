package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/solacestudio/studio-reservation/internal/model"
)

// ErrAccountNotFound is returned when a ledger account does not exist.
var ErrAccountNotFound = errors.New("ledger account not found")

// LedgerRepo provides data access to the ledger_accounts and ledger_entries
// tables.  Accounts hold a member's usable class credits; entries are the
// append-only audit trail of every movement against them.
type LedgerRepo struct {
	db *sql.DB
}

// NewLedgerRepo returns a LedgerRepo bound to the given database.
func NewLedgerRepo(db *sql.DB) *LedgerRepo { return &LedgerRepo{db: db} }

const accountColumns = `id, member_id, source, granted, rollover, consumed,
	expires_at, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*model.LedgerAccount, error) {
	var a model.LedgerAccount
	var expiresAt sql.NullTime
	err := row.Scan(
		&a.ID, &a.MemberID, &a.Source, &a.Granted, &a.Rollover, &a.Consumed,
		&expiresAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ExpiresAt = nullTimePtr(expiresAt)
	return &a, nil
}

// GetByID returns one ledger account.  Missing rows map to
// ErrAccountNotFound.
func (r *LedgerRepo) GetByID(ctx context.Context, id uint64) (*model.LedgerAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM ledger_accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	return a, err
}

// ActiveAccountForMember picks the account to charge when a booking request
// names a payment method but no account.  Membership allotments are
// consumed before purchased packages, and within a source the account
// expiring soonest goes first (never-expiring accounts last).  Expired and
// exhausted accounts are skipped.  Returns ErrAccountNotFound when the
// member has no usable account.
func (r *LedgerRepo) ActiveAccountForMember(ctx context.Context, memberID uint64, now time.Time) (*model.LedgerAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM ledger_accounts
		 WHERE member_id = ?
		   AND (expires_at IS NULL OR expires_at > ?)
		   AND consumed < granted + rollover
		 ORDER BY FIELD(source, 'MEMBERSHIP', 'PACKAGE'),
		          expires_at IS NULL, expires_at ASC, id ASC
		 LIMIT 1`, memberID, now.UTC())
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	return a, err
}

// ListByMember returns all of a member's ledger accounts, newest first.
func (r *LedgerRepo) ListByMember(ctx context.Context, memberID uint64) ([]*model.LedgerAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM ledger_accounts
		 WHERE member_id = ? ORDER BY id DESC`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts := make([]*model.LedgerAccount, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Create inserts a new account (a credit grant by staff) and populates the
// generated id and timestamps on the record.
func (r *LedgerRepo) Create(ctx context.Context, a *model.LedgerAccount) error {
	const q = `INSERT INTO ledger_accounts
		(member_id, source, granted, rollover, consumed, expires_at)
		VALUES (?,?,?,?,?,?)`
	result, err := r.db.ExecContext(ctx, q,
		a.MemberID, a.Source, a.Granted, a.Rollover, a.Consumed, nullableTime(a.ExpiresAt))
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM ledger_accounts WHERE id = ?`, a.ID)
	stored, err := scanAccount(row)
	if err != nil {
		return err
	}
	*a = *stored
	return nil
}

// UpdateTx writes the account's mutable balance fields within an existing
// transaction.  The caller must commit or roll back.
func (r *LedgerRepo) UpdateTx(ctx context.Context, tx *sql.Tx, a *model.LedgerAccount) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE ledger_accounts SET granted = ?, rollover = ?, consumed = ? WHERE id = ?`,
		a.Granted, a.Rollover, a.Consumed, a.ID)
	return err
}

// InsertEntryTx appends a ledger entry within an existing transaction and
// populates the generated id.  The caller must commit or roll back.
func (r *LedgerRepo) InsertEntryTx(ctx context.Context, tx *sql.Tx, e *model.LedgerEntry) error {
	const q = `INSERT INTO ledger_entries
		(account_id, reservation_id, entry_type, credits, amount_cents, idempotency_key, created_at)
		VALUES (?,?,?,?,?,?,?)`
	result, err := tx.ExecContext(ctx, q,
		e.AccountID, e.ReservationID, e.Type, e.Credits, e.AmountCents,
		e.IdempotencyKey, e.CreatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// EntriesByReservation returns every ledger entry written for a
// reservation, oldest first.
func (r *LedgerRepo) EntriesByReservation(ctx context.Context, reservationID uint64) ([]*model.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, account_id, reservation_id, entry_type, credits, amount_cents,
		        idempotency_key, created_at
		 FROM ledger_entries WHERE reservation_id = ? ORDER BY id ASC`, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]*model.LedgerEntry, 0)
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.ReservationID, &e.Type,
			&e.Credits, &e.AmountCents, &e.IdempotencyKey, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
