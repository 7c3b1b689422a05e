package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/solacestudio/studio-reservation/internal/booking"
	"github.com/solacestudio/studio-reservation/internal/model"
)

// SQLStore implements the reservation engine's Store contract on MySQL.  It
// composes the individual repositories and owns the transaction boundaries
// of the two write operations.  Repository not-found errors are translated
// to the booking package's sentinels so the engine never imports this
// package.
type SQLStore struct {
	db           *sql.DB
	sessions     *SessionRepo
	reservations *ReservationRepo
	ledger       *LedgerRepo
}

// NewSQLStore returns a store over the given repositories.
func NewSQLStore(db *sql.DB, sessions *SessionRepo, reservations *ReservationRepo, ledger *LedgerRepo) *SQLStore {
	return &SQLStore{db: db, sessions: sessions, reservations: reservations, ledger: ledger}
}

// Session returns the session or booking.ErrSessionNotFound.
func (s *SQLStore) Session(ctx context.Context, id uint64) (*model.ClassSession, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, booking.ErrSessionNotFound
	}
	return sess, err
}

// Reservation returns the reservation or booking.ErrReservationNotFound.
func (s *SQLStore) Reservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if errors.Is(err, ErrReservationNotFound) {
		return nil, booking.ErrReservationNotFound
	}
	return res, err
}

// ActiveReservation returns the member's non-terminal reservation for the
// session, or (nil, nil) when there is none.
func (s *SQLStore) ActiveReservation(ctx context.Context, memberID, sessionID uint64) (*model.Reservation, error) {
	return s.reservations.ActiveByMemberAndSession(ctx, memberID, sessionID)
}

// OpenReservations returns every seat-holding reservation for the session.
func (s *SQLStore) OpenReservations(ctx context.Context, sessionID uint64) ([]*model.Reservation, error) {
	return s.reservations.ListOpenBySession(ctx, sessionID)
}

// Account returns the ledger account or booking.ErrAccountNotFound.
func (s *SQLStore) Account(ctx context.Context, id uint64) (*model.LedgerAccount, error) {
	acct, err := s.ledger.GetByID(ctx, id)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, booking.ErrAccountNotFound
	}
	return acct, err
}

// CreateReservation inserts the reservation and, when a debit accompanies
// it, the updated account balance and its ledger entry, all in one
// transaction.  The entry's reservation id is filled from the insert before
// it is written.
func (s *SQLStore) CreateReservation(ctx context.Context, res *model.Reservation, acct *model.LedgerAccount, entry *model.LedgerEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.reservations.CreateTx(ctx, tx, res); err != nil {
			return err
		}
		if acct != nil {
			if err := s.ledger.UpdateTx(ctx, tx, acct); err != nil {
				return err
			}
		}
		if entry != nil {
			entry.ReservationID = res.ID
			if err := s.ledger.InsertEntryTx(ctx, tx, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// ApplyTransition persists every record of one state transition in a single
// transaction: reservation updates first, then account balances, then the
// ledger entries that explain them.
func (s *SQLStore) ApplyTransition(ctx context.Context, res []*model.Reservation, accts []*model.LedgerAccount, entries []*model.LedgerEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range res {
			if err := s.reservations.UpdateTx(ctx, tx, r); err != nil {
				return err
			}
		}
		for _, a := range accts {
			if err := s.ledger.UpdateTx(ctx, tx, a); err != nil {
				return err
			}
		}
		for _, e := range entries {
			if err := s.ledger.InsertEntryTx(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
