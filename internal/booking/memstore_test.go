package booking

import (
	"context"
	"sync"
	"time"

	"github.com/solacestudio/studio-reservation/internal/model"
)

// memStore is an in-memory Store used by the engine tests.  Reads return
// copies so a test catches any mutation that was never handed back through
// CreateReservation or ApplyTransition, the same way a SQL row read would.
type memStore struct {
	mu           sync.Mutex
	nextID       uint64
	sessions     map[uint64]*model.ClassSession
	reservations map[uint64]*model.Reservation
	accounts     map[uint64]*model.LedgerAccount
	entries      []*model.LedgerEntry
}

func newMemStore() *memStore {
	return &memStore{
		sessions:     make(map[uint64]*model.ClassSession),
		reservations: make(map[uint64]*model.Reservation),
		accounts:     make(map[uint64]*model.LedgerAccount),
	}
}

func (s *memStore) addSession(sess *model.ClassSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
}

func (s *memStore) addAccount(a *model.LedgerAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.accounts[a.ID] = &cp
}

func copyReservation(r *model.Reservation) *model.Reservation {
	cp := *r
	if r.AccountID != nil {
		id := *r.AccountID
		cp.AccountID = &id
	}
	cp.WaitlistedAt = copyTime(r.WaitlistedAt)
	cp.PromotedAt = copyTime(r.PromotedAt)
	cp.CheckedInAt = copyTime(r.CheckedInAt)
	cp.CancelledAt = copyTime(r.CancelledAt)
	cp.CompletedAt = copyTime(r.CompletedAt)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func (s *memStore) Session(ctx context.Context, id uint64) (*model.ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *memStore) Reservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	return copyReservation(r), nil
}

func (s *memStore) ActiveReservation(ctx context.Context, memberID, sessionID uint64) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reservations {
		if r.MemberID == memberID && r.SessionID == sessionID && !r.Terminal() {
			return copyReservation(r), nil
		}
	}
	return nil, nil
}

func (s *memStore) OpenReservations(ctx context.Context, sessionID uint64) ([]*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Reservation
	for _, r := range s.reservations {
		if r.SessionID == sessionID && !r.Terminal() {
			out = append(out, copyReservation(r))
		}
	}
	return out, nil
}

func (s *memStore) Account(ctx context.Context, id uint64) (*model.LedgerAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) CreateReservation(ctx context.Context, res *model.Reservation, acct *model.LedgerAccount, entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	res.ID = s.nextID
	s.reservations[res.ID] = copyReservation(res)
	if acct != nil {
		cp := *acct
		s.accounts[acct.ID] = &cp
	}
	if entry != nil {
		entry.ReservationID = res.ID
		cp := *entry
		s.entries = append(s.entries, &cp)
	}
	return nil
}

func (s *memStore) ApplyTransition(ctx context.Context, res []*model.Reservation, accts []*model.LedgerAccount, entries []*model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range res {
		s.reservations[r.ID] = copyReservation(r)
	}
	for _, a := range accts {
		cp := *a
		s.accounts[a.ID] = &cp
	}
	for _, e := range entries {
		cp := *e
		s.entries = append(s.entries, &cp)
	}
	return nil
}

func (s *memStore) account(id uint64) model.LedgerAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.accounts[id]
}

func (s *memStore) reservation(id uint64) model.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *copyReservation(s.reservations[id])
}

func (s *memStore) entriesFor(reservationID uint64) []model.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.LedgerEntry
	for _, e := range s.entries {
		if e.ReservationID == reservationID {
			out = append(out, *e)
		}
	}
	return out
}

// memSink records published events in order.
type memSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *memSink) Publish(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *memSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

// Test fixtures.  Sessions start a day after the base time so bookings are
// comfortably before the cancellation deadline unless a test says otherwise.
var baseTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func testSession(id uint64, maxCap, wlCap uint32) *model.ClassSession {
	startsAt := baseTime.Add(24 * time.Hour)
	return &model.ClassSession{
		ID:                  id,
		Name:                "Vinyasa Flow",
		ClassType:           "YOGA",
		Room:                "Studio A",
		StartsAt:            startsAt,
		EndsAt:              startsAt.Add(time.Hour),
		MaxCapacity:         maxCap,
		WaitlistCapacity:    wlCap,
		CancelDeadlineHours: 2,
		LateFeeCents:        1500,
		DropInPriceCents:    2500,
		IsActive:            true,
		CreatedAt:           baseTime,
		UpdatedAt:           baseTime,
	}
}

func testAccount(id, memberID uint64, granted uint32) *model.LedgerAccount {
	return &model.LedgerAccount{
		ID:        id,
		MemberID:  memberID,
		Source:    model.SourceMembership,
		Granted:   granted,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
}

func newTestEngine(store *memStore) (*ReservationEngine, *memSink) {
	sink := &memSink{}
	return NewReservationEngine(store, sink, 2*time.Second, 15*time.Minute), sink
}

func membership(accountID uint64) CreditSource {
	return CreditSource{Method: model.PayMembership, AccountID: accountID}
}
