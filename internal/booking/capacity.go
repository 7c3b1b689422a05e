package booking

import (
	"sort"
	"sync"
	"time"

	"github.com/solacestudio/studio-reservation/internal/model"
)

// SeatOutcome is the result of asking for a seat in a session.
type SeatOutcome int

const (
	// SeatConfirmed means a confirmed seat ordinal was available.
	SeatConfirmed SeatOutcome = iota
	// SeatWaitlisted means the session is full but the waitlist has room.
	SeatWaitlisted
	// SeatWaitlistFull means both the session and its waitlist are full.
	SeatWaitlistFull
)

// WaitEntry is one waitlisted reservation in a session's queue, ordered
// first-in-first-out by AddedAt with reservation id as the deterministic
// tie-break.
type WaitEntry struct {
	ReservationID uint64
	MemberID      uint64
	Position      uint32
	AddedAt       time.Time
}

// sessionSeats is the occupancy state of one session: which reservation
// holds which confirmed seat ordinal, and the ordered waitlist.
type sessionSeats struct {
	seats    map[uint64]uint32 // reservation id -> seat ordinal (1-based)
	waitlist []WaitEntry
}

// CapacityTracker is the single authority on whether a session is full.  It
// keeps an explicitly maintained confirmed-seat count per session rather
// than deriving one from a live query, so that two simultaneous bookers
// cannot both observe a free seat.  Every method that touches one session's
// state requires the caller to hold that session's lock; the tracker's own
// mutex only guards the session map, never a cross-session critical section.
type CapacityTracker struct {
	mu       sync.Mutex
	sessions map[uint64]*sessionSeats
}

// NewCapacityTracker returns an empty tracker.  Session states are hydrated
// lazily from open reservations via Load.
func NewCapacityTracker() *CapacityTracker {
	return &CapacityTracker{sessions: make(map[uint64]*sessionSeats)}
}

// Loaded reports whether the session's occupancy state has been hydrated.
func (t *CapacityTracker) Loaded(sessionID uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[sessionID]
	return ok
}

// Load hydrates the session's occupancy from its open (confirmed, checked-in
// or waitlisted) reservations.  Waitlist order is rebuilt FIFO by
// waitlisted-at time with reservation id ties broken ascending, and
// positions are renumbered from 1 so the queue never carries gaps.
func (t *CapacityTracker) Load(sessionID uint64, open []*model.Reservation) {
	st := &sessionSeats{seats: make(map[uint64]uint32)}
	for _, r := range open {
		switch {
		case r.Seated():
			st.seats[r.ID] = r.Position
		case r.Status == model.StatusWaitlisted:
			added := r.BookedAt
			if r.WaitlistedAt != nil {
				added = *r.WaitlistedAt
			}
			st.waitlist = append(st.waitlist, WaitEntry{
				ReservationID: r.ID,
				MemberID:      r.MemberID,
				AddedAt:       added,
			})
		}
	}
	sort.Slice(st.waitlist, func(i, j int) bool {
		a, b := st.waitlist[i], st.waitlist[j]
		if !a.AddedAt.Equal(b.AddedAt) {
			return a.AddedAt.Before(b.AddedAt)
		}
		return a.ReservationID < b.ReservationID
	})
	for i := range st.waitlist {
		st.waitlist[i].Position = uint32(i + 1)
	}
	t.mu.Lock()
	t.sessions[sessionID] = st
	t.mu.Unlock()
}

// Forget drops the session's occupancy state, forcing a re-hydration on the
// next use.  Used when a session is deactivated.
func (t *CapacityTracker) Forget(sessionID uint64) {
	t.mu.Lock()
	delete(t.sessions, sessionID)
	t.mu.Unlock()
}

func (t *CapacityTracker) state(sessionID uint64) *sessionSeats {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.sessions[sessionID]
	if !ok {
		st = &sessionSeats{seats: make(map[uint64]uint32)}
		t.sessions[sessionID] = st
	}
	return st
}

// Counts returns the confirmed-seat count and waitlist length for a session.
func (t *CapacityTracker) Counts(sessionID uint64) (confirmed, waitlisted uint32) {
	st := t.state(sessionID)
	return uint32(len(st.seats)), uint32(len(st.waitlist))
}

// TryReserveSeat decides where a new booking for the session lands: a
// confirmed seat (with the lowest free ordinal), the waitlist (with the next
// queue position), or nowhere when both are full.  The decision is recorded
// only once the caller persists the reservation and calls Confirm or
// Enqueue, so a failed ledger debit leaves no seat to roll back.
func (t *CapacityTracker) TryReserveSeat(sess *model.ClassSession) (SeatOutcome, uint32) {
	st := t.state(sess.ID)
	if uint32(len(st.seats)) < sess.MaxCapacity {
		return SeatConfirmed, lowestFreeSeat(st, sess.MaxCapacity)
	}
	if uint32(len(st.waitlist)) < sess.WaitlistCapacity {
		return SeatWaitlisted, uint32(len(st.waitlist)) + 1
	}
	return SeatWaitlistFull, 0
}

// Confirm records that the reservation holds the given confirmed seat
// ordinal.
func (t *CapacityTracker) Confirm(sessionID, reservationID uint64, position uint32) {
	st := t.state(sessionID)
	st.seats[reservationID] = position
}

// Enqueue appends the reservation to the session's waitlist.
func (t *CapacityTracker) Enqueue(sessionID, reservationID, memberID uint64, position uint32, addedAt time.Time) {
	st := t.state(sessionID)
	st.waitlist = append(st.waitlist, WaitEntry{
		ReservationID: reservationID,
		MemberID:      memberID,
		Position:      position,
		AddedAt:       addedAt,
	})
}

// ReleaseSeat frees the confirmed seat held by the reservation and returns
// the freed ordinal.  The caller is responsible for offering the freed seat
// to the waitlist promoter within the same unit of work.
func (t *CapacityTracker) ReleaseSeat(sessionID, reservationID uint64) (uint32, bool) {
	st := t.state(sessionID)
	pos, ok := st.seats[reservationID]
	if !ok {
		return 0, false
	}
	delete(st.seats, reservationID)
	return pos, true
}

// RemoveFromWaitlist removes a waitlisted reservation and compacts the
// positions of everyone behind it, preserving FIFO order with no gaps.
func (t *CapacityTracker) RemoveFromWaitlist(sessionID, reservationID uint64) bool {
	st := t.state(sessionID)
	for i, e := range st.waitlist {
		if e.ReservationID != reservationID {
			continue
		}
		st.waitlist = append(st.waitlist[:i], st.waitlist[i+1:]...)
		for j := i; j < len(st.waitlist); j++ {
			st.waitlist[j].Position = uint32(j + 1)
		}
		return true
	}
	return false
}

// Waitlist returns a copy of the session's waitlist in promotion order.
func (t *CapacityTracker) Waitlist(sessionID uint64) []WaitEntry {
	st := t.state(sessionID)
	out := make([]WaitEntry, len(st.waitlist))
	copy(out, st.waitlist)
	return out
}

// lowestFreeSeat returns the smallest ordinal in [1, maxCapacity] not
// currently assigned.  Callers check the confirmed count first, so a free
// ordinal always exists.
func lowestFreeSeat(st *sessionSeats, maxCapacity uint32) uint32 {
	used := make(map[uint32]bool, len(st.seats))
	for _, p := range st.seats {
		used[p] = true
	}
	for pos := uint32(1); pos <= maxCapacity; pos++ {
		if !used[pos] {
			return pos
		}
	}
	return uint32(len(st.seats)) + 1
}
