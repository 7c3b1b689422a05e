package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types published by the engine.  The core only publishes; delivery of
// member notifications (email/SMS) belongs to downstream consumers.
const (
	EventReservationConfirmed = "reservation.confirmed"
	EventReservationCancelled = "reservation.cancelled"
	EventReservationPromoted  = "reservation.promoted"
	EventSeatFreed            = "seat.freed"
)

// Event describes a single state change of interest to collaborators.  The
// ID is a random UUID so consumers can deduplicate redeliveries.
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	SessionID     uint64    `json:"session_id"`
	ReservationID uint64    `json:"reservation_id"`
	MemberID      uint64    `json:"member_id"`
	Position      uint32    `json:"position"`
	FeeCents      uint32    `json:"fee_cents"`
	RefundCents   uint32    `json:"refund_cents"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// EventSink receives events after the transition that produced them has been
// persisted.  Implementations must not block the request path for long;
// publish failures are logged and ignored by the engine.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}

func newEvent(typ string, sessionID, reservationID, memberID uint64, position uint32, occurredAt time.Time) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          typ,
		SessionID:     sessionID,
		ReservationID: reservationID,
		MemberID:      memberID,
		Position:      position,
		OccurredAt:    occurredAt,
	}
}
