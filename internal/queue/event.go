// Package queue defines message payloads exchanged over the message broker
// and the background consumer that drains them.
package queue

// QueueName is the durable queue carrying every reservation lifecycle event.
const QueueName = "reservation.events"

// ReservationEvent is the wire form of a reservation lifecycle event.  It
// carries enough information for downstream consumers to log, notify, or
// trigger analytics without querying the primary database.
type ReservationEvent struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	SessionID     uint64 `json:"session_id"`
	ReservationID uint64 `json:"reservation_id"`
	MemberID      uint64 `json:"member_id"`
	Position      uint32 `json:"position"`
	FeeCents      uint32 `json:"fee_cents"`
	RefundCents   uint32 `json:"refund_cents"`
	OccurredAt    string `json:"occurred_at"`
}
