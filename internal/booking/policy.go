package booking

import (
	"time"

	"github.com/solacestudio/studio-reservation/internal/model"
)

// Classification of a cancellation relative to the session's deadline.
type Classification string

const (
	// OnTime cancellations receive a full credit reversal and no fee.
	OnTime Classification = "ON_TIME"
	// Late cancellations forfeit the consumed credit and incur the
	// session's late fee.
	Late Classification = "LATE"
)

// Classify determines whether a cancellation at `now` is on time or late.
// A cancellation is late iff now is strictly after
// startsAt - cancelDeadlineHours; cancelling exactly at the deadline is
// still on time.  Pure function of its inputs.
func Classify(sess *model.ClassSession, now time.Time) Classification {
	if now.After(sess.CancelDeadline()) {
		return Late
	}
	return OnTime
}

// FeeFor returns the fee in cents assessed for a cancellation with the given
// classification: zero when on time, the session's late fee otherwise.
func FeeFor(sess *model.ClassSession, c Classification) uint32 {
	if c == Late {
		return sess.LateFeeCents
	}
	return 0
}
