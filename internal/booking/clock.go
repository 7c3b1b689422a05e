package booking

import "time"

// Clock supplies the current time to callers of the engine.  Injecting it
// keeps deadline logic deterministic under test; the core itself never reads
// the wall clock, every operation takes an explicit `now`.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock in UTC.
type RealClock struct{}

// Now returns the current UTC time.
func (RealClock) Now() time.Time { return time.Now().UTC() }
