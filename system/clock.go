package system

import "time"

// Clock supplies the current time to the timer machinery. A mock Clock makes
// timer tests deterministic.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// RealClock implements Clock using the system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}
