// Package system provides the wall clock used to anchor ordering timestamps.
package system

import "time"

// Clock implements tracker.Clock using time.Now.
// Readings are UTC and truncated to microseconds so they survive a Postgres round trip.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Fixed is a tracker.Clock that always reports the same instant.
type Fixed time.Time

// Now returns the fixed instant.
func (f Fixed) Now() time.Time {
	return time.Time(f)
}
