// Package system supplies the wall clock used for queue and run timestamps.
package system

import "time"

// Clock implements crawler.Clock. Times are always UTC so stale-cutoff
// comparisons line up with the timestamptz columns the queue writes.
type Clock struct{}

// New returns the system clock.
func New() Clock {
	return Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
