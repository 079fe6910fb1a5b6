// Package clock provides the master monotonic time source shared by every
// stream and the dispatcher. All timestamps in the timing and correlation
// engines are offsets from a single Clock's epoch, never wall-clock readings
// from independent sources.
package clock

import "time"

// Timestamp is a monotonic offset from a Clock's epoch.
type Timestamp = time.Duration

// Clock is a read-only monotonic time source. The zero value is unusable;
// construct with New. Clock is safe for concurrent use without locking: the
// epoch is immutable and time.Since reads the runtime's monotonic clock.
type Clock struct {
	epoch time.Time
}

// New creates a clock anchored at the current instant.
func New() *Clock {
	return &Clock{epoch: time.Now()}
}

// Now returns the monotonic offset since the clock's epoch.
func (c *Clock) Now() Timestamp {
	return time.Since(c.epoch)
}

// Epoch returns the wall-clock instant the clock was anchored at. Useful only
// for presentation; comparisons must use Now offsets.
func (c *Clock) Epoch() time.Time {
	return c.epoch
}
