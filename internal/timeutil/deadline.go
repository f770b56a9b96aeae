package timeutil

import "time"

// Deadline is a wall-clock bound for a polling loop. Loops check Expired once
// per iteration; nothing is cancelled asynchronously.
type Deadline struct {
	clock   Clock
	started time.Time
	limit   time.Duration
}

// NewDeadline starts a deadline that expires d after the clock's current time.
func NewDeadline(clock Clock, d time.Duration) Deadline {
	if clock == nil {
		clock = RealClock{}
	}
	return Deadline{clock: clock, started: clock.Now(), limit: d}
}

// Expired reports whether the bound has been reached.
func (d Deadline) Expired() bool {
	return d.clock.Since(d.started) >= d.limit
}

// Elapsed returns the time spent since the deadline was started.
func (d Deadline) Elapsed() time.Duration {
	return d.clock.Since(d.started)
}

// Remaining returns the time left before expiry, never negative.
func (d Deadline) Remaining() time.Duration {
	left := d.limit - d.clock.Since(d.started)
	if left < 0 {
		return 0
	}
	return left
}

// Pause sleeps for at most interval, clamped to the remaining time so a loop
// never overshoots its bound by more than one iteration.
func (d Deadline) Pause(interval time.Duration) {
	if left := d.Remaining(); left < interval {
		interval = left
	}
	if interval > 0 {
		d.clock.Sleep(interval)
	}
}
