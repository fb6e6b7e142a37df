// Package clock abstracts wall-clock time and timers so that every
// timer-driven behaviour (backoff, heartbeats, pending timeouts, grace
// periods) can be driven deterministically in tests.
package clock

import "time"

// Timer is a scheduled callback.
type Timer interface {
	// Stop cancels the timer. It returns false if the timer already fired
	// or was already stopped.
	Stop() bool
}

// Clock schedules callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
