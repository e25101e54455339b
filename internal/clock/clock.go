// Package clock abstracts wall-clock time so the scheduler and delayed
// sub-step continuations can be driven deterministically in tests.
package clock

import "time"

// Clock is the subset of the time package the bot depends on
type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine once d has elapsed
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call
type Timer interface {
	// Stop cancels the call; false means it already fired or was stopped
	Stop() bool
}

// Real returns the clock backed by the time package
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
