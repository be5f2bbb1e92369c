package session

import "time"

// Timer is a pending callback scheduled by a TimeProvider.
type Timer interface {
	// Stop cancels the callback. It reports false if the callback already
	// ran or was stopped.
	Stop() bool
}

// TimeProvider is the controller's clock. Join timing, stale statistics
// and the leave timeout all read it, so a manual clock makes them
// deterministic in tests.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// AfterFunc runs f on its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// DefaultTimeProvider reads the wall clock.
type DefaultTimeProvider struct{}

func (DefaultTimeProvider) Now() time.Time { return time.Now() }

func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

func (DefaultTimeProvider) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
