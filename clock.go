package resilient

import "time"

// Clock abstracts the timers used for backoff sleeps so retry loops can be
// driven deterministically in tests. Production code uses [RealClock].
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// NewTimer creates a [Timer] that fires after d.
	NewTimer(d time.Duration) Timer
}

// Timer is the part of [time.Timer] a backoff sleep needs.
type Timer interface {
	// C returns the channel on which the timer's firing time is delivered.
	C() <-chan time.Time
	// Stop prevents the timer from firing and reports whether it was
	// stopped before it fired.
	Stop() bool
}

// RealClock is a zero-value [Clock] backed by the [time] package.
// It holds no state and is safe for concurrent use.
type RealClock struct{}

// Now returns [time.Now].
func (RealClock) Now() time.Time { return time.Now() }

// NewTimer wraps [time.NewTimer].
func (RealClock) NewTimer(d time.Duration) Timer {
	return &realTimer{inner: time.NewTimer(d)}
}

type realTimer struct {
	inner *time.Timer
}

func (t *realTimer) C() <-chan time.Time { return t.inner.C }
func (t *realTimer) Stop() bool          { return t.inner.Stop() }
