package engine

import "time"

// Clock supplies wall-clock time to the deferral state machine.
// Injected so backoff and TTL transitions are testable without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ManualClock is a settable clock for tests.
type ManualClock struct {
	T time.Time
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time { return c.T }

// Advance moves the clock forward.
func (c *ManualClock) Advance(d time.Duration) { c.T = c.T.Add(d) }
