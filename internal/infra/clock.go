package infra

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock reads so cooldowns, throttles and timeouts can
// be driven deterministically in tests. Production code holds exactly one
// RealClock; nothing in the engine calls time.Now directly.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock delegates to the runtime clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// FakeClock is a manually advanced clock for tests. After never blocks the
// caller: it records the requested delay, advances the clock by it, and
// returns an already-fired channel, which keeps retry/backoff loops
// deterministic without real sleeping.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	Sleeps []time.Duration
}

// NewFakeClock starts a fake clock at the given instant.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.Sleeps = append(c.Sleeps, d)
	c.now = c.now.Add(d)
	fired := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- fired
	return ch
}
