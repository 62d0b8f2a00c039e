package ports

import (
	"context"
	"sort"
	"sync"
	"time"
)

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FakeClock is a manually advanced Clock for tests. Sleep callers are
// woken when Advance moves the clock past their deadline.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeper []fakeSleeper
}

type fakeSleeper struct {
	deadline time.Time
	wake     chan struct{}
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	wake := make(chan struct{})
	c.mu.Lock()
	c.sleeper = append(c.sleeper, fakeSleeper{deadline: c.now.Add(d), wake: wake})
	c.mu.Unlock()

	select {
	case <-wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Advance moves the clock forward and wakes every sleeper whose
// deadline has passed.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	sort.Slice(c.sleeper, func(i, j int) bool {
		return c.sleeper[i].deadline.Before(c.sleeper[j].deadline)
	})
	remaining := c.sleeper[:0]
	var due []fakeSleeper
	for _, s := range c.sleeper {
		if !s.deadline.After(now) {
			due = append(due, s)
		} else {
			remaining = append(remaining, s)
		}
	}
	c.sleeper = remaining
	c.mu.Unlock()

	for _, s := range due {
		close(s.wake)
	}
}

// Sleepers reports how many Sleep calls are currently blocked,
// letting tests synchronize before calling Advance.
func (c *FakeClock) Sleepers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sleeper)
}
