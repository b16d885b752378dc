// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at the given initial time. Time
// advances only through Advance, making timer-dependent code fully
// deterministic in tests.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{now: initial}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// FakeClock is a manually advanced Clock implementation for tests.
type FakeClock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     time.Time
	waiters []*fakeWaiter
}

// fakeWaiter is a pending timer registered by After, Sleep, or
// NewTicker. Tickers re-arm after firing; one-shot waiters are
// removed.
type fakeWaiter struct {
	target  time.Time
	ch      chan time.Time
	period  time.Duration // 0 for one-shot waiters
	stopped bool
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a one-shot timer firing after d. If d <= 0 the
// returned channel receives immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, &fakeWaiter{target: c.now.Add(d), ch: ch})
	c.cond.Broadcast()
	return ch
}

// NewTicker registers a periodic timer. Panics if d <= 0, matching
// time.NewTicker.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	waiter := &fakeWaiter{target: c.now.Add(d), ch: make(chan time.Time, 1), period: d}
	c.waiters = append(c.waiters, waiter)
	c.cond.Broadcast()

	return &Ticker{
		C: waiter.ch,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			waiter.stopped = true
			c.removeLocked(waiter)
		},
	}
}

// Sleep blocks the calling goroutine until Advance moves the clock
// past the deadline.
func (c *FakeClock) Sleep(d time.Duration) {
	<-c.After(d)
}

// Advance moves the fake time forward by d and fires every timer
// whose deadline falls within the advanced window, in deadline order.
// Tickers fire once per elapsed period and re-arm.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.now.Add(d)
	for {
		next := c.nextExpiredLocked(target)
		if next == nil {
			break
		}
		c.now = next.target
		// Non-blocking send: a ticker whose consumer fell behind
		// drops the tick, matching time.Ticker.
		select {
		case next.ch <- c.now:
		default:
		}
		if next.period > 0 {
			next.target = next.target.Add(next.period)
		} else {
			c.removeLocked(next)
		}
	}
	c.now = target
}

// WaitForTimers blocks until at least n timers are registered. Use
// this to synchronize with a goroutine that is about to block on
// After or a ticker before calling Advance.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.waiters) < n {
		c.cond.Wait()
	}
}

// nextExpiredLocked returns the waiter with the earliest deadline at
// or before target, or nil when none remain in the window.
func (c *FakeClock) nextExpiredLocked(target time.Time) *fakeWaiter {
	var earliest *fakeWaiter
	for _, waiter := range c.waiters {
		if waiter.stopped || waiter.target.After(target) {
			continue
		}
		if earliest == nil || waiter.target.Before(earliest.target) {
			earliest = waiter
		}
	}
	return earliest
}

func (c *FakeClock) removeLocked(target *fakeWaiter) {
	for i, waiter := range c.waiters {
		if waiter == target {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}
