// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock pinned to the given time. Time moves only
// when Advance is called; every timer, ticker, and sleep registers a
// pending entry that fires once the clock passes its deadline.
//
// FakeClock is safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.pendingChanged = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for tests. AfterFunc callbacks
// run synchronously inside Advance in deadline order; calling Sleep
// or Advance from inside such a callback deadlocks.
type FakeClock struct {
	mu             sync.Mutex
	current        time.Time
	pending        []*pendingTimer
	pendingChanged *sync.Cond
}

// pendingTimer is one scheduled After, AfterFunc, NewTimer, NewTicker,
// or Sleep operation.
type pendingTimer struct {
	deadline time.Time

	// channel receives the fire time. Nil for AfterFunc entries.
	channel chan time.Time

	// callback runs synchronously during Advance. Nil except for
	// AfterFunc entries.
	callback func()

	// interval is non-zero for tickers; after firing the entry is
	// rescheduled at deadline + interval.
	interval time.Duration

	stopped bool
	fired   bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that receives once the clock advances past
// d from now. A non-positive d delivers immediately without
// registering a pending timer.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.current
		return channel
	}
	c.register(&pendingTimer{deadline: c.current.Add(d), channel: channel})
	return channel
}

// AfterFunc schedules f to run when the clock advances past d. The
// returned Timer has a nil C. A non-positive d runs f before
// AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()

	if d <= 0 {
		c.mu.Unlock()
		f()
		return &Timer{
			stop:  func() bool { return false },
			reset: func(time.Duration) bool { return false },
		}
	}

	entry := &pendingTimer{deadline: c.current.Add(d), callback: f}
	c.register(entry)
	c.mu.Unlock()

	return &Timer{
		stop:  func() bool { return c.stopTimer(entry) },
		reset: func(d time.Duration) bool { return c.resetTimer(entry, d) },
	}
}

// NewTimer returns a Timer that delivers one tick on C once the clock
// advances past d. A non-positive d delivers immediately.
func (c *FakeClock) NewTimer(d time.Duration) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	entry := &pendingTimer{deadline: c.current.Add(d), channel: channel}
	if d <= 0 {
		channel <- c.current
		entry.fired = true
	} else {
		c.register(entry)
	}

	return &Timer{
		C:     channel,
		stop:  func() bool { return c.stopTimer(entry) },
		reset: func(d time.Duration) bool { return c.resetTimer(entry, d) },
	}
}

// NewTicker returns a Ticker firing every d once the clock advances
// past each successive deadline. Panics if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	entry := &pendingTimer{
		deadline: c.current.Add(d),
		channel:  channel,
		interval: d,
	}
	c.register(entry)

	return &Ticker{
		C: channel,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			entry.stopped = true
		},
		reset: func(d time.Duration) {
			c.mu.Lock()
			defer c.mu.Unlock()
			entry.interval = d
			entry.deadline = c.current.Add(d)
			entry.stopped = false
		},
	}
}

// Sleep blocks the calling goroutine until the clock advances past d.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// register appends a pending entry and wakes WaitForTimers callers.
// Caller holds c.mu.
func (c *FakeClock) register(entry *pendingTimer) {
	c.pending = append(c.pending, entry)
	c.pendingChanged.Broadcast()
}

func (c *FakeClock) stopTimer(entry *pendingTimer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry.stopped || entry.fired {
		return false
	}
	entry.stopped = true
	return true
}

func (c *FakeClock) resetTimer(entry *pendingTimer, d time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	wasActive := !entry.stopped && !entry.fired
	entry.stopped = false
	entry.fired = false
	entry.deadline = c.current.Add(d)
	if !wasActive {
		c.register(entry)
	}
	return wasActive
}

// Advance moves the clock forward by d and fires every pending entry
// whose deadline falls within the new time, in deadline order.
// Channel deliveries are non-blocking: a tick nobody is ready to
// receive is dropped, matching time.Ticker. Tickers spanning several
// intervals fire once per interval.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	for {
		expired := c.takeExpired(target)
		if len(expired) == 0 {
			return
		}

		sort.Slice(expired, func(i, j int) bool {
			return expired[i].deadline.Before(expired[j].deadline)
		})

		for _, entry := range expired {
			if entry.callback != nil {
				entry.callback()
				continue
			}
			select {
			case entry.channel <- target:
			default:
			}
		}
	}
}

// takeExpired removes entries due at or before target, reschedules
// tickers, and returns what should fire.
func (c *FakeClock) takeExpired(target time.Time) []*pendingTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired, remaining []*pendingTimer
	for _, entry := range c.pending {
		switch {
		case entry.stopped:
			// Dropped entirely.
		case !entry.deadline.After(target):
			expired = append(expired, entry)
		default:
			remaining = append(remaining, entry)
		}
	}

	for _, entry := range expired {
		if entry.interval > 0 {
			entry.deadline = entry.deadline.Add(entry.interval)
			remaining = append(remaining, entry)
		} else {
			entry.fired = true
		}
	}

	c.pending = remaining
	return expired
}

// WaitForTimers blocks until at least n entries are pending. This
// removes the race between a goroutine under test registering its
// timer and the test advancing the clock:
//
//	go func() { fakeClock.Sleep(5 * time.Second) }()
//	fakeClock.WaitForTimers(1)
//	fakeClock.Advance(5 * time.Second)
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.activeCount() < n {
		c.pendingChanged.Wait()
	}
}

// PendingCount returns the number of active pending entries.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeCount()
}

// activeCount counts non-stopped entries. Caller holds c.mu.
func (c *FakeClock) activeCount() int {
	count := 0
	for _, entry := range c.pending {
		if !entry.stopped {
			count++
		}
	}
	return count
}
