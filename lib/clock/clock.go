// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the time package so timed behavior can be driven
// deterministically in tests. Production code injects Real(); tests
// inject Fake() and move time explicitly with Advance.
//
// Anything that calls time.Now, time.After, time.NewTimer,
// time.NewTicker, time.AfterFunc, or time.Sleep should take a Clock
// (or live on a struct carrying one) instead of touching the time
// package directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc waits for d, then calls f in its own goroutine (real
	// clock) or synchronously during Advance (fake clock). The
	// returned Timer cancels the pending call via Stop; its C field
	// is nil, matching time.AfterFunc.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTimer returns a Timer that delivers one tick on C after d.
	// Stop and Reset follow time.Timer semantics.
	NewTimer(d time.Duration) *Timer

	// NewTicker returns a Ticker delivering ticks on C every d.
	// Panics if d <= 0, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. The channel has capacity 1;
// ticks a slow consumer misses are dropped, never queued, matching
// time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stop  func()
	reset func(time.Duration)
}

// Stop turns the ticker off. No tick is sent after Stop returns. C is
// not closed.
func (t *Ticker) Stop() { t.stop() }

// Reset changes the interval and restarts the tick cycle; the next
// tick arrives after the new duration.
func (t *Ticker) Reset(d time.Duration) { t.reset(d) }

// Timer delivers a single tick on C at its deadline. Timers from
// AfterFunc carry a nil C.
type Timer struct {
	C <-chan time.Time

	stop  func() bool
	reset func(time.Duration) bool
}

// Stop prevents the timer from firing. Reports whether the call
// stopped it; false means it already fired or was stopped.
func (t *Timer) Stop() bool { return t.stop() }

// Reset re-arms the timer to fire after d. Reports whether the timer
// was active when Reset was called.
func (t *Timer) Reset(d time.Duration) bool { return t.reset(d) }
