// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"errors"
	"math"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// Aggregates must agree with a straightforward recomputation for any
// sequence of call durations and outcomes.
func TestAggregateInvariants(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(rt *rapid.T) {
		c, fake := newTestCollector(Options{})

		n := rapid.IntRange(1, 40).Draw(rt, "calls")
		var failed int
		var total float64
		minSeconds := math.MaxFloat64
		maxSeconds := 0.0
		for i := 0; i < n; i++ {
			millis := rapid.IntRange(1, 5000).Draw(rt, "millis")
			fail := rapid.Bool().Draw(rt, "fail")

			d := time.Duration(millis) * time.Millisecond
			var callErr error
			if fail {
				callErr = errors.New("induced failure")
				failed++
			}
			run(c, fake, "probe", d, callErr)

			seconds := d.Seconds()
			total += seconds
			minSeconds = min(minSeconds, seconds)
			maxSeconds = max(maxSeconds, seconds)
		}

		m, ok := c.ToolSnapshot("probe")
		if !ok {
			rt.Fatal("tool missing from snapshot")
		}
		if m.TotalCalls != n || m.FailedCalls != failed || m.SuccessfulCalls != n-failed {
			rt.Fatalf("counts = %d/%d/%d, want %d/%d/%d",
				m.TotalCalls, m.SuccessfulCalls, m.FailedCalls, n, n-failed, failed)
		}
		if m.TotalDuration != total {
			rt.Fatalf("TotalDuration = %v, want %v", m.TotalDuration, total)
		}
		if m.MinDuration != minSeconds || m.MaxDuration != maxSeconds {
			rt.Fatalf("min/max = %v/%v, want %v/%v", m.MinDuration, m.MaxDuration, minSeconds, maxSeconds)
		}
		if math.Abs(m.AvgDuration-total/float64(n)) > 1e-9 {
			rt.Fatalf("AvgDuration = %v, want %v", m.AvgDuration, total/float64(n))
		}
		if math.Abs(m.SuccessRate+m.ErrorRate-100) > 1e-9 {
			rt.Fatalf("rates %v + %v do not sum to 100", m.SuccessRate, m.ErrorRate)
		}
		if m.P50 < m.MinDuration || m.P50 > m.MaxDuration {
			rt.Fatalf("P50 %v outside [%v, %v]", m.P50, m.MinDuration, m.MaxDuration)
		}
		if m.ConcurrentCalls != 0 {
			rt.Fatalf("ConcurrentCalls = %d after all calls ended", m.ConcurrentCalls)
		}

		st := c.SystemStats()
		if st.TotalCalls != n || st.CompletedCalls != n || st.TotalErrors != failed {
			rt.Fatalf("system stats = %+v, want %d calls and %d errors", st, n, failed)
		}
		if st.ActiveCalls != 0 || st.ConcurrentCalls != 0 {
			rt.Fatalf("in-flight gauges = %d/%d after all calls ended", st.ActiveCalls, st.ConcurrentCalls)
		}
	})
}
