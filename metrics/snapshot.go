// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sort"
	"strings"
	"time"
)

// ToolMetrics is a point-in-time copy of one tool's aggregate.
// Durations are seconds.
type ToolMetrics struct {
	Tool     string `json:"tool_name"`
	Category string `json:"category"`

	TotalCalls      int `json:"total_calls"`
	SuccessfulCalls int `json:"successful_calls"`
	FailedCalls     int `json:"failed_calls"`

	TotalDuration float64 `json:"total_duration"`
	MinDuration   float64 `json:"min_duration"`
	MaxDuration   float64 `json:"max_duration"`
	AvgDuration   float64 `json:"avg_duration"`

	// Percentiles over the retained duration sample.
	P50 float64 `json:"p50_duration"`
	P95 float64 `json:"p95_duration"`
	P99 float64 `json:"p99_duration"`

	// Rates in percent. A tool with no completed calls reports a 100%
	// success rate.
	SuccessRate float64 `json:"success_rate"`
	ErrorRate   float64 `json:"error_rate"`

	// LastCalled is epoch seconds of the most recent completion, 0
	// before any call ends.
	LastCalled float64 `json:"last_called"`

	// CallsPerHour counts completions that started within the
	// trailing hour.
	CallsPerHour int `json:"calls_per_hour"`

	RecentErrors    []string `json:"recent_errors"`
	ConcurrentCalls int      `json:"concurrent_calls"`
}

// SystemStats aggregates across every tool.
type SystemStats struct {
	// TotalCalls, TotalErrors, and TotalDuration are lifetime sums
	// over completed calls.
	TotalCalls    int     `json:"total_calls"`
	TotalDuration float64 `json:"total_duration"`
	TotalErrors   int     `json:"total_errors"`

	// ActiveTools counts distinct tool names seen.
	ActiveTools int `json:"active_tools"`

	// ConcurrentCalls and ActiveCalls both gauge in-flight work:
	// summed per-tool gauges and the in-flight table size.
	ConcurrentCalls int `json:"concurrent_calls"`
	ActiveCalls     int `json:"active_calls"`

	OverallSuccessRate float64 `json:"overall_success_rate"`
	AvgDuration        float64 `json:"avg_duration"`

	// CompletedCalls counts records still inside the retention window.
	CompletedCalls int `json:"completed_calls"`

	// UptimeSeconds is time since the collector was created.
	UptimeSeconds float64 `json:"uptime"`
}

// HeatmapBucket is one hour of activity.
type HeatmapBucket struct {
	// Hour is the bucket's absolute hour index (epoch seconds / 3600).
	Hour int64 `json:"hour"`

	// Timestamp is the bucket's newest edge in epoch seconds.
	Timestamp float64 `json:"timestamp"`

	Calls       int     `json:"calls"`
	Errors      int     `json:"errors"`
	AvgDuration float64 `json:"avg_duration"`
}

// ToolSnapshot returns one tool's metrics. ok is false for a tool the
// collector has never seen.
func (c *Collector) ToolSnapshot(tool string) (ToolMetrics, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, found := c.tools[tool]
	if !found {
		return ToolMetrics{}, false
	}
	return c.snapshotLocked(tool, ts), true
}

// Snapshot returns the metrics of every tool seen so far, keyed by
// tool name.
func (c *Collector) Snapshot() map[string]ToolMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]ToolMetrics, len(c.tools))
	for tool, ts := range c.tools {
		out[tool] = c.snapshotLocked(tool, ts)
	}
	return out
}

// snapshotLocked builds the exported copy of one aggregate. Caller
// holds c.mu.
func (c *Collector) snapshotLocked(tool string, ts *toolState) ToolMetrics {
	m := ToolMetrics{
		Tool:            tool,
		Category:        Categorize(tool),
		TotalCalls:      ts.totalCalls,
		SuccessfulCalls: ts.successfulCalls,
		FailedCalls:     ts.failedCalls,
		TotalDuration:   ts.totalDuration,
		MinDuration:     ts.minDuration,
		MaxDuration:     ts.maxDuration,
		RecentErrors:    append([]string(nil), ts.recentErrors...),
		ConcurrentCalls: ts.concurrent,
	}
	if ts.totalCalls > 0 {
		m.AvgDuration = ts.totalDuration / float64(ts.totalCalls)
		m.SuccessRate = float64(ts.successfulCalls) / float64(ts.totalCalls) * 100
		m.ErrorRate = float64(ts.failedCalls) / float64(ts.totalCalls) * 100
	} else {
		m.SuccessRate = 100
	}
	m.P50 = percentile(ts.samples, 0.50)
	m.P95 = percentile(ts.samples, 0.95)
	m.P99 = percentile(ts.samples, 0.99)
	if !ts.lastCalled.IsZero() {
		m.LastCalled = float64(ts.lastCalled.UnixNano()) / 1e9
	}

	hourAgo := c.clock.Now().Add(-time.Hour)
	for _, record := range c.history {
		if record.tool == tool && record.started.After(hourAgo) {
			m.CallsPerHour++
		}
	}
	return m
}

// SystemStats returns the cross-tool totals.
func (c *Collector) SystemStats() SystemStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := SystemStats{
		ActiveTools:    len(c.tools),
		ActiveCalls:    len(c.active),
		CompletedCalls: len(c.history),
		UptimeSeconds:  c.clock.Now().Sub(c.started).Seconds(),
	}
	var successful int
	for _, ts := range c.tools {
		st.TotalCalls += ts.totalCalls
		st.TotalErrors += ts.failedCalls
		st.TotalDuration += ts.totalDuration
		st.ConcurrentCalls += ts.concurrent
		successful += ts.successfulCalls
	}
	if st.TotalCalls > 0 {
		st.OverallSuccessRate = float64(successful) / float64(st.TotalCalls) * 100
		st.AvgDuration = st.TotalDuration / float64(st.TotalCalls)
	} else {
		st.OverallSuccessRate = 100
	}
	return st
}

// Heatmap returns per-hour activity buckets covering the trailing
// hours, newest first, zero-filled where nothing ran. Hours beyond the
// retention window are necessarily empty.
func (c *Collector) Heatmap(hours int) []HeatmapBucket {
	if hours <= 0 {
		hours = 24
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	nowSeconds := float64(now.UnixNano()) / 1e9

	buckets := make([]HeatmapBucket, hours)
	totals := make([]float64, hours)
	for i := range buckets {
		edge := nowSeconds - float64(i)*3600
		buckets[i] = HeatmapBucket{
			Hour:      int64(edge / 3600),
			Timestamp: edge,
		}
	}

	for _, record := range c.history {
		age := now.Sub(record.started)
		if age < 0 {
			continue
		}
		idx := int(age / time.Hour)
		if idx >= hours {
			continue
		}
		buckets[idx].Calls++
		if record.failed {
			buckets[idx].Errors++
		}
		totals[idx] += record.duration.Seconds()
	}
	for i := range buckets {
		if buckets[i].Calls > 0 {
			buckets[i].AvgDuration = totals[i] / float64(buckets[i].Calls)
		}
	}
	return buckets
}

// Categorize maps a tool name onto its workflow category by substring,
// mirroring how the dashboard groups tools.
func Categorize(tool string) string {
	name := strings.ToLower(tool)
	switch {
	case containsAny(name, "mcp", "particle", "physics"):
		return "mcp"
	case containsAny(name, "search", "kb", "retriev"):
		return "search"
	case containsAny(name, "valid", "check"):
		return "validation"
	case containsAny(name, "generat", "diagram", "tikz"):
		return "generation"
	case containsAny(name, "compil", "latex"):
		return "compilation"
	default:
		return "analysis"
	}
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// percentile returns the q-th percentile of the retained sample: the
// sorted value at index ⌊n·q⌋, clamped to the last element. Zero for
// an empty sample.
func percentile(samples []float64, q float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)) * q)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
