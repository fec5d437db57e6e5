// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/feynmancraft/pulse/event"
	"github.com/feynmancraft/pulse/lib/clock"
)

const (
	// DefaultRetention is how long completed call records feed the
	// heatmap and trailing-hour rates.
	DefaultRetention = 24 * time.Hour

	// DefaultCleanupInterval is how often Run sweeps the history and
	// the in-flight table.
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultStaleAfter is how long a call may stay in flight before
	// the sweep declares it abandoned.
	DefaultStaleAfter = time.Hour

	// DefaultSampleLimit caps the per-tool duration samples retained
	// for percentile computation (oldest dropped first). Percentiles
	// are exact over this window.
	DefaultSampleLimit = 1000

	// recentErrorLimit is how many recent error messages each tool
	// keeps.
	recentErrorLimit = 5

	// errorMessageLimit truncates stored and published error messages.
	errorMessageLimit = 200
)

// Event types published by the collector.
const (
	EventToolCallStart = "tool_call_start"
	EventToolCallEnd   = "tool_call_end"
)

// CallInfo carries the correlation context of one tool call. All
// fields are optional.
type CallInfo struct {
	SessionID string
	TraceID   string
	StepID    string

	// Params is a snapshot of the call's parameters, published with
	// the tool_call_start event. The collector does not interpret it.
	Params map[string]any
}

// Options configures a Collector. The zero value is usable.
type Options struct {
	// Log receives tool_call_start/tool_call_end events. Nil disables
	// publication.
	Log *event.Log

	// Clock supplies time. Default clock.Real().
	Clock clock.Clock

	// Logger receives warnings. Default slog.Default().
	Logger *slog.Logger

	// Retention, CleanupInterval, StaleAfter, SampleLimit override the
	// package defaults when positive.
	Retention       time.Duration
	CleanupInterval time.Duration
	StaleAfter      time.Duration
	SampleLimit     int
}

// activeCall is one in-flight tool invocation.
type activeCall struct {
	id      string
	tool    string
	info    CallInfo
	started time.Time
}

// callRecord is one completed invocation, retained for the trailing
// retention window.
type callRecord struct {
	tool     string
	started  time.Time
	duration time.Duration
	failed   bool
}

// toolState is the mutable per-tool aggregate. Guarded by the
// collector's mutex; snapshots are exported as [ToolMetrics].
type toolState struct {
	totalCalls      int
	successfulCalls int
	failedCalls     int
	totalDuration   float64 // seconds
	minDuration     float64
	maxDuration     float64
	samples         []float64 // seconds, bounded by SampleLimit
	recentErrors    []string
	concurrent      int
	lastCalled      time.Time
}

// Collector aggregates tool call metrics. All methods are safe for
// concurrent use.
type Collector struct {
	clock       clock.Clock
	logger      *slog.Logger
	log         *event.Log
	retention   time.Duration
	cleanupEvry time.Duration
	staleAfter  time.Duration
	sampleLimit int

	mu      sync.Mutex
	started time.Time
	counter uint64
	active  map[string]*activeCall
	history []callRecord
	tools   map[string]*toolState
}

// New creates a Collector. Fields of opts left zero take their
// defaults.
func New(opts Options) *Collector {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.SampleLimit <= 0 {
		opts.SampleLimit = DefaultSampleLimit
	}
	return &Collector{
		clock:       opts.Clock,
		logger:      opts.Logger,
		log:         opts.Log,
		retention:   opts.Retention,
		cleanupEvry: opts.CleanupInterval,
		staleAfter:  opts.StaleAfter,
		sampleLimit: opts.SampleLimit,
		started:     opts.Clock.Now(),
		active:      make(map[string]*activeCall),
		tools:       make(map[string]*toolState),
	}
}

// Start records the beginning of a tool call and returns its call id,
// unique for the process lifetime. The tool's aggregate is created on
// first sight so the concurrency gauge covers the very first call.
func (c *Collector) Start(tool string, info CallInfo) string {
	c.mu.Lock()
	now := c.clock.Now()
	c.counter++
	id := fmt.Sprintf("%s_%d_%d", tool, c.counter, now.UnixMilli())
	c.active[id] = &activeCall{id: id, tool: tool, info: info, started: now}
	c.toolStateLocked(tool).concurrent++
	c.mu.Unlock()

	c.publish(event.Event{
		Type:      EventToolCallStart,
		SessionID: info.SessionID,
		TraceID:   info.TraceID,
		StepID:    info.StepID,
		Attrs: map[string]any{
			"tool":    tool,
			"call_id": id,
			"params":  info.Params,
		},
	})
	return id
}

// End finalizes a call started with Start. err == nil counts as
// success. An unknown id (already ended, or reaped as stale) logs a
// warning and changes nothing.
func (c *Collector) End(callID string, callErr error) {
	c.mu.Lock()
	call, ok := c.active[callID]
	if !ok {
		c.mu.Unlock()
		c.logger.Warn("end for unknown tool call", "call_id", callID)
		return
	}
	delete(c.active, callID)

	now := c.clock.Now()
	duration := now.Sub(call.started)
	seconds := duration.Seconds()

	ts := c.toolStateLocked(call.tool)
	ts.totalCalls++
	if callErr != nil {
		ts.failedCalls++
		ts.recentErrors = append(ts.recentErrors, truncate(callErr.Error(), errorMessageLimit))
		if len(ts.recentErrors) > recentErrorLimit {
			ts.recentErrors = ts.recentErrors[len(ts.recentErrors)-recentErrorLimit:]
		}
	} else {
		ts.successfulCalls++
	}
	ts.totalDuration += seconds
	if ts.totalCalls == 1 || seconds < ts.minDuration {
		ts.minDuration = seconds
	}
	if seconds > ts.maxDuration {
		ts.maxDuration = seconds
	}
	ts.samples = append(ts.samples, seconds)
	if len(ts.samples) > c.sampleLimit {
		ts.samples = ts.samples[len(ts.samples)-c.sampleLimit:]
	}
	ts.lastCalled = now
	if ts.concurrent--; ts.concurrent < 0 {
		ts.concurrent = 0
	}

	c.history = append(c.history, callRecord{
		tool:     call.tool,
		started:  call.started,
		duration: duration,
		failed:   callErr != nil,
	})
	c.mu.Unlock()

	attrs := map[string]any{
		"tool":     call.tool,
		"call_id":  callID,
		"duration": seconds,
		"status":   "ok",
	}
	if callErr != nil {
		attrs["status"] = "err"
		attrs["error"] = truncate(callErr.Error(), errorMessageLimit)
	}
	c.publish(event.Event{
		Type:      EventToolCallEnd,
		SessionID: call.info.SessionID,
		TraceID:   call.info.TraceID,
		StepID:    call.info.StepID,
		Attrs:     attrs,
	})
}

// toolStateLocked returns the tool's aggregate, creating it on first
// sight. Caller holds c.mu.
func (c *Collector) toolStateLocked(tool string) *toolState {
	ts, ok := c.tools[tool]
	if !ok {
		ts = &toolState{}
		c.tools[tool] = ts
	}
	return ts
}

// publish best-effort emits an event. Publication happens outside the
// collector's lock; a nil log means metrics-only operation.
func (c *Collector) publish(e event.Event) {
	if c.log == nil {
		return
	}
	c.log.Publish(e)
}

// Run executes the periodic sweep until ctx is cancelled: completed
// records older than the retention window are discarded, and calls in
// flight longer than StaleAfter are reaped with a warning (their
// durations are never folded into the aggregates).
func (c *Collector) Run(ctx context.Context) {
	ticker := c.clock.NewTicker(c.cleanupEvry)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Collector) sweep() {
	now := c.clock.Now()
	cutoff := now.Add(-c.retention)

	c.mu.Lock()
	kept := c.history[:0]
	for _, record := range c.history {
		if record.started.After(cutoff) {
			kept = append(kept, record)
		}
	}
	pruned := len(c.history) - len(kept)
	c.history = kept

	var stale []*activeCall
	for id, call := range c.active {
		if now.Sub(call.started) > c.staleAfter {
			delete(c.active, id)
			ts := c.toolStateLocked(call.tool)
			if ts.concurrent--; ts.concurrent < 0 {
				ts.concurrent = 0
			}
			stale = append(stale, call)
		}
	}
	c.mu.Unlock()

	for _, call := range stale {
		c.logger.Warn("abandoned tool call reaped",
			"call_id", call.id,
			"tool", call.tool,
			"in_flight", now.Sub(call.started).String(),
		)
	}
	if pruned > 0 {
		c.logger.Debug("pruned completed call records", "count", pruned)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
