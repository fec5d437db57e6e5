// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/feynmancraft/pulse/lib/clock"
)

// Stage and tool status values carried in the "status" attribute.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusErr     = "err"
)

// maxErrorLen bounds error messages carried in event payloads so a
// pathological error cannot bloat the stream.
const maxErrorLen = 200

// NewTraceID returns a fresh workflow trace id, "tr-" plus the first
// uuid segment.
func NewTraceID() string { return "tr-" + shortID() }

// NewStepID returns a fresh step id, "st-" plus the first uuid segment.
func NewStepID() string { return "st-" + shortID() }

func shortID() string { return uuid.NewString()[:8] }

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	// Level is stamped into the "level" attribute of stage, transfer,
	// and tool events: 1 core, 2 standard, 3 debug. Default
	// LevelStandard. Job lifecycle events are always LevelCore.
	Level int

	// Clock supplies stage timing. Default clock.Real().
	Clock clock.Clock
}

// Bridge publishes the workflow's structured events so instrumentation
// code never hand-builds attribute maps. All methods return the
// assigned sequence and never fail; a full subscriber queue is the
// subscriber's problem, not the workflow's.
type Bridge struct {
	log   *Log
	clock clock.Clock
	level int
}

// NewBridge creates a Bridge publishing into log.
func NewBridge(log *Log, opts BridgeOptions) *Bridge {
	if log == nil {
		panic("event: NewBridge requires a log")
	}
	if opts.Level == 0 {
		opts.Level = LevelStandard
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Bridge{log: log, clock: opts.Clock, level: opts.Level}
}

// JobStart announces a workflow session. Level core.
func (b *Bridge) JobStart(sessionID, traceID string, attrs map[string]any) uint64 {
	return b.emit(TypeJobStart, sessionID, traceID, "", LevelCore, attrs)
}

// JobEnd announces successful session completion. Level core.
func (b *Bridge) JobEnd(sessionID, traceID string, attrs map[string]any) uint64 {
	return b.emit(TypeJobEnd, sessionID, traceID, "", LevelCore, attrs)
}

// JobError announces session failure with the truncated error message.
// Level core.
func (b *Bridge) JobError(sessionID, traceID string, err error) uint64 {
	return b.emit(TypeJobError, sessionID, traceID, "", LevelCore, map[string]any{
		"error": truncate(err.Error(), maxErrorLen),
	})
}

// Step publishes a workflow stage event, type "step.<stage>", with the
// acting agent and a status of running, ok, or err.
func (b *Bridge) Step(traceID, stepID, stage, agent, status string, attrs map[string]any) uint64 {
	merged := make(map[string]any, len(attrs)+2)
	for k, v := range attrs {
		merged[k] = v
	}
	merged["agent"] = agent
	merged["status"] = status
	return b.emit("step."+stage, "", traceID, stepID, b.level, merged)
}

// Transfer publishes a step.transfer event recording a hand-off from
// one agent to another.
func (b *Bridge) Transfer(traceID, fromAgent, toAgent string) uint64 {
	return b.emit(TypeStepTransfer, "", traceID, "", b.level, map[string]any{
		"from": fromAgent,
		"to":   toAgent,
	})
}

// ToolStart publishes a tool.start event with the call parameters.
func (b *Bridge) ToolStart(traceID, stepID, tool string, params map[string]any) uint64 {
	attrs := map[string]any{"tool": tool}
	if len(params) > 0 {
		attrs["params"] = params
	}
	return b.emit(TypeToolStart, "", traceID, stepID, b.level, attrs)
}

// ToolEnd publishes a tool.end event with the call latency and, on
// failure, the truncated error message.
func (b *Bridge) ToolEnd(traceID, stepID, tool string, latency time.Duration, err error) uint64 {
	attrs := map[string]any{
		"tool":       tool,
		"latency_ms": latency.Milliseconds(),
	}
	if err != nil {
		attrs["status"] = StatusErr
		attrs["error"] = truncate(err.Error(), maxErrorLen)
	} else {
		attrs["status"] = StatusOK
	}
	return b.emit(TypeToolEnd, "", traceID, stepID, b.level, attrs)
}

// Stage opens a scoped stage span: a running step event now, and an
// ok or err step event with latency when End is called.
func (b *Bridge) Stage(traceID, stage, agent string) *Stage {
	s := &Stage{
		bridge:  b,
		traceID: traceID,
		stepID:  NewStepID(),
		stage:   stage,
		agent:   agent,
		started: b.clock.Now(),
	}
	b.Step(traceID, s.stepID, stage, agent, StatusRunning, nil)
	return s
}

// emit copies attrs (callers keep ownership of their map), stamps the
// level, and publishes.
func (b *Bridge) emit(typ, sessionID, traceID, stepID string, level int, attrs map[string]any) uint64 {
	merged := make(map[string]any, len(attrs)+1)
	for k, v := range attrs {
		merged[k] = v
	}
	merged["level"] = level
	return b.log.Publish(Event{
		Type:      typ,
		SessionID: sessionID,
		TraceID:   traceID,
		StepID:    stepID,
		Attrs:     merged,
	})
}

// Stage is an in-flight workflow stage opened by [Bridge.Stage].
type Stage struct {
	bridge  *Bridge
	traceID string
	stepID  string
	stage   string
	agent   string
	started time.Time
	ended   bool
}

// StepID returns the span's step id, for correlating tool calls made
// within the stage.
func (s *Stage) StepID() string { return s.stepID }

// End closes the span, publishing the stage's ok or err event with
// its latency. Only the first call emits; later calls are no-ops.
func (s *Stage) End(err error) {
	if s.ended {
		return
	}
	s.ended = true

	latency := s.bridge.clock.Now().Sub(s.started)
	attrs := map[string]any{"latency_ms": latency.Milliseconds()}
	status := StatusOK
	if err != nil {
		status = StatusErr
		attrs["error"] = truncate(err.Error(), maxErrorLen)
	}
	s.bridge.Step(s.traceID, s.stepID, s.stage, s.agent, status, attrs)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
