// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"encoding/json"
	"fmt"
)

// Well-known event types. The type tag is an open namespace — these
// constants cover the events Pulse itself emits; workflow code is free
// to publish its own dotted names beside them.
const (
	// TypeHeartbeat is synthesized by a Subscription after an idle
	// interval. Heartbeats are never stored or sequenced.
	TypeHeartbeat = "heartbeat"

	// TypeServerReady marks the transition from replay to live
	// delivery on a subscription, and is also published (sequenced)
	// once by the hub at startup.
	TypeServerReady = "server.ready"

	// Session lifecycle events emitted by the Bridge.
	TypeJobStart = "job.start"
	TypeJobEnd   = "job.end"
	TypeJobError = "job.error"

	// Workflow stage and agent-transfer events emitted by the Bridge.
	TypeStepTransfer = "step.transfer"

	// Tool invocation events emitted by the Bridge.
	TypeToolStart = "tool.start"
	TypeToolEnd   = "tool.end"
)

// Verbosity levels stamped into the "level" attribute by the Bridge.
// Consumers filter on them; the log itself does not interpret levels.
const (
	LevelCore     = 1
	LevelStandard = 2
	LevelDebug    = 3
)

// Event is the envelope carried by the log. An event is immutable once
// published: the log stamps Sequence (and Timestamp when zero) and
// shares the value with every subscriber, so callers must not mutate
// Attrs after handing an event to [Log.Publish].
//
// The wire form (JSON) flattens Attrs beside the envelope keys:
//
//	{"seq":12,"ts":1723600000.25,"type":"tool.start","traceId":"tr-x",...}
//
// Envelope keys win when an attribute uses the same name.
type Event struct {
	// Sequence is assigned by the log at publish: strictly increasing,
	// gap-free, starting at 1. Synthetic frames (heartbeats, ready
	// markers) carry the log's current counter instead of a fresh one.
	Sequence uint64

	// Timestamp is epoch seconds. Zero means "stamp at publish".
	Timestamp float64

	// Type is the required dotted event tag, e.g. "tool.start".
	Type string

	// Correlation ids. All optional, all opaque to the log.
	SessionID string
	TraceID   string
	StepID    string

	// Attrs carries the type-specific fields.
	Attrs map[string]any

	// synthetic marks frames a Subscription fabricated (heartbeats,
	// ready markers) as opposed to sequenced log entries. Never set on
	// published events and never serialized.
	synthetic bool
}

// envelope keys reserved in the wire form. Attributes with these names
// are shadowed by the envelope on output and captured into envelope
// fields on input.
const (
	keySeq       = "seq"
	keyTimestamp = "ts"
	keyType      = "type"
	keySessionID = "sessionId"
	keyTraceID   = "traceId"
	keyStepID    = "stepId"
)

// MarshalJSON renders the flattened wire form.
func (e Event) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Attrs)+6)
	for k, v := range e.Attrs {
		m[k] = v
	}
	m[keySeq] = e.Sequence
	m[keyTimestamp] = e.Timestamp
	m[keyType] = e.Type
	if e.SessionID != "" {
		m[keySessionID] = e.SessionID
	}
	if e.TraceID != "" {
		m[keyTraceID] = e.TraceID
	}
	if e.StepID != "" {
		m[keyStepID] = e.StepID
	}
	return json.Marshal(m)
}

// UnmarshalJSON parses the flattened wire form: envelope keys are
// captured into their fields, everything else lands in Attrs.
func (e *Event) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	parsed, err := FromMap(m)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// FromMap builds an Event from a decoded wire map, the form the CBOR
// ingest path produces. Envelope keys are removed from m and the
// remainder becomes Attrs, so the caller yields ownership of the map.
// Numeric envelope values may arrive at any width the decoder chose.
func FromMap(m map[string]any) (Event, error) {
	var e Event
	if v, ok := m[keySeq]; ok {
		f, ok := asFloat(v)
		if !ok || f < 0 {
			return Event{}, fmt.Errorf("event: seq must be a non-negative number, got %v", v)
		}
		e.Sequence = uint64(f)
		delete(m, keySeq)
	}
	if v, ok := m[keyTimestamp]; ok {
		f, ok := asFloat(v)
		if !ok {
			return Event{}, fmt.Errorf("event: ts must be a number, got %v", v)
		}
		e.Timestamp = f
		delete(m, keyTimestamp)
	}
	if v, ok := m[keyType]; ok {
		s, ok := v.(string)
		if !ok {
			return Event{}, fmt.Errorf("event: type must be a string, got %v", v)
		}
		e.Type = s
		delete(m, keyType)
	}
	e.SessionID = takeString(m, keySessionID)
	e.TraceID = takeString(m, keyTraceID)
	e.StepID = takeString(m, keyStepID)
	if len(m) > 0 {
		e.Attrs = m
	}
	return e, nil
}

// asFloat widens any numeric wire value to float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// takeString removes key from m and returns its value when it is a
// string. Non-string values stay in m as ordinary attributes.
func takeString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			delete(m, key)
			return s
		}
	}
	return ""
}

// Attr returns a single attribute value, nil when absent.
func (e Event) Attr(key string) any {
	return e.Attrs[key]
}

// Level returns the verbosity level carried in the "level" attribute,
// or fallback when the attribute is absent or not a number.
func (e Event) Level(fallback int) int {
	switch v := e.Attrs["level"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// Synthetic reports whether the event is a per-subscription frame
// (heartbeat or ready marker) rather than a sequenced log entry.
// Synthetic frames reuse the log's current counter, so their sequence
// numbers duplicate real events' — consumers that persist or dedupe by
// sequence must skip them. The hub's one sequenced startup
// server.ready announcement is NOT synthetic; only frames fabricated
// by a Subscription are.
func (e Event) Synthetic() bool {
	return e.synthetic
}
