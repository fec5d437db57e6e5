// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"encoding/json"
	"testing"
)

func TestEventMarshalFlattensAttrs(t *testing.T) {
	t.Parallel()
	e := Event{
		Sequence:  12,
		Timestamp: 1723600000.25,
		Type:      "tool.start",
		TraceID:   "tr-abc12345",
		StepID:    "st-def67890",
		Attrs: map[string]any{
			"tool":  "particle_search",
			"level": 2,
		},
	}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("re-decode: %v", err)
	}

	if got := wire["seq"]; got != float64(12) {
		t.Errorf("seq = %v, want 12", got)
	}
	if got := wire["ts"]; got != 1723600000.25 {
		t.Errorf("ts = %v, want 1723600000.25", got)
	}
	if got := wire["type"]; got != "tool.start" {
		t.Errorf("type = %v, want tool.start", got)
	}
	if got := wire["traceId"]; got != "tr-abc12345" {
		t.Errorf("traceId = %v, want tr-abc12345", got)
	}
	if got := wire["tool"]; got != "particle_search" {
		t.Errorf("attr tool = %v, want particle_search", got)
	}
	if _, present := wire["attrs"]; present {
		t.Error("attrs must be flattened, not nested")
	}
	if _, present := wire["sessionId"]; present {
		t.Error("empty sessionId must be omitted")
	}
}

func TestEventMarshalEnvelopeWinsCollision(t *testing.T) {
	t.Parallel()
	e := Event{
		Sequence:  7,
		Timestamp: 100,
		Type:      "job.start",
		Attrs: map[string]any{
			"seq":  999,
			"type": "spoofed",
		},
	}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	if got := wire["seq"]; got != float64(7) {
		t.Errorf("seq = %v, want envelope value 7", got)
	}
	if got := wire["type"]; got != "job.start" {
		t.Errorf("type = %v, want envelope value job.start", got)
	}
}

func TestEventUnmarshal(t *testing.T) {
	t.Parallel()
	raw := `{"seq":42,"ts":1723600001.5,"type":"step.transfer","sessionId":"sess-1",
		"traceId":"tr-x","from":"planner","to":"generator","level":2}`

	var e Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if e.Sequence != 42 {
		t.Errorf("Sequence = %d, want 42", e.Sequence)
	}
	if e.Timestamp != 1723600001.5 {
		t.Errorf("Timestamp = %v, want 1723600001.5", e.Timestamp)
	}
	if e.Type != "step.transfer" {
		t.Errorf("Type = %q, want step.transfer", e.Type)
	}
	if e.SessionID != "sess-1" || e.TraceID != "tr-x" || e.StepID != "" {
		t.Errorf("ids = %q/%q/%q, want sess-1/tr-x/", e.SessionID, e.TraceID, e.StepID)
	}
	if got := e.Attrs["from"]; got != "planner" {
		t.Errorf("attr from = %v, want planner", got)
	}
	for _, reserved := range []string{"seq", "ts", "type", "sessionId", "traceId"} {
		if _, present := e.Attrs[reserved]; present {
			t.Errorf("envelope key %q leaked into Attrs", reserved)
		}
	}
}

func TestEventUnmarshalRejectsBadEnvelope(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		`{"type":5}`,
		`{"type":"x","seq":"yes"}`,
		`{"type":"x","seq":-3}`,
		`{"type":"x","ts":"later"}`,
		`not json`,
	} {
		var e Event
		if err := json.Unmarshal([]byte(raw), &e); err == nil {
			t.Errorf("Unmarshal(%s) succeeded, want error", raw)
		}
	}
}

func TestEventUnmarshalNonStringIDStaysInAttrs(t *testing.T) {
	t.Parallel()
	var e Event
	if err := json.Unmarshal([]byte(`{"type":"x","sessionId":17}`), &e); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if e.SessionID != "" {
		t.Errorf("SessionID = %q, want empty", e.SessionID)
	}
	if got := e.Attrs["sessionId"]; got != float64(17) {
		t.Errorf("attr sessionId = %v, want 17", got)
	}
}

func TestFromMapWidensNumericTypes(t *testing.T) {
	t.Parallel()
	// CBOR decoders hand back uint64/int64 where JSON would give
	// float64; the envelope must accept both.
	e, err := FromMap(map[string]any{
		"seq":     uint64(9),
		"ts":      int64(1723600002),
		"type":    "tool.start",
		"traceId": "tr-cbor1234",
		"tool":    "kb_search",
		"level":   uint64(2),
	})
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	if e.Sequence != 9 || e.Timestamp != 1723600002 || e.Type != "tool.start" {
		t.Errorf("envelope = %d/%v/%q, want 9/1723600002/tool.start", e.Sequence, e.Timestamp, e.Type)
	}
	if e.TraceID != "tr-cbor1234" {
		t.Errorf("TraceID = %q, want tr-cbor1234", e.TraceID)
	}
	if got := e.Attrs["tool"]; got != "kb_search" {
		t.Errorf("attr tool = %v, want kb_search", got)
	}

	if _, err := FromMap(map[string]any{"type": "x", "seq": "nine"}); err == nil {
		t.Error("FromMap accepted a string seq")
	}
	if _, err := FromMap(map[string]any{"type": "x", "ts": []any{1}}); err == nil {
		t.Error("FromMap accepted a non-numeric ts")
	}
}

func TestEventRoundtrip(t *testing.T) {
	t.Parallel()
	original := Event{
		Sequence:  3,
		Timestamp: 1723600000,
		Type:      "tool.end",
		TraceID:   "tr-roundtrip",
		Attrs: map[string]any{
			"tool":       "latex_compile",
			"latency_ms": float64(412),
			"status":     "ok",
		},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.Sequence != original.Sequence || decoded.Type != original.Type ||
		decoded.TraceID != original.TraceID || decoded.Timestamp != original.Timestamp {
		t.Errorf("envelope mismatch: got %+v, want %+v", decoded, original)
	}
	if len(decoded.Attrs) != len(original.Attrs) {
		t.Errorf("attrs = %v, want %v", decoded.Attrs, original.Attrs)
	}
	for k, want := range original.Attrs {
		if got := decoded.Attrs[k]; got != want {
			t.Errorf("attr %s = %v, want %v", k, got, want)
		}
	}
}

func TestEventLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		attrs    map[string]any
		fallback int
		want     int
	}{
		{name: "int level", attrs: map[string]any{"level": 1}, fallback: 2, want: 1},
		{name: "json float level", attrs: map[string]any{"level": float64(3)}, fallback: 2, want: 3},
		{name: "absent", attrs: nil, fallback: 2, want: 2},
		{name: "wrong type", attrs: map[string]any{"level": "high"}, fallback: 1, want: 1},
	}
	for _, tt := range tests {
		e := Event{Type: "x", Attrs: tt.attrs}
		if got := e.Level(tt.fallback); got != tt.want {
			t.Errorf("%s: Level(%d) = %d, want %d", tt.name, tt.fallback, got, tt.want)
		}
	}
}
