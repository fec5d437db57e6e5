// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"
	"testing"
	"time"

	"github.com/feynmancraft/pulse/event"
)

func TestFormatEventLine(t *testing.T) {
	t.Parallel()

	when := time.Date(2026, 3, 14, 9, 30, 5, 0, time.Local)
	e := event.Event{
		Sequence:  412,
		Timestamp: float64(when.Unix()),
		Type:      event.TypeToolEnd,
		TraceID:   "tr-9f2e41ac",
		Attrs: map[string]any{
			"tool":       "tikz_generator",
			"latency_ms": float64(1840),
			"status":     "ok",
			"level":      float64(2),
		},
	}

	line := formatEventLine(e, plainEventStyles)
	want := "09:30:05  #412  tool.end        tr-9f2e41ac  latency_ms=1840  status=ok  tool=tikz_generator"
	if line != want {
		t.Errorf("line = %q, want %q", line, want)
	}
}

func TestFormatEventLineErrorLast(t *testing.T) {
	t.Parallel()

	e := event.Event{
		Sequence: 7,
		Type:     event.TypeJobError,
		TraceID:  "tr-11aa22bb",
		Attrs: map[string]any{
			"error": "compilation failed",
			"agent": "latex_compiler",
		},
	}

	line := formatEventLine(e, plainEventStyles)
	if !strings.HasSuffix(line, `error="compilation failed"`) {
		t.Errorf("error attribute is not last: %q", line)
	}
	if !strings.Contains(line, "agent=latex_compiler") {
		t.Errorf("line dropped the agent attribute: %q", line)
	}
}

func TestFormatEventLineShowsSession(t *testing.T) {
	t.Parallel()

	e := event.Event{Sequence: 1, Type: event.TypeJobStart, SessionID: "demo"}
	line := formatEventLine(e, plainEventStyles)
	if !strings.Contains(line, "session=demo") {
		t.Errorf("line is missing the session: %q", line)
	}
}

func TestFormatAttrValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"bare string", "tikz_generator", "tikz_generator"},
		{"string with space", "undefined control sequence", `"undefined control sequence"`},
		{"empty string", "", `""`},
		{"integer float", float64(1840), "1840"},
		{"fractional float", 0.5, "0.5"},
		{"int", 42, "42"},
		{"bool", true, "true"},
		{"nil", nil, "null"},
		{"nested map", map[string]any{"a": float64(1)}, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := formatAttrValue(tt.value); got != tt.want {
				t.Errorf("formatAttrValue(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestFormatAttrValueStripsEscapes(t *testing.T) {
	t.Parallel()

	// Event payloads are untrusted; escape sequences must not reach
	// the terminal.
	got := formatAttrValue("\x1b[31mboom\x1b[0m")
	if got != "boom" {
		t.Errorf("formatAttrValue = %q, want %q", got, "boom")
	}

	got = formatAttrValue("line\r\nbreak")
	if got != `"line\r\nbreak"` {
		t.Errorf("control characters left unquoted: %q", got)
	}
}

func TestEventTime(t *testing.T) {
	t.Parallel()

	got := eventTime(1767690605.25)
	want := time.Unix(1767690605, 250000000)
	if !got.Equal(want) {
		t.Errorf("eventTime = %v, want %v", got, want)
	}
}

func TestFormatSeconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0s"},
		{0.087, "87ms"},
		{1.25, "1.25s"},
		{90, "1m30s"},
		{3725, "1h2m5s"},
	}
	for _, tt := range tests {
		if got := formatSeconds(tt.seconds); got != tt.want {
			t.Errorf("formatSeconds(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestMatchesType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		patterns  []string
		eventType string
		want      bool
	}{
		{"no patterns match everything", nil, "anything", true},
		{"exact match", []string{"job.start"}, "job.start", true},
		{"exact mismatch", []string{"job.start"}, "job.end", false},
		{"family prefix", []string{"step."}, "step.generation", true},
		{"family prefix takes transfer", []string{"step."}, "step.transfer", true},
		{"bare word is not a prefix", []string{"tool"}, "tool.start", false},
		{"any pattern suffices", []string{"job.error", "tool."}, "tool.end", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := matchesType(tt.patterns, tt.eventType); got != tt.want {
				t.Errorf("matchesType(%v, %q) = %v, want %v", tt.patterns, tt.eventType, got, tt.want)
			}
		})
	}
}
