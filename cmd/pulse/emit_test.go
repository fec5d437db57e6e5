// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"reflect"
	"testing"

	"github.com/feynmancraft/pulse/event"
)

func TestBuildEvent(t *testing.T) {
	t.Parallel()

	e, err := buildEvent("tool.end",
		[]string{"tool=latex_compiler", "latency_ms=912", "ok=true", "note=first attempt"},
		"sess-1", "tr-9f2e41ac", "st-44cc00dd", 2)
	if err != nil {
		t.Fatalf("buildEvent failed: %v", err)
	}

	if e.Type != "tool.end" || e.SessionID != "sess-1" || e.TraceID != "tr-9f2e41ac" || e.StepID != "st-44cc00dd" {
		t.Errorf("envelope = %+v", e)
	}
	want := map[string]any{
		"tool":       "latex_compiler",
		"latency_ms": float64(912),
		"ok":         true,
		"note":       "first attempt",
		"level":      2,
	}
	if !reflect.DeepEqual(e.Attrs, want) {
		t.Errorf("attrs = %#v, want %#v", e.Attrs, want)
	}
}

func TestBuildEventNoAttrs(t *testing.T) {
	t.Parallel()

	e, err := buildEvent("server.ready", nil, "", "", "", 0)
	if err != nil {
		t.Fatalf("buildEvent failed: %v", err)
	}
	if e.Attrs != nil {
		t.Errorf("attrs = %#v, want nil", e.Attrs)
	}
}

func TestBuildEventRejectsBarePair(t *testing.T) {
	t.Parallel()

	if _, err := buildEvent("x", []string{"noequals"}, "", "", "", 0); err == nil {
		t.Error("bare attribute accepted")
	}
	if _, err := buildEvent("x", []string{"=value"}, "", "", "", 0); err == nil {
		t.Error("empty key accepted")
	}
}

func TestParseAttrValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want any
	}{
		{"912", float64(912)},
		{"0.5", float64(0.5)},
		{"true", true},
		{"null", nil},
		{`"42"`, "42"},
		{"tikz_generator", "tikz_generator"},
		{"07:30", "07:30"},
		{`{"nested":1}`, map[string]any{"nested": float64(1)}},
	}
	for _, tt := range tests {
		if got := parseAttrValue(tt.raw); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseAttrValue(%q) = %#v, want %#v", tt.raw, got, tt.want)
		}
	}
}

// A bare emit leaves every identity field empty; the hub accepts it.
func TestBuildEventMinimal(t *testing.T) {
	t.Parallel()

	e, err := buildEvent("deploy.done", nil, "", "", "", 0)
	if err != nil {
		t.Fatalf("buildEvent failed: %v", err)
	}
	if !reflect.DeepEqual(e, event.Event{Type: "deploy.done"}) {
		t.Errorf("event = %+v, want bare type only", e)
	}
}
