// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"testing"

	"github.com/feynmancraft/pulse/event"
	"github.com/feynmancraft/pulse/lib/clock"
	"github.com/feynmancraft/pulse/lib/config"
)

func TestAnnounceReadyIsSequenced(t *testing.T) {
	t.Parallel()
	hub := newHub(config.Default(), quietLogger(), clock.Real())
	t.Cleanup(hub.log.Close)

	hub.announceReady("127.0.0.1:8001")

	sub := hub.log.SubscribeFrom(0)
	defer sub.Close()

	announcement, err := sub.Next(t.Context())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if announcement.Type != event.TypeServerReady {
		t.Fatalf("type = %q, want %q", announcement.Type, event.TypeServerReady)
	}
	if announcement.Sequence != 1 {
		t.Errorf("seq = %d, want 1", announcement.Sequence)
	}
	if announcement.Synthetic() {
		t.Error("startup announcement must be a sequenced event, not a per-subscription frame")
	}
	if announcement.Level(0) != event.LevelCore {
		t.Errorf("level = %d, want %d", announcement.Level(0), event.LevelCore)
	}
	if announcement.Attr("address") != "127.0.0.1:8001" {
		t.Errorf("address attr = %v, want the listen address", announcement.Attr("address"))
	}

	marker, err := sub.Next(t.Context())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !marker.Synthetic() {
		t.Error("expected the per-subscription ready marker after replay")
	}
}

func TestNewLoggerLevels(t *testing.T) {
	t.Parallel()
	tests := []struct {
		level string
		debug bool
		warn  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, true},
		{"error", false, false},
	}
	for _, tt := range tests {
		logger := newLogger(tt.level)
		if got := logger.Enabled(t.Context(), slog.LevelDebug); got != tt.debug {
			t.Errorf("%s: debug enabled = %v, want %v", tt.level, got, tt.debug)
		}
		if got := logger.Enabled(t.Context(), slog.LevelWarn); got != tt.warn {
			t.Errorf("%s: warn enabled = %v, want %v", tt.level, got, tt.warn)
		}
	}
}
