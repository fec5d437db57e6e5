// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"errors"
	"testing"
	"time"
)

func TestHeatmapBucketsNewestFirst(t *testing.T) {
	t.Parallel()
	c, fake := newTestCollector(Options{})

	run(c, fake, "kb_search", 100*time.Millisecond, nil)
	fake.Advance(time.Hour)
	run(c, fake, "kb_search", 200*time.Millisecond, nil)
	run(c, fake, "kb_search", 400*time.Millisecond, errors.New("boom"))
	fake.Advance(30 * time.Minute)

	buckets := c.Heatmap(4)
	if len(buckets) != 4 {
		t.Fatalf("len(buckets) = %d, want 4", len(buckets))
	}

	nowSeconds := float64(fake.Now().UnixNano()) / 1e9
	approx(t, "buckets[0].Timestamp", buckets[0].Timestamp, nowSeconds)
	for i := 1; i < len(buckets); i++ {
		approx(t, "bucket spacing", buckets[i-1].Timestamp-buckets[i].Timestamp, 3600)
		if want := int64(buckets[i].Timestamp / 3600); buckets[i].Hour != want {
			t.Errorf("buckets[%d].Hour = %d, want %d", i, buckets[i].Hour, want)
		}
	}

	if buckets[0].Calls != 2 || buckets[0].Errors != 1 {
		t.Errorf("buckets[0] = %d calls, %d errors, want 2 and 1", buckets[0].Calls, buckets[0].Errors)
	}
	approx(t, "buckets[0].AvgDuration", buckets[0].AvgDuration, 0.3)

	if buckets[1].Calls != 1 || buckets[1].Errors != 0 {
		t.Errorf("buckets[1] = %d calls, %d errors, want 1 and 0", buckets[1].Calls, buckets[1].Errors)
	}
	approx(t, "buckets[1].AvgDuration", buckets[1].AvgDuration, 0.1)

	for i := 2; i < len(buckets); i++ {
		if buckets[i].Calls != 0 || buckets[i].Errors != 0 || buckets[i].AvgDuration != 0 {
			t.Errorf("buckets[%d] = %+v, want zero-filled", i, buckets[i])
		}
	}
}

func TestHeatmapZeroFilledWhenIdle(t *testing.T) {
	t.Parallel()
	c, _ := newTestCollector(Options{})

	buckets := c.Heatmap(24)
	if len(buckets) != 24 {
		t.Fatalf("len(buckets) = %d, want 24", len(buckets))
	}
	for i, b := range buckets {
		if b.Calls != 0 || b.Errors != 0 || b.AvgDuration != 0 {
			t.Errorf("buckets[%d] = %+v, want zero-filled", i, b)
		}
	}
}

func TestHeatmapDefaultsToDay(t *testing.T) {
	t.Parallel()
	c, _ := newTestCollector(Options{})
	if got := len(c.Heatmap(0)); got != 24 {
		t.Errorf("Heatmap(0) returned %d buckets, want 24", got)
	}
	if got := len(c.Heatmap(-3)); got != 24 {
		t.Errorf("Heatmap(-3) returned %d buckets, want 24", got)
	}
}

func TestPercentile(t *testing.T) {
	t.Parallel()
	samples := []float64{0.7, 0.1, 1.0, 0.4, 0.2, 0.9, 0.3, 0.8, 0.5, 0.6}

	approx(t, "p50", percentile(samples, 0.50), 0.6)
	approx(t, "p95", percentile(samples, 0.95), 1.0)
	approx(t, "p99", percentile(samples, 0.99), 1.0)
	approx(t, "p0", percentile(samples, 0), 0.1)

	if samples[0] != 0.7 {
		t.Error("percentile sorted the caller's slice")
	}
	approx(t, "single sample", percentile([]float64{2.5}, 0.95), 2.5)
	approx(t, "empty sample", percentile(nil, 0.5), 0)
}

func TestCategorize(t *testing.T) {
	t.Parallel()
	cases := []struct {
		tool string
		want string
	}{
		{"particle_physics_mcp", "mcp"},
		{"get_particle_properties", "mcp"},
		{"Physics_MCP", "mcp"},
		{"kb_search", "search"},
		{"retrieve_examples", "search"},
		{"search_validator", "search"},
		{"validate_diagram", "validation"},
		{"syntax_check", "validation"},
		{"tikz_generator", "generation"},
		{"diagram_planner", "generation"},
		{"latex_compiler", "compilation"},
		{"compile_pdf", "compilation"},
		{"intent_analyzer", "analysis"},
		{"", "analysis"},
	}
	for _, tc := range cases {
		if got := Categorize(tc.tool); got != tc.want {
			t.Errorf("Categorize(%q) = %q, want %q", tc.tool, got, tc.want)
		}
	}
}

func TestSnapshotCoversAllTools(t *testing.T) {
	t.Parallel()
	c, fake := newTestCollector(Options{})

	run(c, fake, "tikz_generator", 100*time.Millisecond, nil)
	run(c, fake, "kb_search", 200*time.Millisecond, nil)
	c.Start("latex_compiler", CallInfo{})

	snap := c.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len(Snapshot()) = %d, want 3", len(snap))
	}
	if m := snap["tikz_generator"]; m.TotalCalls != 1 || m.Category != "generation" {
		t.Errorf("tikz_generator snapshot = %+v", m)
	}
	if m := snap["latex_compiler"]; m.TotalCalls != 0 || m.ConcurrentCalls != 1 {
		t.Errorf("latex_compiler snapshot = %+v", m)
	}
	if _, ok := c.ToolSnapshot("never_called"); ok {
		t.Error("ToolSnapshot reported an unseen tool")
	}
}
