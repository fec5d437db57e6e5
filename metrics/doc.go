// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics tracks per-tool call performance for the workflow's
// MCP and internal tools: counts, duration aggregates and percentiles,
// success rates, recent errors, concurrency, and an hourly activity
// heatmap.
//
// A [Collector] is explicit state shared by instrumented call sites.
// Each call is bracketed by Start/End (or the scoped [Measurement]),
// folded into its tool's aggregate on completion, and retained in a
// bounded history that feeds the trailing-hour rate and the heatmap.
// [Collector.Run] sweeps that history against the retention window and
// reaps calls abandoned in flight.
//
// The collector publishes tool_call_start/tool_call_end events into an
// event.Log when one is attached; publication happens outside the
// collector's lock and a nil log disables it. Snapshots are deep
// copies taken under the lock and safe to serialize concurrently with
// new calls.
package metrics
