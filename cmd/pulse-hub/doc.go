// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// pulse-hub is the observability hub for diagram workflow runs. It
// owns the process-wide event log and tool metrics collector and
// exposes them over HTTP: an SSE stream of live events with replay,
// a manual emit endpoint, and the stats/metrics/heatmap queries the
// dashboard reads.
//
// Sidecar processes (the LaTeX compile server, MCP tool servers)
// submit event batches over a local Unix socket instead of HTTP; see
// lib/wire for the protocol. When an archive directory is configured
// every sequenced event is additionally persisted to compressed JSONL
// segments for post-mortem analysis with `pulse replay` and
// `pulse report`.
//
// Configuration comes from a YAML file named by --config or the
// PULSE_CONFIG environment variable; with neither set the built-in
// localhost defaults apply.
package main
