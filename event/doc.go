// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package event provides the ordered, replayable in-process event log
// that every Pulse component publishes into and every consumer (SSE
// stream, archive sink, dashboard) subscribes to.
//
// The log assigns each published event a strictly increasing, gap-free
// sequence number and retains a bounded ring of recent events for
// replay. Subscribers pull frames through a [Subscription]: first any
// replayed history, then a single server-ready marker, then live
// events. Delivery to a subscriber is a non-blocking offer into a
// bounded queue — a slow consumer loses events (counted and logged)
// but never stalls a producer or another subscriber.
//
// Key exports:
//
//   - [Event] -- the envelope: sequence, timestamp, type, correlation
//     ids, and an open attribute map flattened into the wire JSON
//   - [Log] -- Publish/Subscribe/Stats/Close
//   - [Subscription] -- Next(ctx) with idle heartbeat synthesis
//   - [Bridge] -- typed emit helpers for workflow instrumentation
//
// This package depends only on lib/clock.
package event
