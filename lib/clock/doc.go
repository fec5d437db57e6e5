// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable clock abstraction.
//
// Production code takes a [Clock] and is handed [Real]; tests hand it
// a [FakeClock] and drive every heartbeat, retention sweep, and retry
// backoff deterministically with [FakeClock.Advance], synchronizing
// on timer registration with [FakeClock.WaitForTimers].
package clock
