// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive persists published events to disk for post-mortem
// analysis: an append-only sequence of JSONL segments, compressed with
// zstd (default), lz4, or stored raw, rotated by on-disk size.
//
// Each finished segment gets one line in the directory's segments.json
// index recording its sequence range, event count, byte size, and a
// BLAKE3 digest of the file as written. [Reader] walks the index in
// order, optionally verifying digests, and streams events back through
// sequence, type, and trace filters.
//
// The archive is a write-only export, not a recovery source: the hub
// never reads it back, and a segment left unindexed by a crash is
// ignored rather than repaired.
package archive
