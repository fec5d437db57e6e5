// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Pulse's standard CBOR encoding configuration.
//
// Pulse uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: the SSE stream, dashboard HTTP
//     endpoints, CLI output, and archive segment lines.
//   - CBOR for the local ingest protocol: batches submitted over the
//     hub's Unix socket by forwarders and bridges.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every Pulse package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (the ingest socket):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Ingest protocol types carry `json` tags only: fxamacker/cbor v2
// reads `json` tags as fallback when `cbor` tags are absent, so a
// single tag controls field naming and omitempty for both formats.
package codec
