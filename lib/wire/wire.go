// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Batch is the ingest request: a named source plus its events, in
// publish order. Events are flattened wire maps; the hub parses and
// validates each one.
type Batch struct {
	Source string           `cbor:"source" json:"source"`
	Events []map[string]any `cbor:"events" json:"events"`
}

// Response is the ingest reply. Accepted counts the events actually
// published, which can be less than the batch size when some events
// were malformed.
type Response struct {
	OK       bool   `cbor:"ok" json:"ok"`
	Accepted int    `cbor:"accepted" json:"accepted"`
	Error    string `cbor:"error,omitempty" json:"error,omitempty"`
}

// DefaultMaxRequestBytes caps a single ingest request. Generous for
// event batches; a forwarder flushing every second stays well under it.
const DefaultMaxRequestBytes = 1 << 20
