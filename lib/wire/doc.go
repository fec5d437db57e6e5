// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the sidecar ingest protocol: tool server
// processes (the LaTeX compile server, MCP sidecars) forward their
// events to the hub over a Unix socket.
//
// The protocol is one CBOR request per connection. The client writes a
// [Batch], the server publishes its events and answers with a
// [Response], and the connection closes. CBOR is self-delimiting so no
// framing is needed; requests are size-capped on read.
//
// [SocketServer] is the hub side, [Client] the sidecar side. Events
// travel as raw wire maps (the flattened JSON form of event.Event) and
// are validated by the hub, not the transport.
package wire
