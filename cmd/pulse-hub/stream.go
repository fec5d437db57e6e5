// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/feynmancraft/pulse/event"
)

// handleEvents serves the SSE stream. Real events carry an id: line
// with their sequence so reconnecting EventSource clients resume
// automatically; heartbeats and ready markers are data-only frames
// because their sequence numbers duplicate real events'.
//
// The stream ends when the client disconnects, the server shuts down
// (the request context is derived from the serve context), or the log
// closes.
func (h *Hub) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := h.subscribeFromRequest(r)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Tell nginx-style proxies not to buffer; frames must reach the
	// browser as they happen.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		e, err := sub.Next(r.Context())
		if err != nil {
			return
		}
		data, err := json.Marshal(e)
		if err != nil {
			h.logger.Warn("marshaling event for stream", "seq", e.Sequence, "error", err)
			continue
		}
		if !e.Synthetic() {
			fmt.Fprintf(w, "id: %d\n", e.Sequence)
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

// subscribeFromRequest picks the stream's resume point. The
// Last-Event-ID header (set by reconnecting EventSource clients) wins
// over the ?since query parameter. A malformed value means live-only:
// a client that cannot say where it was starts from now.
func (h *Hub) subscribeFromRequest(r *http.Request) *event.Subscription {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("since")
	}
	if raw == "" {
		return h.log.Subscribe()
	}
	since, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		h.logger.Debug("malformed stream resume position, starting live", "value", raw)
		return h.log.Subscribe()
	}
	return h.log.SubscribeFrom(since)
}
