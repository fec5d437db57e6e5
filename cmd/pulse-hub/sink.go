// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"

	"github.com/feynmancraft/pulse/lib/archive"
)

// runArchiveSink copies every sequenced event into the archive writer.
// The sink is an ordinary subscriber: if the archive cannot keep up
// its queue fills and events drop there, never stalling a publisher.
// Returns when the log closes (after draining the queue), the writer
// closes, or ctx is cancelled.
func (h *Hub) runArchiveSink(ctx context.Context, writer *archive.Writer) {
	sub := h.log.SubscribeFrom(0)
	defer sub.Close()

	for {
		e, err := sub.Next(ctx)
		if err != nil {
			return
		}
		if e.Synthetic() {
			// Heartbeats and ready markers reuse sequence numbers;
			// archiving them would corrupt the segment ranges.
			continue
		}
		if err := writer.Append(e); err != nil {
			if errors.Is(err, archive.ErrWriterClosed) {
				return
			}
			h.logger.Error("archive append failed", "seq", e.Sequence, "error", err)
		}
	}
}
