// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/feynmancraft/pulse/event"
	"github.com/feynmancraft/pulse/lib/wire"
)

// handleBatch publishes one socket batch. Invalid events are skipped
// with a warning, valid ones are published in request order; when any
// were skipped the response carries both the accepted count and an
// error, so the sender knows the batch will not improve on retry.
//
// Unlike /emit, client timestamps are kept: forwarded events happened
// at the recorded time, not at delivery. Sequence numbers are still
// assigned by the log.
func (h *Hub) handleBatch(_ context.Context, batch wire.Batch) (int, error) {
	accepted := 0
	for i, raw := range batch.Events {
		e, err := event.FromMap(raw)
		if err == nil && e.Type == "" {
			err = fmt.Errorf("event type is required")
		}
		if err != nil {
			h.eventsRejected.Add(1)
			h.logger.Warn("rejecting ingest event",
				"source", batch.Source,
				"index", i,
				"error", err,
			)
			continue
		}
		if e.Attrs == nil {
			e.Attrs = make(map[string]any, 1)
		}
		if _, ok := e.Attrs["source"]; !ok {
			e.Attrs["source"] = batch.Source
		}
		if h.log.Publish(e) == 0 {
			return accepted, fmt.Errorf("event log closed")
		}
		accepted++
	}

	h.batchesAccepted.Add(1)
	h.eventsAccepted.Add(uint64(accepted))

	if accepted < len(batch.Events) {
		return accepted, fmt.Errorf("%d of %d events invalid", len(batch.Events)-accepted, len(batch.Events))
	}
	h.logger.Debug("ingest batch published", "source", batch.Source, "events", accepted)
	return accepted, nil
}
