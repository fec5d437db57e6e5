// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package event

import "sort"

// ring is a fixed-capacity buffer of published events ordered by
// sequence. Appends evict the oldest entry once full. Not safe for
// concurrent use; the log's mutex guards it.
type ring struct {
	buf   []Event
	start int // index of the oldest entry
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Event, capacity)}
}

func (r *ring) append(e Event) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	// Full: overwrite the oldest slot and advance.
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) len() int { return r.count }

func (r *ring) at(i int) Event {
	return r.buf[(r.start+i)%len(r.buf)]
}

func (r *ring) oldest() (Event, bool) {
	if r.count == 0 {
		return Event{}, false
	}
	return r.at(0), true
}

func (r *ring) newest() (Event, bool) {
	if r.count == 0 {
		return Event{}, false
	}
	return r.at(r.count - 1), true
}

// since returns a copy of all retained events with sequence > seq, in
// ascending sequence order. Sequences in the ring are contiguous and
// sorted, so a binary search finds the cut point.
func (r *ring) since(seq uint64) []Event {
	first := sort.Search(r.count, func(i int) bool {
		return r.at(i).Sequence > seq
	})
	if first == r.count {
		return nil
	}
	out := make([]Event, 0, r.count-first)
	for i := first; i < r.count; i++ {
		out = append(out, r.at(i))
	}
	return out
}
