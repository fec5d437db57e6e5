// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package event

import "testing"

func seqEvent(seq uint64) Event {
	return Event{Sequence: seq, Type: "test.event"}
}

func TestRingAppendBelowCapacity(t *testing.T) {
	t.Parallel()
	r := newRing(4)
	for seq := uint64(1); seq <= 3; seq++ {
		r.append(seqEvent(seq))
	}

	if got := r.len(); got != 3 {
		t.Fatalf("len = %d, want 3", got)
	}
	oldest, _ := r.oldest()
	newest, _ := r.newest()
	if oldest.Sequence != 1 || newest.Sequence != 3 {
		t.Errorf("bounds = %d..%d, want 1..3", oldest.Sequence, newest.Sequence)
	}
}

func TestRingEvictsOldest(t *testing.T) {
	t.Parallel()
	r := newRing(3)
	for seq := uint64(1); seq <= 5; seq++ {
		r.append(seqEvent(seq))
	}

	if got := r.len(); got != 3 {
		t.Fatalf("len = %d, want 3", got)
	}
	oldest, _ := r.oldest()
	newest, _ := r.newest()
	if oldest.Sequence != 3 || newest.Sequence != 5 {
		t.Errorf("bounds = %d..%d, want 3..5", oldest.Sequence, newest.Sequence)
	}

	// Order is preserved across the wrap.
	want := uint64(3)
	for i := 0; i < r.len(); i++ {
		if got := r.at(i).Sequence; got != want {
			t.Errorf("at(%d) = %d, want %d", i, got, want)
		}
		want++
	}
}

func TestRingEmpty(t *testing.T) {
	t.Parallel()
	r := newRing(2)
	if _, ok := r.oldest(); ok {
		t.Error("oldest() on empty ring reported ok")
	}
	if _, ok := r.newest(); ok {
		t.Error("newest() on empty ring reported ok")
	}
	if got := r.since(0); got != nil {
		t.Errorf("since(0) = %v, want nil", got)
	}
}

func TestRingSince(t *testing.T) {
	t.Parallel()
	r := newRing(4)
	for seq := uint64(1); seq <= 6; seq++ {
		r.append(seqEvent(seq))
	}
	// Retained: 3,4,5,6.

	tests := []struct {
		after uint64
		want  []uint64
	}{
		{after: 0, want: []uint64{3, 4, 5, 6}},
		{after: 3, want: []uint64{4, 5, 6}},
		{after: 5, want: []uint64{6}},
		{after: 6, want: nil},
		{after: 99, want: nil},
	}
	for _, tt := range tests {
		got := r.since(tt.after)
		if len(got) != len(tt.want) {
			t.Errorf("since(%d) returned %d events, want %d", tt.after, len(got), len(tt.want))
			continue
		}
		for i, e := range got {
			if e.Sequence != tt.want[i] {
				t.Errorf("since(%d)[%d] = %d, want %d", tt.after, i, e.Sequence, tt.want[i])
			}
		}
	}
}
