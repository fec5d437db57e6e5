// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/feynmancraft/pulse/lib/clock"
)

const (
	// DefaultRingCapacity is how many recent events the log retains
	// for replay when Options.RingCapacity is zero.
	DefaultRingCapacity = 5000

	// DefaultQueueCapacity is the per-subscriber delivery queue
	// capacity when Options.QueueCapacity is zero.
	DefaultQueueCapacity = 2000

	// DefaultHeartbeatInterval is how long a Subscription.Next call
	// blocks without a frame before synthesizing a heartbeat.
	DefaultHeartbeatInterval = 5 * time.Second
)

var (
	// ErrClosed is returned by Subscription.Next once the log has shut
	// down and the subscription's queue is drained.
	ErrClosed = errors.New("event: log closed")

	// ErrSubscriptionClosed is returned by Subscription.Next after the
	// subscription itself was closed.
	ErrSubscriptionClosed = errors.New("event: subscription closed")
)

// Options configures a Log. The zero value is usable: every field has
// a default.
type Options struct {
	// RingCapacity bounds the replay buffer. Default 5000.
	RingCapacity int

	// QueueCapacity bounds each subscriber's delivery queue. A
	// subscriber whose queue is full loses the event being published.
	// Default 2000.
	QueueCapacity int

	// HeartbeatInterval is the idle time after which Next synthesizes
	// a heartbeat frame. Default 5s.
	HeartbeatInterval time.Duration

	// Clock supplies time. Default clock.Real().
	Clock clock.Clock

	// Logger receives drop warnings. Default slog.Default().
	Logger *slog.Logger
}

// Log is the ordered, replayable event log. One instance is shared by
// every producer and consumer in the process. All methods are safe for
// concurrent use.
type Log struct {
	clock             clock.Clock
	logger            *slog.Logger
	queueCapacity     int
	heartbeatInterval time.Duration

	// done is closed by Close to wake blocked subscribers.
	done chan struct{}

	mu        sync.Mutex
	seq       uint64
	ring      *ring
	subs      map[*Subscription]struct{}
	subID     uint64
	closed    bool
	started   time.Time
	published uint64
	dropped   uint64
}

// New creates a Log. Fields of opts left zero take their defaults.
func New(opts Options) *Log {
	if opts.RingCapacity <= 0 {
		opts.RingCapacity = DefaultRingCapacity
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Log{
		clock:             opts.Clock,
		logger:            opts.Logger,
		queueCapacity:     opts.QueueCapacity,
		heartbeatInterval: opts.HeartbeatInterval,
		done:              make(chan struct{}),
		ring:              newRing(opts.RingCapacity),
		subs:              make(map[*Subscription]struct{}),
		started:           opts.Clock.Now(),
	}
}

// dropRecord carries the context for a post-unlock drop warning.
type dropRecord struct {
	subscriber uint64
	total      uint64
}

// Publish assigns the next sequence number, stamps the timestamp when
// zero, appends the event to the replay ring, and offers it to every
// live subscriber queue. A full queue drops the event for that
// subscriber only. Publish never blocks on consumers and never fails;
// it returns the assigned sequence, or 0 when the log is closed.
//
// The channel offers happen under the same mutex that assigned the
// sequence, so every subscriber queue observes events in sequence
// order even with concurrent publishers. The offers are non-blocking
// and the drop warnings are logged after the lock is released.
func (l *Log) Publish(e Event) uint64 {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.logger.Warn("publish on closed event log", "event_type", e.Type)
		return 0
	}

	l.seq++
	e.Sequence = l.seq
	if e.Timestamp == 0 {
		e.Timestamp = epochSeconds(l.clock.Now())
	}
	e.synthetic = false
	l.ring.append(e)
	l.published++

	var drops []dropRecord
	for s := range l.subs {
		select {
		case s.queue <- e:
		default:
			s.dropped++
			l.dropped++
			drops = append(drops, dropRecord{subscriber: s.id, total: s.dropped})
		}
	}
	seq := e.Sequence
	l.mu.Unlock()

	for _, d := range drops {
		l.logger.Warn("subscriber queue full, event dropped",
			"subscriber", d.subscriber,
			"seq", seq,
			"event_type", e.Type,
			"subscriber_dropped", d.total,
		)
	}
	return seq
}

// Subscribe registers a live-only subscription: no replay, a ready
// marker, then every event published after this call (less any the
// subscriber was too slow for).
func (l *Log) Subscribe() *Subscription {
	return l.subscribe(0, false)
}

// SubscribeFrom registers a subscription that first replays retained
// events with sequence > after, in order, then delivers a ready
// marker, then live events. Registration and the replay snapshot are
// atomic: no event falls between replay and live, and none is
// delivered twice within one subscription.
func (l *Log) SubscribeFrom(after uint64) *Subscription {
	return l.subscribe(after, true)
}

func (l *Log) subscribe(after uint64, replay bool) *Subscription {
	s := &Subscription{
		log:    l,
		queue:  make(chan Event, l.queueCapacity),
		closed: make(chan struct{}),
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		s.state.Store(int32(StateClosed))
		return s
	}
	l.subID++
	s.id = l.subID
	if replay {
		s.replay = l.ring.since(after)
	}
	l.subs[s] = struct{}{}
	ready := l.syntheticLocked(TypeServerReady)
	s.ready = &ready
	l.mu.Unlock()

	if len(s.replay) > 0 {
		s.state.Store(int32(StateReplaying))
	}
	return s
}

// syntheticLocked builds a heartbeat or ready frame carrying the
// current sequence counter and subscriber count. Synthetic frames are
// not sequenced and never enter the ring. Caller holds l.mu.
func (l *Log) syntheticLocked(typ string) Event {
	return Event{
		Sequence:  l.seq,
		Timestamp: epochSeconds(l.clock.Now()),
		Type:      typ,
		Attrs: map[string]any{
			"active_subscribers": len(l.subs),
		},
		synthetic: true,
	}
}

func (l *Log) synthetic(typ string) Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.syntheticLocked(typ)
}

func (l *Log) remove(s *Subscription) {
	l.mu.Lock()
	delete(l.subs, s)
	l.mu.Unlock()
}

// Stats is a point-in-time snapshot of the log.
type Stats struct {
	ActiveSubscribers int `json:"active_subscribers"`

	// Ring occupancy and bound.
	RingSize     int `json:"ring_buffer_size"`
	RingCapacity int `json:"ring_buffer_max"`

	// CurrentSeq is the sequence of the most recently published event,
	// 0 before the first publish.
	CurrentSeq uint64 `json:"current_seq"`

	// OldestSeq and NewestSeq bound the replayable window. Both nil
	// while the ring is empty.
	OldestSeq *uint64 `json:"oldest_seq"`
	NewestSeq *uint64 `json:"newest_seq"`

	// Published and Dropped count events accepted and events lost to
	// full subscriber queues (one drop per affected subscriber).
	Published uint64 `json:"events_published"`
	Dropped   uint64 `json:"events_dropped"`

	// UptimeSeconds is time since the log was created.
	UptimeSeconds float64 `json:"uptime"`
}

// Stats returns a consistent snapshot of the log's counters.
func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := Stats{
		ActiveSubscribers: len(l.subs),
		RingSize:          l.ring.len(),
		RingCapacity:      len(l.ring.buf),
		CurrentSeq:        l.seq,
		Published:         l.published,
		Dropped:           l.dropped,
		UptimeSeconds:     l.clock.Now().Sub(l.started).Seconds(),
	}
	if e, ok := l.ring.oldest(); ok {
		seq := e.Sequence
		st.OldestSeq = &seq
	}
	if e, ok := l.ring.newest(); ok {
		seq := e.Sequence
		st.NewestSeq = &seq
	}
	return st
}

// Close stops the log: subsequent publishes are logged no-ops,
// subsequent subscriptions are born closed, and blocked subscribers
// wake with ErrClosed once their queues drain. Idempotent.
func (l *Log) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	clear(l.subs)
	close(l.done)
	l.mu.Unlock()
}

// SubscriptionState tracks where a subscription is in its lifecycle.
type SubscriptionState int32

const (
	// StateCreated: registered, nothing delivered yet.
	StateCreated SubscriptionState = iota
	// StateReplaying: historical events are being delivered.
	StateReplaying
	// StateLive: the ready marker has been delivered; only live events
	// and heartbeats follow.
	StateLive
	// StateClosed: terminal, by Subscription.Close or Log.Close.
	StateClosed
)

func (s SubscriptionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateReplaying:
		return "replaying"
	case StateLive:
		return "live"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Subscription is one consumer's ordered view of the log: replayed
// history first, then a ready marker, then live events, with
// heartbeats synthesized during idle stretches.
//
// Next must be called from a single goroutine. Close and State are
// safe from any goroutine.
type Subscription struct {
	log     *Log
	id      uint64
	queue   chan Event
	replay  []Event
	ready   *Event
	state   atomic.Int32
	dropped uint64 // guarded by log.mu

	closeOnce sync.Once
	closed    chan struct{}
}

// Next blocks until the next frame is available and returns it. After
// HeartbeatInterval without a frame it returns a synthesized heartbeat
// instead. It returns ctx.Err() on cancellation, ErrSubscriptionClosed
// after Close, and ErrClosed once the log has shut down and all queued
// events have been consumed.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	select {
	case <-s.closed:
		s.state.Store(int32(StateClosed))
		return Event{}, ErrSubscriptionClosed
	default:
	}

	if len(s.replay) > 0 {
		e := s.replay[0]
		s.replay = s.replay[1:]
		s.state.Store(int32(StateReplaying))
		return e, nil
	}
	if s.ready != nil {
		e := *s.ready
		s.ready = nil
		s.state.Store(int32(StateLive))
		return e, nil
	}

	// Drain queued events before considering log shutdown, so
	// everything published before Close is still delivered.
	select {
	case e := <-s.queue:
		return e, nil
	default:
	}

	timer := s.log.clock.NewTimer(s.log.heartbeatInterval)
	defer timer.Stop()

	select {
	case e := <-s.queue:
		return e, nil
	case <-timer.C:
		return s.log.synthetic(TypeHeartbeat), nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case <-s.closed:
		s.state.Store(int32(StateClosed))
		return Event{}, ErrSubscriptionClosed
	case <-s.log.done:
		select {
		case e := <-s.queue:
			return e, nil
		default:
			s.state.Store(int32(StateClosed))
			return Event{}, ErrClosed
		}
	}
}

// Close deregisters the subscription. Idempotent; a disconnecting
// client is not an error. Events already queued are discarded.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.closed)
		s.log.remove(s)
	})
}

// State reports the subscription's lifecycle position.
func (s *Subscription) State() SubscriptionState {
	return SubscriptionState(s.state.Load())
}

// Dropped returns how many events this subscription has lost to a
// full queue.
func (s *Subscription) Dropped() uint64 {
	s.log.mu.Lock()
	defer s.log.mu.Unlock()
	return s.dropped
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
