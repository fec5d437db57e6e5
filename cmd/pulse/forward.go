// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/feynmancraft/pulse/cmd/pulse/cli"
	"github.com/feynmancraft/pulse/lib/clock"
	"github.com/feynmancraft/pulse/lib/wire"
)

const (
	defaultBatchSize     = 64
	defaultFlushInterval = time.Second
	defaultBufferLimit   = 8192
	shipInitialBackoff   = time.Second
	shipMaxBackoff       = 30 * time.Second
	drainTimeout         = 5 * time.Second

	// maxLineBytes matches the hub's default ingest frame cap; a line
	// too big to ship is not worth buffering.
	maxLineBytes = 1 << 20
)

func newForwardCommand() *cli.Command {
	var (
		socketPath    string
		source        string
		batchSize     int
		flushInterval time.Duration
		bufferLimit   int
	)
	return &cli.Command{
		Name:    "forward",
		Summary: "Ship JSONL events from stdin over the ingest socket",
		Usage:   "pulse forward --source <name> [flags]",
		Description: "forward reads one JSON event per line from stdin and ships them to\n" +
			"the hub's ingest socket in batches, flushed by size and by time.\n" +
			"While the hub is away events buffer up to a limit, oldest dropped\n" +
			"first, and delivery retries with doubling backoff. A batch the hub\n" +
			"rejects as invalid is dropped, not retried. Remaining events are\n" +
			"drained on shutdown.",
		Examples: []cli.Example{
			{Description: "Ship a worker's event output", Command: "diagram-worker --events | pulse forward --source worker-1"},
			{Description: "Backfill a captured file", Command: "pulse forward --source backfill < events.jsonl"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("forward", pflag.ContinueOnError)
			flags.StringVar(&socketPath, "socket", defaultIngestSocket(), "hub ingest socket path")
			flags.StringVar(&source, "source", "", "producer name stamped on every batch")
			flags.IntVar(&batchSize, "batch-size", defaultBatchSize, "events per batch")
			flags.DurationVar(&flushInterval, "flush-interval", defaultFlushInterval, "maximum time an event waits in the buffer")
			flags.IntVar(&bufferLimit, "buffer", defaultBufferLimit, "events buffered while the hub is unreachable")
			return flags
		},
		Run: func(args []string) error {
			if source == "" {
				return fmt.Errorf("--source is required (names the producer in hub logs)")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := cli.NewCommandLogger().With("command", "forward", "source", source)
			ship := newShipper(shipperConfig{
				Source:        source,
				BatchSize:     batchSize,
				FlushInterval: flushInterval,
				BufferLimit:   bufferLimit,
				Client:        wire.NewClient(socketPath),
				Clock:         clock.Real(),
				Logger:        logger,
			})

			shipCtx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				defer close(done)
				ship.Run(shipCtx)
			}()

			events := readEvents(ctx, os.Stdin, logger)
		read:
			for {
				select {
				case <-ctx.Done():
					break read
				case evt, ok := <-events:
					if !ok {
						break read
					}
					ship.Enqueue(evt)
				}
			}

			cancel()
			<-done

			shipped, dropped, rejected, unsent := ship.Stats()
			logger.Info("forward done",
				"shipped", shipped, "dropped", dropped, "rejected", rejected, "unsent", unsent)
			return nil
		},
	}
}

// readEvents parses r as one JSON object per line, skipping blank and
// malformed lines. The channel closes on EOF. The goroutine is
// abandoned mid-read on cancel; stdin has no cancellable read.
func readEvents(ctx context.Context, r io.Reader, logger *slog.Logger) <-chan map[string]any {
	out := make(chan map[string]any)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		lineNumber := 0
		for scanner.Scan() {
			lineNumber++
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var evt map[string]any
			if err := json.Unmarshal(line, &evt); err != nil {
				logger.Warn("skipping malformed line", "line", lineNumber, "error", err)
				continue
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Error("reading stdin", "error", err)
		}
	}()
	return out
}

// submitter ships one batch. Satisfied by *wire.Client.
type submitter interface {
	Submit(ctx context.Context, batch wire.Batch) (int, error)
}

type shipperConfig struct {
	Source        string
	BatchSize     int
	FlushInterval time.Duration
	BufferLimit   int
	Client        submitter
	Clock         clock.Clock
	Logger        *slog.Logger
}

// shipper batches events and ships them over the ingest socket,
// absorbing hub downtime with a bounded drop-oldest buffer.
type shipper struct {
	config shipperConfig
	wake   chan struct{}

	mu       sync.Mutex
	pending  []map[string]any
	shipped  int
	dropped  int
	rejected int
}

func newShipper(config shipperConfig) *shipper {
	if config.Client == nil {
		panic("forward: shipper requires a client")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = defaultFlushInterval
	}
	if config.BufferLimit <= 0 {
		config.BufferLimit = defaultBufferLimit
	}
	if config.BufferLimit < config.BatchSize {
		config.BufferLimit = config.BatchSize
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &shipper{config: config, wake: make(chan struct{}, 1)}
}

// Enqueue adds one event, dropping the oldest buffered event when the
// buffer is full. The newest event is worth more to a live dashboard
// than the stalest one.
func (s *shipper) Enqueue(evt map[string]any) {
	s.mu.Lock()
	if len(s.pending) >= s.config.BufferLimit {
		s.pending = s.pending[1:]
		s.dropped++
	}
	s.pending = append(s.pending, evt)
	full := len(s.pending) >= s.config.BatchSize
	s.mu.Unlock()

	if full {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// Run flushes batches until ctx ends, then drains what it can inside
// the drain timeout.
func (s *shipper) Run(ctx context.Context) {
	ticker := s.config.Clock.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			s.flush(drainCtx)
			cancel()
			return
		case <-ticker.C:
		case <-s.wake:
		}
		s.flush(ctx)
	}
}

// flush ships batches until the buffer is empty or the context ends.
func (s *shipper) flush(ctx context.Context) {
	for ctx.Err() == nil {
		batch := s.take()
		if len(batch) == 0 {
			return
		}
		if !s.ship(ctx, batch) {
			s.requeue(batch)
			return
		}
	}
}

// take removes up to one batch from the buffer head.
func (s *shipper) take() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(len(s.pending), s.config.BatchSize)
	if n == 0 {
		return nil
	}
	batch := make([]map[string]any, n)
	copy(batch, s.pending[:n])
	s.pending = s.pending[n:]
	return batch
}

// requeue puts an unshipped batch back at the buffer head, keeping the
// drop-oldest policy if the buffer overflowed meanwhile.
func (s *shipper) requeue(batch []map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(batch, s.pending...)
	if over := len(s.pending) - s.config.BufferLimit; over > 0 {
		s.pending = s.pending[over:]
		s.dropped += over
	}
}

// ship submits one batch, retrying transport failures with doubling
// backoff. Reports whether the batch was consumed: delivered, or
// rejected by the hub as invalid, which retrying cannot fix. False
// means the context ended first and the batch is still owed.
func (s *shipper) ship(ctx context.Context, events []map[string]any) bool {
	backoff := shipInitialBackoff
	for {
		accepted, err := s.config.Client.Submit(ctx, wire.Batch{Source: s.config.Source, Events: events})
		if err == nil {
			s.mu.Lock()
			s.shipped += accepted
			s.mu.Unlock()
			return true
		}

		var rejected *wire.RejectedError
		if errors.As(err, &rejected) {
			s.config.Logger.Warn("hub rejected batch",
				"reason", rejected.Message, "accepted", accepted, "size", len(events))
			s.mu.Lock()
			s.shipped += accepted
			s.rejected += len(events) - accepted
			s.mu.Unlock()
			return true
		}

		if ctx.Err() != nil {
			return false
		}
		s.config.Logger.Warn("submit failed, retrying", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return false
		case <-s.config.Clock.After(backoff):
		}
		backoff = min(backoff*2, shipMaxBackoff)
	}
}

// Stats reports lifetime counters and the current buffer depth.
func (s *shipper) Stats() (shipped, dropped, rejected, pending int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shipped, s.dropped, s.rejected, len(s.pending)
}
