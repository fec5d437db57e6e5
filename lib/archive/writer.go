// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/feynmancraft/pulse/event"
	"github.com/feynmancraft/pulse/lib/clock"
)

// DefaultRotateBytes rotates segments at 64 MiB on disk.
const DefaultRotateBytes = 64 << 20

// ErrWriterClosed is returned by Append after Close.
var ErrWriterClosed = errors.New("archive: writer closed")

// WriterConfig configures a Writer.
type WriterConfig struct {
	// Directory receives segments and the index. Created if absent.
	// Required.
	Directory string

	// Compression selects the segment codec. Defaults to zstd.
	Compression Compression

	// RotateBytes closes a segment once its on-disk size reaches this
	// many bytes. Defaults to DefaultRotateBytes.
	RotateBytes int64

	// Logger is the structured logger. Required.
	Logger *slog.Logger

	// Clock stamps index entries. Defaults to the real clock.
	Clock clock.Clock
}

// Writer appends events to the archive. Segments are opened lazily on
// the first Append after a rotation, so an idle writer creates no
// empty files. Safe for concurrent use.
type Writer struct {
	directory   string
	compression Compression
	rotateBytes int64
	logger      *slog.Logger
	clock       clock.Clock

	mu         sync.Mutex
	current    *openSegment
	nextNumber int
	closed     bool
}

// NewWriter creates the archive directory if needed and positions the
// writer after the highest existing segment.
func NewWriter(config WriterConfig) (*Writer, error) {
	if config.Directory == "" {
		panic("archive.Writer: Directory is required")
	}
	if config.Logger == nil {
		panic("archive.Writer: Logger is required")
	}
	compression := config.Compression
	if compression == "" {
		compression = CompressionZstd
	}
	if _, err := ParseCompression(string(compression)); err != nil {
		return nil, err
	}
	rotateBytes := config.RotateBytes
	if rotateBytes <= 0 {
		rotateBytes = DefaultRotateBytes
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	if err := os.MkdirAll(config.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	indexed, err := loadIndex(config.Directory)
	if err != nil {
		return nil, err
	}
	next, err := nextSegmentNumber(config.Directory, indexed)
	if err != nil {
		return nil, err
	}

	return &Writer{
		directory:   config.Directory,
		compression: compression,
		rotateBytes: rotateBytes,
		logger:      config.Logger,
		clock:       clk,
		nextNumber:  next,
	}, nil
}

// Append writes one event to the current segment, rotating first when
// the segment has reached its size bound.
func (w *Writer) Append(e event.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event %d: %w", e.Sequence, err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	if w.current == nil {
		if err := w.openSegmentLocked(); err != nil {
			return err
		}
	}

	if _, err := w.current.body.Write(data); err != nil {
		return fmt.Errorf("writing segment %s: %w", w.current.name, err)
	}
	if w.current.events == 0 {
		w.current.firstSeq = e.Sequence
	}
	w.current.lastSeq = e.Sequence
	w.current.events++

	if w.current.counting.n >= w.rotateBytes {
		return w.finishSegmentLocked()
	}
	return nil
}

// Close finishes the open segment and stops the writer. Idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.current == nil {
		return nil
	}
	return w.finishSegmentLocked()
}

// openSegment is an in-progress segment file. The hasher and byte
// counter observe exactly the bytes that reach the file, after
// compression.
type openSegment struct {
	name     string
	file     *os.File
	counting *countingWriter
	hasher   *blake3.Hasher
	body     io.WriteCloser

	firstSeq uint64
	lastSeq  uint64
	events   int
}

func (w *Writer) openSegmentLocked() error {
	name := segmentName(w.nextNumber, w.compression)
	file, err := os.OpenFile(filepath.Join(w.directory, name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating segment %s: %w", name, err)
	}

	counting := &countingWriter{w: file}
	hasher := blake3.New()
	body, err := w.compression.newWriter(io.MultiWriter(counting, hasher))
	if err != nil {
		file.Close()
		return err
	}

	w.current = &openSegment{
		name:     name,
		file:     file,
		counting: counting,
		hasher:   hasher,
		body:     body,
	}
	w.nextNumber++
	return nil
}

// finishSegmentLocked flushes, closes, and indexes the open segment.
func (w *Writer) finishSegmentLocked() error {
	seg := w.current
	w.current = nil

	if err := seg.body.Close(); err != nil {
		seg.file.Close()
		return fmt.Errorf("flushing segment %s: %w", seg.name, err)
	}
	if err := seg.file.Close(); err != nil {
		return fmt.Errorf("closing segment %s: %w", seg.name, err)
	}

	entry := Segment{
		Name:     seg.name,
		FirstSeq: seg.firstSeq,
		LastSeq:  seg.lastSeq,
		Events:   seg.events,
		Bytes:    seg.counting.n,
		Digest:   hex.EncodeToString(seg.hasher.Sum(nil)),
		ClosedAt: float64(w.clock.Now().UnixNano()) / 1e9,
	}
	if err := w.appendIndexLocked(entry); err != nil {
		return err
	}

	w.logger.Info("archive segment closed",
		"segment", entry.Name,
		"events", entry.Events,
		"bytes", entry.Bytes,
		"first_seq", entry.FirstSeq,
		"last_seq", entry.LastSeq,
	)
	return nil
}

func (w *Writer) appendIndexLocked(entry Segment) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding index entry: %w", err)
	}
	data = append(data, '\n')

	index, err := os.OpenFile(filepath.Join(w.directory, indexName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening segment index: %w", err)
	}
	defer index.Close()
	if _, err := index.Write(data); err != nil {
		return fmt.Errorf("appending segment index: %w", err)
	}
	return nil
}

// countingWriter counts bytes passed through to w.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
