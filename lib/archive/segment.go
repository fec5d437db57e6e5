// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the segment codec. The codec is recorded in the
// segment's file extension, so an archive may mix codecs across
// segments after a configuration change.
type Compression string

const (
	// CompressionZstd is the default: events are JSON text, which
	// zstd shrinks 5-10x at negligible cost for this write rate.
	CompressionZstd Compression = "zstd"

	// CompressionLZ4 trades ratio for cheaper writes.
	CompressionLZ4 Compression = "lz4"

	// CompressionNone stores raw JSONL, greppable in place.
	CompressionNone Compression = "none"
)

// ParseCompression parses a codec name as it appears in configuration.
func ParseCompression(name string) (Compression, error) {
	switch Compression(name) {
	case CompressionZstd, CompressionLZ4, CompressionNone:
		return Compression(name), nil
	}
	return "", fmt.Errorf("unknown archive compression %q", name)
}

// extension returns the codec's filename suffix after ".jsonl".
func (c Compression) extension() string {
	switch c {
	case CompressionZstd:
		return ".zst"
	case CompressionLZ4:
		return ".lz4"
	}
	return ""
}

// newWriter wraps sink with the codec's stream encoder. The returned
// writer must be closed to flush; closing it does not close sink.
func (c Compression) newWriter(sink io.Writer) (io.WriteCloser, error) {
	switch c {
	case CompressionZstd:
		encoder, err := zstd.NewWriter(sink, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		return encoder, nil
	case CompressionLZ4:
		return lz4.NewWriter(sink), nil
	case CompressionNone:
		return nopWriteCloser{sink}, nil
	}
	return nil, fmt.Errorf("unknown archive compression %q", c)
}

// newReader wraps source with the codec's stream decoder.
func (c Compression) newReader(source io.Reader) (io.ReadCloser, error) {
	switch c {
	case CompressionZstd:
		decoder, err := zstd.NewReader(source)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		return decoder.IOReadCloser(), nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(source)), nil
	case CompressionNone:
		return io.NopCloser(source), nil
	}
	return nil, fmt.Errorf("unknown archive compression %q", c)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// segmentNamePattern matches segment filenames and captures the
// sequence number and codec extension.
var segmentNamePattern = regexp.MustCompile(`^events-(\d{6})\.jsonl(\.zst|\.lz4)?$`)

// segmentName builds the filename for segment number under codec c.
func segmentName(number int, c Compression) string {
	return fmt.Sprintf("events-%06d.jsonl%s", number, c.extension())
}

// compressionOf derives the codec from a segment filename.
func compressionOf(name string) Compression {
	switch {
	case strings.HasSuffix(name, ".zst"):
		return CompressionZstd
	case strings.HasSuffix(name, ".lz4"):
		return CompressionLZ4
	}
	return CompressionNone
}

// Segment is one line of the segments.json index: a finished,
// immutable archive file.
type Segment struct {
	// Name is the segment filename within the archive directory.
	Name string `json:"name"`

	// FirstSeq and LastSeq bound the sequences the segment holds.
	FirstSeq uint64 `json:"first_seq"`
	LastSeq  uint64 `json:"last_seq"`

	// Events is the number of lines in the segment.
	Events int `json:"events"`

	// Bytes is the on-disk (compressed) size.
	Bytes int64 `json:"bytes"`

	// Digest is the BLAKE3 hex digest of the file as written.
	Digest string `json:"digest"`

	// ClosedAt is epoch seconds when the segment was finished.
	ClosedAt float64 `json:"closed_at"`
}

// indexName is the per-directory segment index, one JSON object per
// line in append order.
const indexName = "segments.json"

// loadIndex reads a directory's segment index. A missing index is an
// empty archive, not an error.
func loadIndex(directory string) ([]Segment, error) {
	file, err := os.Open(filepath.Join(directory, indexName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening segment index: %w", err)
	}
	defer file.Close()

	var segments []Segment
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var seg Segment
		if err := json.Unmarshal([]byte(text), &seg); err != nil {
			return nil, fmt.Errorf("segment index line %d: %w", line, err)
		}
		segments = append(segments, seg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading segment index: %w", err)
	}
	return segments, nil
}

// nextSegmentNumber returns one past the highest segment number found
// in either the index or the directory, so a restarted writer never
// reuses a name — including names left behind by a crash mid-segment.
func nextSegmentNumber(directory string, indexed []Segment) (int, error) {
	highest := 0
	note := func(name string) {
		match := segmentNamePattern.FindStringSubmatch(name)
		if match == nil {
			return
		}
		if n, err := strconv.Atoi(match[1]); err == nil && n > highest {
			highest = n
		}
	}
	for _, seg := range indexed {
		note(seg.Name)
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		return 0, fmt.Errorf("scanning archive directory: %w", err)
	}
	for _, entry := range entries {
		note(entry.Name())
	}
	return highest + 1, nil
}
