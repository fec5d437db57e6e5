// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/feynmancraft/pulse/event"
)

// maxLineBytes caps one archived event line on read.
const maxLineBytes = 1 << 20

// Filter narrows a Read to the events of interest. The zero value
// passes everything.
type Filter struct {
	// SinceSeq passes only events with a sequence strictly greater,
	// matching the log's replay-token semantics. Whole segments whose
	// range falls at or below it are skipped without decompression.
	SinceSeq uint64

	// Types passes events whose type matches any entry. A trailing
	// dot matches as a prefix ("step." matches every stage event).
	Types []string

	// TraceID passes only events of one trace.
	TraceID string

	// Verify checks each visited segment's BLAKE3 digest against the
	// index before streaming it.
	Verify bool
}

// matches applies the type and trace predicates.
func (f Filter) matches(e event.Event) bool {
	if e.Sequence <= f.SinceSeq {
		return false
	}
	if len(f.Types) > 0 {
		ok := slices.ContainsFunc(f.Types, func(t string) bool {
			if strings.HasSuffix(t, ".") {
				return strings.HasPrefix(e.Type, t)
			}
			return e.Type == t
		})
		if !ok {
			return false
		}
	}
	if f.TraceID != "" && e.TraceID != f.TraceID {
		return false
	}
	return true
}

// Reader streams an archive directory back in write order. Only
// indexed segments are visited; files a crashed writer left unindexed
// are ignored.
type Reader struct {
	directory string
	segments  []Segment
}

// OpenReader loads the directory's segment index.
func OpenReader(directory string) (*Reader, error) {
	info, err := os.Stat(directory)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening archive: %s is not a directory", directory)
	}
	segments, err := loadIndex(directory)
	if err != nil {
		return nil, err
	}
	return &Reader{directory: directory, segments: segments}, nil
}

// Segments returns the index entries in write order.
func (r *Reader) Segments() []Segment {
	return slices.Clone(r.segments)
}

// Read streams matching events to fn in archive order. An error from
// fn stops the walk and is returned unchanged.
func (r *Reader) Read(filter Filter, fn func(event.Event) error) error {
	for _, seg := range r.segments {
		if seg.LastSeq <= filter.SinceSeq {
			continue
		}
		if err := r.readSegment(seg, filter, fn); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) readSegment(seg Segment, filter Filter, fn func(event.Event) error) error {
	path := filepath.Join(r.directory, seg.Name)
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening segment %s: %w", seg.Name, err)
	}
	defer file.Close()

	if filter.Verify {
		if err := verifyDigest(file, seg); err != nil {
			return err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewinding segment %s: %w", seg.Name, err)
		}
	}

	body, err := compressionOf(seg.Name).newReader(file)
	if err != nil {
		return fmt.Errorf("decoding segment %s: %w", seg.Name, err)
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		var e event.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return fmt.Errorf("segment %s line %d: %w", seg.Name, line, err)
		}
		if !filter.matches(e) {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading segment %s: %w", seg.Name, err)
	}
	return nil
}

// verifyDigest hashes the file and compares it to the indexed digest.
func verifyDigest(file *os.File, seg Segment) error {
	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return fmt.Errorf("hashing segment %s: %w", seg.Name, err)
	}
	digest := hex.EncodeToString(hasher.Sum(nil))
	if digest != seg.Digest {
		return fmt.Errorf("segment %s: digest mismatch: file %s, index %s", seg.Name, digest, seg.Digest)
	}
	return nil
}
