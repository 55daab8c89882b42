// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package apk

import (
	"bytes"
	"fmt"

	"rsc.io/binaryregexp"
)

// FindEndRecord returns the offset of the end of central directory record.
//
// The buffer is searched backwards and the rightmost signature wins: the
// record is followed by a comment of arbitrary length, so it is not at a
// fixed distance from the end of the file.
func FindEndRecord(b []byte) (int, error) {
	i := bytes.LastIndex(b, []byte(endRecordSignature))
	if i < 0 {
		return -1, &FormatError{Msg: "no end-of-central-directory record", Offset: -1}
	}
	return i, nil
}

// DirectoryStart returns the central directory start recorded in the end
// of central directory record at eocd. The value is not checked against
// the buffer; an out of range start is reported by the reads that use it.
func DirectoryStart(b []byte, eocd int) (int, error) {
	r, err := endRecordAt(b, eocd)
	if err != nil {
		return -1, err
	}
	off := r.DirectoryOffset()
	if off == zip64Marker {
		return -1, formatErrorf(eocd, "zip64 archives are not supported")
	}
	return int(off), nil
}

// A Scanner yields the offsets of the central directory file headers stored
// in [start, end). It is used like a bufio.Scanner:
//
//	s := apk.NewScanner(b, start, end, apk.ModeCompat)
//	for s.Scan() {
//		h := s.Header()
//		// ...
//	}
//	if err := s.Err(); err != nil {
//		// ...
//	}
//
// A Scanner cannot be restarted.
type Scanner struct {
	b          []byte
	start, end int
	mode       Mode

	off     int
	started bool
	done    bool
	err     error
}

// NewScanner returns a Scanner over the central directory stored in
// b[start:end]. end is normally the offset of the end of central directory
// record.
func NewScanner(b []byte, start, end int, mode Mode) *Scanner {
	return &Scanner{b: b, start: start, end: end, mode: mode, off: -1}
}

// Scan advances to the next header. It returns false when the directory is
// exhausted or an error occurred.
func (s *Scanner) Scan() bool {
	if s.done {
		return false
	}
	next, ok, err := s.next()
	if err != nil {
		s.err = err
	}
	if !ok || err != nil {
		s.done = true
		return false
	}
	if err := s.check(next); err != nil {
		s.err = err
		s.done = true
		return false
	}
	s.off = next
	return true
}

func (s *Scanner) next() (int, bool, error) {
	if !s.started {
		s.started = true
		if s.start < 0 || s.start > s.end || s.end > len(s.b) {
			return 0, false, formatErrorf(s.start, "central directory [%d, %d) out of bounds of %d-byte buffer", s.start, s.end, len(s.b))
		}
		if s.start == s.end {
			return 0, false, nil
		}
		return s.start, true, nil
	}

	switch s.mode {
	case ModeStrict:
		next := s.off + DirectoryHeader(s.b[s.off:]).Len()
		if next == s.end {
			return 0, false, nil
		}
		return next, true, nil
	default:
		from := s.off + directoryHeaderLen
		if from > s.end {
			return 0, false, formatErrorf(s.off, "central directory file header overlaps end of directory")
		}
		i := bytes.Index(s.b[from:s.end], []byte(directoryHeaderSignature))
		if i < 0 {
			return 0, false, nil
		}
		return from + i, true, nil
	}
}

func (s *Scanner) check(off int) error {
	h, err := directoryHeaderAt(s.b, off)
	if err != nil {
		return err
	}
	if s.mode == ModeStrict && off+h.Len() > s.end {
		return formatErrorf(off, "central directory file header of %d bytes extends past end of directory", h.Len())
	}
	return nil
}

// Offset returns the offset of the current header.
func (s *Scanner) Offset() int {
	return s.off
}

// Header returns a view of the current header.
func (s *Scanner) Header() DirectoryHeader {
	return DirectoryHeader(s.b[s.off:])
}

// Err returns the first error encountered by the Scanner.
func (s *Scanner) Err() error {
	return s.err
}

// localHeaderPattern matches a local file header signature followed by the
// rest of the fixed header.
var localHeaderPattern = binaryregexp.MustCompile(
	binaryregexp.QuoteMeta(localHeaderSignature) +
		fmt.Sprintf(`[\x00-\xff]{%d}`, localHeaderLen-len(localHeaderSignature)))

// FindLocalHeader returns the offset of the first local file header in b.
// In a polyglot this is where the embedded archive begins, unless the
// prepended data happens to contain the signature bytes itself.
func FindLocalHeader(b []byte) (int, error) {
	loc := localHeaderPattern.FindIndex(b)
	if loc == nil {
		return -1, &FormatError{Msg: "no embedded archive found", Offset: -1}
	}
	return loc[0], nil
}

// ArchiveStart returns the offset at which an archive embedded at the end
// of b begins.
//
// With ModeCompat this is the first local file header signature in b. With
// ModeStrict the central directory is walked and the smallest local header
// offset it references is used, which is immune to signature bytes in
// the prepended data.
func ArchiveStart(b []byte, mode Mode) (int, error) {
	if mode != ModeStrict {
		return FindLocalHeader(b)
	}
	eocd, err := FindEndRecord(b)
	if err != nil {
		return -1, err
	}
	start, err := DirectoryStart(b, eocd)
	if err != nil {
		return -1, err
	}

	first := -1
	s := NewScanner(b, start, eocd, ModeStrict)
	for s.Scan() {
		if off := int(s.Header().LocalHeaderOffset()); first < 0 || off < first {
			first = off
		}
	}
	if err := s.Err(); err != nil {
		return -1, fmt.Errorf("walking central directory: %w", err)
	}
	if first < 0 {
		// No entries, the directory is the first thing in the archive.
		return start, nil
	}
	if !inBounds(b, first, localHeaderLen) || string(b[first:first+len(localHeaderSignature)]) != localHeaderSignature {
		return -1, formatErrorf(first, "no embedded archive found")
	}
	return first, nil
}
