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

import "fmt"

// Names of the fields reported through Shifter.HandlePatch.
const (
	FieldDirectoryStart    = "central directory start"
	FieldLocalHeaderOffset = "local header offset"
)

// Patch describes a single rewritten offset field.
type Patch struct {
	// Field is FieldDirectoryStart or FieldLocalHeaderOffset.
	Field string
	// At is the offset of the rewritten 4-byte field in the buffer.
	At       int
	Old, New uint32
}

// Shifter rewrites the offsets of an archive that is about to have data
// prepended to it. The zero value provides reasonable defaults.
type Shifter struct {
	// Mode selects how central directory file headers are located.
	// Default is ModeCompat.
	Mode Mode
	// HandlePatch, if provided, is called after every offset field is
	// rewritten.
	HandlePatch func(p Patch)
}

func (s *Shifter) handlePatch(p Patch) {
	if s.HandlePatch != nil {
		s.HandlePatch(p)
	}
}

// ShiftResult reports what Shift found and changed.
type ShiftResult struct {
	// EndRecord is the offset of the end of central directory record.
	EndRecord int
	// OldDirectoryStart and NewDirectoryStart are the central directory
	// start before and after patching.
	OldDirectoryStart, NewDirectoryStart uint32
	// Entries is the number of central directory file headers patched.
	Entries int
}

// Shift rewrites every offset in the archive b that is measured from the
// start of the file, as if delta bytes were placed in front of the archive.
// b is modified in place; b's length does not change.
//
// On error b may be partially modified and should be discarded.
func (s *Shifter) Shift(b []byte, delta uint32) (*ShiftResult, error) {
	eocd, err := FindEndRecord(b)
	if err != nil {
		return nil, err
	}
	start, err := DirectoryStart(b, eocd)
	if err != nil {
		return nil, err
	}
	if err := s.PatchDirectoryStart(b, eocd, delta); err != nil {
		return nil, err
	}
	// The end record does not move when its fields change, so the offset
	// found before patching still bounds the directory.
	n, err := s.PatchEntryOffsets(b, start, eocd, delta)
	if err != nil {
		return nil, err
	}
	return &ShiftResult{
		EndRecord:         eocd,
		OldDirectoryStart: uint32(start),
		NewDirectoryStart: uint32(start) + delta,
		Entries:           n,
	}, nil
}

// PatchDirectoryStart adds delta to the central directory start recorded in
// the end of central directory record at eocd.
func (s *Shifter) PatchDirectoryStart(b []byte, eocd int, delta uint32) error {
	r, err := endRecordAt(b, eocd)
	if err != nil {
		return err
	}
	at := eocd + endDirectoryOffsetOffset
	old := r.DirectoryOffset()
	v, err := addOffset(old, delta, at)
	if err != nil {
		return err
	}
	r.SetDirectoryOffset(v)
	s.handlePatch(Patch{Field: FieldDirectoryStart, At: at, Old: old, New: v})
	return nil
}

// PatchEntryOffsets adds delta to the local header offset of every central
// directory file header in b[start:end]. It returns the number of headers
// patched.
func (s *Shifter) PatchEntryOffsets(b []byte, start, end int, delta uint32) (int, error) {
	n := 0
	sc := NewScanner(b, start, end, s.Mode)
	for sc.Scan() {
		h := sc.Header()
		at := sc.Offset() + dirLocalHeaderOffset
		old := h.LocalHeaderOffset()
		v, err := addOffset(old, delta, at)
		if err != nil {
			return n, err
		}
		// Searching for the next header starts after this header's fixed
		// part, so rewriting the field cannot affect the scan.
		h.SetLocalHeaderOffset(v)
		s.handlePatch(Patch{Field: FieldLocalHeaderOffset, At: at, Old: old, New: v})
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("patching entry %d: %w", n, err)
	}
	return n, nil
}

// Shift is like Shifter.Shift using the default options.
func Shift(b []byte, delta uint32) (*ShiftResult, error) {
	s := &Shifter{}
	return s.Shift(b, delta)
}
