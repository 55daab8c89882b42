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

// Package apk locates and rewrites the absolute offsets recorded in an APK
// (ZIP) archive, so that bytes can be prepended to the archive without
// breaking it.
//
// Only the fields that depend on the archive's position in the file are
// touched: the central directory start recorded in the end of central
// directory record, and the local header offset of every central directory
// file header. The directory contents and entry data are never modified.
//
// ZIP64 and multi-disk archives are not supported.
package apk

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Record signatures and fixed lengths.
// See: https://users.cs.jmu.edu/buchhofp/forensics/formats/pkzip.html
const (
	localHeaderSignature     = "PK\x03\x04"
	directoryHeaderSignature = "PK\x01\x02"
	endRecordSignature       = "PK\x05\x06"

	localHeaderLen     = 30 // + name + extra
	directoryHeaderLen = 46 // + name + extra + comment
	endRecordLen       = 22 // + comment
)

// Offsets of fields within the fixed part of each record.
const (
	endDirectorySizeOffset   = 12
	endDirectoryOffsetOffset = 16

	dirNameLenOffset     = 28
	dirExtraLenOffset    = 30
	dirCommentLenOffset  = 32
	dirLocalHeaderOffset = 42
)

// zip64Marker is stored in 32-bit offset fields of ZIP64 archives.
const zip64Marker = math.MaxUint32

// Mode selects how consecutive central directory file headers are located.
type Mode int

const (
	// ModeCompat finds the next header by searching for its signature
	// after the fixed part of the previous one. This reproduces the
	// output of existing signature-scanning tools byte for byte, but a
	// file name, extra field or comment that contains the signature
	// bytes is mistaken for a header.
	ModeCompat Mode = iota
	// ModeStrict computes the position of the next header from the name,
	// extra and comment lengths recorded in the previous one.
	ModeStrict
)

func (m Mode) String() string {
	switch m {
	case ModeCompat:
		return "compat"
	case ModeStrict:
		return "strict"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// A FormatError reports that a required archive structure is missing or
// that a fixed-layout read would fall outside of the buffer.
type FormatError struct {
	// Msg describes what could not be found or read.
	Msg string
	// Offset is the position in the buffer the error refers to, or -1.
	Offset int
}

func (e *FormatError) Error() string {
	if e.Offset < 0 {
		return "apk: " + e.Msg
	}
	return fmt.Sprintf("apk: %s at offset %d", e.Msg, e.Offset)
}

func formatErrorf(off int, format string, v ...interface{}) error {
	return &FormatError{Msg: fmt.Sprintf(format, v...), Offset: off}
}

func inBounds(b []byte, off, n int) bool {
	return off >= 0 && n >= 0 && off <= len(b)-n
}

// addOffset adds delta to an offset field, refusing to wrap around.
func addOffset(v, delta uint32, at int) (uint32, error) {
	if v > math.MaxUint32-delta {
		return 0, formatErrorf(at, "offset %d shifted by %d overflows 32 bits", v, delta)
	}
	return v + delta, nil
}

// EndRecord is a view of an end of central directory record.
type EndRecord []byte

func endRecordAt(b []byte, off int) (EndRecord, error) {
	// The comment length at +20 is never read, only the fields before it.
	if !inBounds(b, off, endDirectoryOffsetOffset+4) {
		return nil, formatErrorf(off, "truncated end-of-central-directory record")
	}
	return EndRecord(b[off:]), nil
}

// DirectorySize is the size in bytes of the central directory.
func (r EndRecord) DirectorySize() uint32 {
	return binary.LittleEndian.Uint32(r[endDirectorySizeOffset:])
}

// DirectoryOffset is the offset of the first central directory file header,
// measured from the start of the file.
func (r EndRecord) DirectoryOffset() uint32 {
	return binary.LittleEndian.Uint32(r[endDirectoryOffsetOffset:])
}

func (r EndRecord) SetDirectoryOffset(off uint32) {
	binary.LittleEndian.PutUint32(r[endDirectoryOffsetOffset:], off)
}

// DirectoryHeader is a view of a central directory file header.
type DirectoryHeader []byte

func directoryHeaderAt(b []byte, off int) (DirectoryHeader, error) {
	if !inBounds(b, off, directoryHeaderLen) {
		return nil, formatErrorf(off, "truncated central directory file header")
	}
	if string(b[off:off+4]) != directoryHeaderSignature {
		return nil, formatErrorf(off, "no central directory file header")
	}
	return DirectoryHeader(b[off:]), nil
}

func (h DirectoryHeader) NameLen() int {
	return int(binary.LittleEndian.Uint16(h[dirNameLenOffset:]))
}

func (h DirectoryHeader) ExtraLen() int {
	return int(binary.LittleEndian.Uint16(h[dirExtraLenOffset:]))
}

func (h DirectoryHeader) CommentLen() int {
	return int(binary.LittleEndian.Uint16(h[dirCommentLenOffset:]))
}

// Len is the size of the header including its variable-length sections.
func (h DirectoryHeader) Len() int {
	return directoryHeaderLen + h.NameLen() + h.ExtraLen() + h.CommentLen()
}

// LocalHeaderOffset is the offset of the entry's local file header,
// measured from the start of the file.
func (h DirectoryHeader) LocalHeaderOffset() uint32 {
	return binary.LittleEndian.Uint32(h[dirLocalHeaderOffset:])
}

func (h DirectoryHeader) SetLocalHeaderOffset(off uint32) {
	binary.LittleEndian.PutUint32(h[dirLocalHeaderOffset:], off)
}
