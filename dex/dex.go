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

// Package dex maintains the integrity fields of a DEX file header.
//
// A DEX header declares the size of the file it starts, a SHA-1 signature
// of everything after the signature field, and an Adler-32 checksum of
// everything after the checksum field. The fields depend on each other
// and must be computed in that order.
//
// See: https://source.android.com/docs/core/runtime/dex-format#header-item
package dex

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"hash/adler32"
	"strings"

	"rsc.io/binaryregexp"
)

// Header field offsets.
const (
	magicOffset     = 0
	checksumOffset  = 8
	signatureOffset = 12
	fileSizeOffset  = 32

	magicLen     = 8
	signatureLen = sha1.Size

	// MinSize is the smallest buffer that holds every field Repair writes.
	MinSize = fileSizeOffset + 4
)

// A PreconditionError reports a buffer too short to carry the header
// fields being read or written.
type PreconditionError struct {
	Size int
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("dex: %d-byte buffer is shorter than the %d-byte header region", e.Size, MinSize)
}

// Repair rewrites the file size, signature and checksum fields of the DEX
// header at the start of b so that they describe all of b. b is modified
// in place.
func Repair(b []byte) error {
	if len(b) < MinSize {
		return &PreconditionError{Size: len(b)}
	}
	binary.LittleEndian.PutUint32(b[fileSizeOffset:], uint32(len(b)))
	// The signature covers the file size, the checksum covers the signature.
	sig := sha1.Sum(b[fileSizeOffset:])
	copy(b[signatureOffset:], sig[:])
	binary.LittleEndian.PutUint32(b[checksumOffset:], adler32.Checksum(b[signatureOffset:]))
	return nil
}

// Header is a decoded view of the integrity fields of a DEX header.
type Header struct {
	// Magic is the 8-byte magic, "dex\n" followed by a version and NUL
	// in well-formed files.
	Magic     [magicLen]byte
	Checksum  uint32
	Signature [signatureLen]byte
	FileSize  uint32
}

// Version returns the three digit format version from the magic, or ""
// if the magic is not a DEX magic.
func (h *Header) Version() string {
	if !HasMagic(h.Magic[:]) {
		return ""
	}
	return string(h.Magic[4:7])
}

// ReadHeader decodes the integrity fields at the start of b.
func ReadHeader(b []byte) (*Header, error) {
	if len(b) < MinSize {
		return nil, &PreconditionError{Size: len(b)}
	}
	h := &Header{
		Checksum: binary.LittleEndian.Uint32(b[checksumOffset:]),
		FileSize: binary.LittleEndian.Uint32(b[fileSizeOffset:]),
	}
	copy(h.Magic[:], b[magicOffset:])
	copy(h.Signature[:], b[signatureOffset:])
	return h, nil
}

// magicPattern matches "dex\n", a three digit version and a NUL.
var magicPattern = binaryregexp.MustCompile(`^dex\n[0-9]{3}\x00`)

// HasMagic reports whether b starts with a DEX magic.
func HasMagic(b []byte) bool {
	if len(b) > magicLen {
		b = b[:magicLen]
	}
	return magicPattern.Match(b)
}

// A ChecksumError lists the header fields of a DEX file that do not match
// its contents.
type ChecksumError struct {
	// Fields names the mismatching fields: "file size", "signature" or
	// "checksum".
	Fields []string
}

func (e *ChecksumError) Error() string {
	return "dex: header " + strings.Join(e.Fields, ", ") + " mismatch"
}

// Verify checks that the file size, signature and checksum fields of the
// DEX header at the start of b describe b. It returns a *ChecksumError if
// they do not.
func Verify(b []byte) error {
	h, err := ReadHeader(b)
	if err != nil {
		return err
	}
	var bad []string
	if h.FileSize != uint32(len(b)) {
		bad = append(bad, "file size")
	}
	if sig := sha1.Sum(b[fileSizeOffset:]); !bytes.Equal(sig[:], h.Signature[:]) {
		bad = append(bad, "signature")
	}
	if adler32.Checksum(b[signatureOffset:]) != h.Checksum {
		bad = append(bad, "checksum")
	}
	if len(bad) > 0 {
		return &ChecksumError{Fields: bad}
	}
	return nil
}
