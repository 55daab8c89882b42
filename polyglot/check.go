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

package polyglot

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"

	"github.com/google/janus/apk"
	"github.com/google/janus/dex"
)

// Report describes a file read back by Check.
type Report struct {
	// Size is the size of the file.
	Size int
	// Entries lists the names of the archive's entries in directory order.
	Entries []string
	// Boundary is the offset at which the embedded archive begins, which
	// is also the size of the data prepended to it.
	Boundary int
	// Version is the DEX format version from the header magic, or "" if
	// the file does not start with a DEX magic.
	Version string
	// Mismatch lists the DEX header fields that do not describe the whole
	// file. It is empty for a polyglot built with a repaired checksum.
	Mismatch []string
}

// Valid reports whether the file is both a readable archive and a DEX file
// whose header is consistent.
func (r *Report) Valid() bool {
	return r.Version != "" && len(r.Mismatch) == 0
}

// Check reads b as both an archive and a DEX file. It fails if b is not a
// readable archive; DEX problems are reported in the Report.
func Check(b []byte, opts *Options) (*Report, error) {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	boundary, err := apk.ArchiveStart(b, opts.mode())
	if err != nil {
		return nil, err
	}
	r := &Report{Size: len(b), Boundary: boundary}
	for _, f := range zr.File {
		r.Entries = append(r.Entries, f.Name)
	}

	h, err := dex.ReadHeader(b)
	if err != nil {
		// Too short to be a DEX file at all.
		return r, nil
	}
	r.Version = h.Version()
	var cerr *dex.ChecksumError
	if err := dex.Verify(b); errors.As(err, &cerr) {
		r.Mismatch = cerr.Fields
	} else if err != nil {
		return nil, err
	}
	return r, nil
}
