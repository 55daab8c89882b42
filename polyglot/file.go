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
	"fmt"
	"os"

	"github.com/google/janus/apk"
)

// InjectFile is like Inject, reading the payload and the archive from the
// given paths. Both files are read fully and closed before any
// transformation. Read errors wrap the underlying *fs.PathError.
func InjectFile(payloadPath, archivePath string, opts *Options) ([]byte, error) {
	log := opts.logger()
	log.Info().Msgf("Reading data from %s...", payloadPath)
	payload, err := os.ReadFile(payloadPath)
	if err != nil {
		return nil, fmt.Errorf("reading data: %w", err)
	}
	log.Info().Msgf("Reading APK from %s...", archivePath)
	archive, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, fmt.Errorf("reading APK: %w", err)
	}
	if err := checkArchive(archive); err != nil {
		return nil, fmt.Errorf("%s is not an APK/ZIP file: %w", archivePath, err)
	}
	return Inject(payload, archive, opts)
}

// ExtractFile is like Extract, reading the polyglot from path.
func ExtractFile(path string, opts *Options) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading APK: %w", err)
	}
	return Extract(b, opts)
}

// checkArchive reports why b is not a ZIP archive. A missing end record is
// reported as such rather than through archive/zip's generic error.
func checkArchive(b []byte) error {
	if _, err := apk.FindEndRecord(b); err != nil {
		return err
	}
	_, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	return err
}
