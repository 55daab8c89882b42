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

package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeOutput writes b to path. The data is written to a temporary file in
// the same directory and renamed into place, so a failed write never leaves
// a partial file at path.
func writeOutput(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := checkFilesystem(dir); err != nil {
		return err
	}
	// Create the temp file next to the destination, os.Rename() doesn't
	// work across filesystems.
	tf, err := os.CreateTemp(dir, ".janus")
	if err != nil {
		return fmt.Errorf("creating temp file: %v", err)
	}
	defer os.Remove(tf.Name()) // Attempt to clean up temp file no matter what.
	defer tf.Close()

	if _, err := tf.Write(b); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	// Files must be closed for rename to work on Windows.
	if err := tf.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Chmod(tf.Name(), 0644); err != nil {
		return fmt.Errorf("chmod file: %v", err)
	}
	if err := os.Rename(tf.Name(), path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}
