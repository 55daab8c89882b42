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
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/janus/apk"
	"github.com/google/janus/dex"
	"github.com/rs/zerolog"
)

func newArchive(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("creating %q: %v", name, err)
		}
		if _, err := io.WriteString(w, "contents of "+name); err != nil {
			t.Fatalf("writing %q: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip writer: %v", err)
	}
	return buf.Bytes()
}

func newDEX(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(i * 7)
	}
	copy(b, "dex\n035\x00")
	return b
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.WriteFile(path, b, 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return b
}

func TestInjectExtract(t *testing.T) {
	for _, strict := range []bool{false, true} {
		t.Run(mode(strict).String(), func(t *testing.T) {
			dir := t.TempDir()
			var (
				data   = filepath.Join(dir, "classes.dex")
				input  = filepath.Join(dir, "app.apk")
				output = filepath.Join(dir, "out", "app-injected.apk")
				dexOut = filepath.Join(dir, "out", "recovered.dex")
			)
			if err := os.Mkdir(filepath.Dir(output), 0755); err != nil {
				t.Fatalf("creating output directory: %v", err)
			}
			payload := newDEX(400)
			writeFile(t, data, payload)
			writeFile(t, input, newArchive(t, "AndroidManifest.xml", "classes.dex"))

			var logs, stdout bytes.Buffer
			log := newLogger(&logs, 2, true)
			inject := &injectCmd{Dex: true, Strict: strict, InputData: data, InputAPK: input, OutputAPK: output}
			if err := inject.Run(&log, &stdout); err != nil {
				t.Fatalf("inject failed: %v", err)
			}
			if want := "Successfully generated " + output + ".\n"; stdout.String() != want {
				t.Errorf("inject printed %q, want %q", stdout.String(), want)
			}
			if !strings.Contains(logs.String(), "Fixing DEX checksum...") {
				t.Errorf("inject did not log the checksum repair:\n%s", logs.String())
			}
			poly := readFile(t, output)
			if err := dex.Verify(poly); err != nil {
				t.Errorf("dex.Verify() of injected APK failed: %v", err)
			}
			info, err := os.Stat(output)
			if err != nil {
				t.Fatalf("stat output: %v", err)
			}
			if got := info.Mode().Perm(); got != 0644 {
				t.Errorf("output mode: got=%v, want=%v", got, fs.FileMode(0644))
			}

			stdout.Reset()
			verify := &verifyCmd{Strict: strict, InputAPK: output}
			if err := verify.Run(&log, &stdout); err != nil {
				t.Errorf("verify failed: %v", err)
			}
			if !strings.Contains(stdout.String(), "valid DEX 035 header") {
				t.Errorf("verify printed %q", stdout.String())
			}

			stdout.Reset()
			extract := &extractCmd{Strict: strict, InputAPK: output, OutputDex: dexOut}
			if err := extract.Run(&log, &stdout); err != nil {
				t.Fatalf("extract failed: %v", err)
			}
			if want := "Successfully extracted " + dexOut + ".\n"; stdout.String() != want {
				t.Errorf("extract printed %q, want %q", stdout.String(), want)
			}
			want := append([]byte(nil), payload...)
			if err := dex.Repair(want); err != nil {
				t.Fatalf("dex.Repair() failed: %v", err)
			}
			if !bytes.Equal(readFile(t, dexOut), want) {
				t.Errorf("extracted DEX does not match the repaired payload")
			}

			entries, err := os.ReadDir(filepath.Dir(output))
			if err != nil {
				t.Fatalf("reading output directory: %v", err)
			}
			var names []string
			for _, e := range entries {
				names = append(names, e.Name())
			}
			if diff := cmp.Diff([]string{"app-injected.apk", "recovered.dex"}, names); diff != "" {
				t.Errorf("output directory diff (-want, +got): %s", diff)
			}
		})
	}
}

func TestInjectErrors(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data.txt")
	notZip := filepath.Join(dir, "notzip.apk")
	writeFile(t, data, []byte("custom data"))
	writeFile(t, notZip, []byte(strings.Repeat("definitely not a zip file", 4)))
	output := filepath.Join(dir, "out.apk")
	log := zerolog.Nop()

	inject := &injectCmd{InputData: filepath.Join(dir, "missing"), InputAPK: notZip, OutputAPK: output}
	err := inject.Run(&log, io.Discard)
	var perr *fs.PathError
	if !errors.As(err, &perr) {
		t.Errorf("inject of missing data returned %v, want *fs.PathError", err)
	}

	inject = &injectCmd{InputData: data, InputAPK: notZip, OutputAPK: output}
	err = inject.Run(&log, io.Discard)
	var ferr *apk.FormatError
	if !errors.As(err, &ferr) {
		t.Errorf("inject into non-ZIP file returned %v, want *apk.FormatError", err)
	}

	extract := &extractCmd{InputAPK: data, OutputDex: output}
	err = extract.Run(&log, io.Discard)
	if !errors.As(err, &ferr) {
		t.Errorf("extract of non-ZIP file returned %v, want *apk.FormatError", err)
	}

	if _, err := os.Stat(output); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("failed commands left output behind: %v", err)
	}
}

func TestVerifyMismatch(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "classes.dex")
	input := filepath.Join(dir, "app.apk")
	output := filepath.Join(dir, "out.apk")
	writeFile(t, data, newDEX(100))
	writeFile(t, input, newArchive(t, "classes.dex"))
	log := zerolog.Nop()

	// Without -d the header describes the payload only.
	inject := &injectCmd{InputData: data, InputAPK: input, OutputAPK: output}
	if err := inject.Run(&log, io.Discard); err != nil {
		t.Fatalf("inject failed: %v", err)
	}
	verify := &verifyCmd{InputAPK: output}
	if err := verify.Run(&log, io.Discard); err == nil {
		t.Errorf("verify of unrepaired polyglot succeeded")
	}
	verify = &verifyCmd{InputAPK: input}
	if err := verify.Run(&log, io.Discard); err == nil {
		t.Errorf("verify of plain APK succeeded")
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "classes.dex")
	input := filepath.Join(dir, "app.zip")
	writeFile(t, data, newDEX(100))
	writeFile(t, input, newArchive(t, "classes.dex"))
	log := zerolog.Nop()

	if err := os.Mkdir(filepath.Join(dir, ".git"), 0755); err != nil {
		t.Fatalf("creating directory: %v", err)
	}
	for _, out := range []string{"app.apk", ".git/ignored.apk"} {
		inject := &injectCmd{Dex: true, InputData: data, InputAPK: input, OutputAPK: filepath.Join(dir, out)}
		if err := inject.Run(&log, io.Discard); err != nil {
			t.Fatalf("inject failed: %v", err)
		}
	}

	var stdout bytes.Buffer
	scan := &scanCmd{Dirs: []string{dir}}
	if err := scan.Run(&log, &stdout); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	want := filepath.Join(dir, "app.apk") + "\tDEX 035\tvalid\n"
	if diff := cmp.Diff(want, stdout.String()); diff != "" {
		t.Errorf("scan printed diff (-want, +got): %s", diff)
	}
}

func TestWriteOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	if err := writeOutput(path, []byte("hello")); err != nil {
		t.Fatalf("writeOutput() failed: %v", err)
	}
	if got := readFile(t, path); string(got) != "hello" {
		t.Errorf("writeOutput() wrote %q, want %q", got, "hello")
	}
	// Overwrites existing files.
	if err := writeOutput(path, []byte("bye")); err != nil {
		t.Fatalf("writeOutput() failed: %v", err)
	}
	if got := readFile(t, path); string(got) != "bye" {
		t.Errorf("writeOutput() wrote %q, want %q", got, "bye")
	}

	missing := filepath.Join(dir, "missing", "out.bin")
	if err := writeOutput(missing, []byte("hello")); err == nil {
		t.Errorf("writeOutput() into a missing directory succeeded")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading directory: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("writeOutput() left temporary files behind: %v", entries)
	}
}

func TestNewLogger(t *testing.T) {
	testCases := []struct {
		verbose int
		want    zerolog.Level
	}{
		{0, zerolog.WarnLevel},
		{1, zerolog.InfoLevel},
		{2, zerolog.DebugLevel},
		{5, zerolog.DebugLevel},
	}
	for _, tc := range testCases {
		log := newLogger(io.Discard, tc.verbose, false)
		if got := log.GetLevel(); got != tc.want {
			t.Errorf("newLogger(%d): got level %v, want %v", tc.verbose, got, tc.want)
		}
	}

	var buf bytes.Buffer
	log := newLogger(&buf, 1, true)
	log.Info().Msg("hello")
	if !strings.Contains(buf.String(), `"message":"hello"`) {
		t.Errorf("JSON logger wrote %q", buf.String())
	}
}
