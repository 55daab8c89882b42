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
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/google/janus/dex"
	"github.com/google/janus/pool"
)

// Extensions of files the Walker inspects. Android installs an APK whatever
// its name, but scanning every file is too slow for large trees.
var exts = map[string]bool{
	".apk": true,
	".dex": true,
	".jar": true,
	".zip": true,
}

const minBufSize = 64 << 10 // 64 KiB

var bufPool = pool.Buffers{MinSize: minBufSize}

// Walker implements a filesystem walker to find files that are both an
// archive and a DEX file.
type Walker struct {
	// Options is used to Check every polyglot found.
	Options *Options
	// SkipDir, if provided, allows the walker to skip certain directories
	// as it scans.
	SkipDir func(path string, de fs.DirEntry) bool
	// HandleError can be used to handle errors for a given directory or
	// file.
	HandleError func(path string, err error)
	// HandleReport is called for every polyglot found.
	HandleReport func(path string, r *Report)
}

// Walk scans dir recursively for polyglots.
func (w *Walker) Walk(dir string) error {
	fsys := os.DirFS(dir)
	wk := walker{w, fsys, dir}

	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			wk.handleError(p, err)
			return nil
		}
		if wk.skipDir(p, d) {
			return fs.SkipDir
		}
		if err := wk.visit(p, d); err != nil {
			wk.handleError(p, err)
		}
		return nil
	})
}

type walker struct {
	*Walker
	fs  fs.FS
	dir string
}

func (w *walker) filepath(path string) string {
	return filepath.Join(w.dir, path)
}

func (w *walker) handleError(path string, err error) {
	if w.HandleError == nil {
		return
	}
	w.HandleError(w.filepath(path), err)
}

func (w *walker) handleReport(path string, r *Report) {
	if w.HandleReport == nil {
		return
	}
	w.HandleReport(w.filepath(path), r)
}

func (w *walker) skipDir(path string, d fs.DirEntry) bool {
	if w.SkipDir == nil {
		return false
	}
	return w.SkipDir(w.filepath(path), d)
}

func (w *walker) visit(p string, d fs.DirEntry) error {
	if d.IsDir() || !d.Type().IsRegular() {
		return nil
	}
	if !exts[path.Ext(p)] {
		return nil
	}
	f, err := w.fs.Open(p)
	if err != nil {
		return fmt.Errorf("open: %v", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat: %v", err)
	}
	ra, ok := f.(io.ReaderAt)
	if !ok {
		return fmt.Errorf("file doesn't implement reader at: %T", f)
	}

	// Most archives are not DEX files, only read the magic before reading
	// the whole file.
	var magic [8]byte
	if _, err := ra.ReadAt(magic[:], 0); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("reading header: %v", err)
	}
	if !dex.HasMagic(magic[:]) {
		return nil
	}

	buf := bufPool.Get(int(info.Size()))
	defer bufPool.Put(buf)
	if _, err := io.ReadFull(io.NewSectionReader(ra, 0, info.Size()), buf); err != nil {
		return fmt.Errorf("reading file: %v", err)
	}
	if !IsArchive(buf) {
		return nil
	}
	r, err := Check(buf, w.Options)
	if err != nil {
		return fmt.Errorf("checking polyglot: %v", err)
	}
	w.handleReport(p, r)
	return nil
}
