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

// The janus tool injects a DEX file or custom data into an APK, producing a
// file that is both, and recovers the DEX file from such an APK.
package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/janus/apk"
	"github.com/google/janus/polyglot"
	"github.com/rs/zerolog"
)

type cli struct {
	Verbose int  `short:"v" type:"counter" help:"Increase output verbosity (e.g., -vv is more than -v)."`
	LogJSON bool `name:"log-json" help:"Print diagnostics as JSON."`

	Inject  injectCmd  `cmd:"" help:"Inject custom code or custom data into an APK."`
	Extract extractCmd `cmd:"" help:"Recover the DEX file injected into an APK."`
	Verify  verifyCmd  `cmd:"" help:"Check that a file is both a valid APK and a valid DEX file."`
	Scan    scanCmd    `cmd:"" help:"Walk directories for files that are both an APK and a DEX file."`
}

type injectCmd struct {
	Dex    bool `short:"d" help:"Correct the input DEX's checksums."`
	Strict bool `help:"Walk the central directory using recorded lengths instead of scanning for signatures."`

	InputData string `arg:"" name:"input_data" type:"path" help:"A DEX file or custom data, like a TXT file."`
	InputAPK  string `arg:"" name:"input_apk" type:"path" help:"The APK to inject the data into."`
	OutputAPK string `arg:"" name:"output_apk" type:"path" help:"The output APK filename."`
}

func (c *injectCmd) Run(log *zerolog.Logger, stdout io.Writer) error {
	out, err := polyglot.InjectFile(c.InputData, c.InputAPK, &polyglot.Options{
		RepairChecksum: c.Dex,
		Mode:           mode(c.Strict),
		Logger:         log,
	})
	if err != nil {
		return err
	}
	log.Info().Msgf("Saving injected APK to %s...", c.OutputAPK)
	if err := writeOutput(c.OutputAPK, out); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Successfully generated %s.\n", c.OutputAPK)
	return nil
}

type extractCmd struct {
	Strict bool `help:"Locate the archive through its central directory instead of the first local file header."`

	InputAPK  string `arg:"" name:"input_apk" type:"path" help:"An APK produced by inject."`
	OutputDex string `arg:"" name:"output_dex" type:"path" help:"The output DEX filename."`
}

func (c *extractCmd) Run(log *zerolog.Logger, stdout io.Writer) error {
	out, err := polyglot.ExtractFile(c.InputAPK, &polyglot.Options{
		Mode:   mode(c.Strict),
		Logger: log,
	})
	if err != nil {
		return err
	}
	log.Info().Msgf("Saving DEX to %s...", c.OutputDex)
	if err := writeOutput(c.OutputDex, out); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Successfully extracted %s.\n", c.OutputDex)
	return nil
}

type verifyCmd struct {
	Strict bool `help:"Locate the archive through its central directory instead of the first local file header."`

	InputAPK string `arg:"" name:"input_apk" type:"path" help:"The APK to check."`
}

func (c *verifyCmd) Run(log *zerolog.Logger, stdout io.Writer) error {
	b, err := os.ReadFile(c.InputAPK)
	if err != nil {
		return fmt.Errorf("reading APK: %w", err)
	}
	r, err := polyglot.Check(b, &polyglot.Options{Mode: mode(c.Strict), Logger: log})
	if err != nil {
		return err
	}
	log.Debug().Strs("entries", r.Entries).Msg("Archive entries")
	fmt.Fprintf(stdout, "%s: %d bytes, %d entries, archive at offset %d\n", c.InputAPK, r.Size, len(r.Entries), r.Boundary)
	switch {
	case r.Version == "":
		return fmt.Errorf("%s does not start with a DEX header", c.InputAPK)
	case len(r.Mismatch) > 0:
		return fmt.Errorf("%s: DEX %s header %s mismatch", c.InputAPK, r.Version, strings.Join(r.Mismatch, ", "))
	}
	fmt.Fprintf(stdout, "%s: valid DEX %s header\n", c.InputAPK, r.Version)
	return nil
}

var skipDirs = map[string]bool{
	".hg":          true,
	".git":         true,
	"node_modules": true,
}

type scanCmd struct {
	Strict bool `help:"Locate the archive through its central directory instead of the first local file header."`

	Dirs []string `arg:"" name:"directories" type:"existingdir" help:"Directories to scan."`
}

// Run prints the path of every polyglot found, followed by whether its DEX
// header is consistent.
func (c *scanCmd) Run(log *zerolog.Logger, stdout io.Writer) error {
	seen := 0
	walker := polyglot.Walker{
		Options: &polyglot.Options{Mode: mode(c.Strict), Logger: log},
		SkipDir: func(path string, d fs.DirEntry) bool {
			seen++
			if seen%5000 == 0 {
				log.Info().Msgf("Scanned %d files", seen)
			}
			if !d.IsDir() {
				return false
			}
			ignore, err := ignoreDir(path)
			if err != nil {
				log.Error().Err(err).Msgf("Scanning %s", path)
				return true
			}
			return ignore || skipDirs[filepath.Base(path)]
		},
		HandleError: func(path string, err error) {
			log.Error().Err(err).Msgf("Scanning %s", path)
		},
		HandleReport: func(path string, r *polyglot.Report) {
			state := "valid"
			if !r.Valid() {
				state = strings.Join(r.Mismatch, ", ") + " mismatch"
			}
			log.Debug().Strs("entries", r.Entries).Int("boundary", r.Boundary).Msgf("Found polyglot %s", path)
			fmt.Fprintf(stdout, "%s\tDEX %s\t%s\n", path, r.Version, state)
		},
	}
	for _, dir := range c.Dirs {
		log.Info().Msgf("Scanning %s", dir)
		if err := walker.Walk(dir); err != nil {
			log.Error().Err(err).Msgf("Walking %s", dir)
		}
	}
	return nil
}

func mode(strict bool) apk.Mode {
	if strict {
		return apk.ModeStrict
	}
	return apk.ModeCompat
}

// newLogger returns the diagnostics logger for the given -v count.
func newLogger(w io.Writer, verbose int, json bool) zerolog.Logger {
	if !json {
		// Adds support for NO_COLOR. More info https://no-color.org/
		_, noColor := os.LookupEnv("NO_COLOR")
		w = zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    noColor,
			TimeFormat: time.Kitchen,
		}
	}
	level := zerolog.WarnLevel
	switch {
	case verbose >= 2:
		level = zerolog.DebugLevel
	case verbose == 1:
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("janus"),
		kong.Description("Inject custom code or custom data into an APK, or recover it."),
		kong.UsageOnError(),
		kong.BindTo(os.Stdout, (*io.Writer)(nil)),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	log := newLogger(os.Stderr, c.Verbose, c.LogJSON)
	ctx.FatalIfErrorf(ctx.Run(&log))
}
