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

//go:build linux

package main

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Pseudo filesystems. They can't hold output files and scanning them is a
// waste of time.
var toRefuse = map[int64]string{
	unix.BPF_FS_MAGIC:       "bpf",
	unix.CGROUP_SUPER_MAGIC: "cgroup",
	unix.DEBUGFS_MAGIC:      "debugfs",
	unix.DEVPTS_SUPER_MAGIC: "devpts",
	unix.PROC_SUPER_MAGIC:   "proc",
	unix.SECURITYFS_MAGIC:   "securityfs",
	unix.SYSFS_MAGIC:        "sysfs",
	unix.TRACEFS_MAGIC:      "tracefs",
}

func pseudoFilesystem(dir string) (string, bool, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return "", false, fmt.Errorf("determining filesystem of %s: %w", dir, err)
	}
	name, ok := toRefuse[int64(stat.Type)]
	return name, ok, nil
}

func checkFilesystem(dir string) error {
	name, ok, err := pseudoFilesystem(dir)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("refusing to write to %s filesystem at %s", name, dir)
	}
	return nil
}

func ignoreDir(path string) (bool, error) {
	_, ok, err := pseudoFilesystem(path)
	return ok, err
}
