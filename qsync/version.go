// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qsync

import (
	"runtime"

	"golang.org/x/mod/semver"
)

// Version information for qsync.
const (
	// Version is the current library version.
	Version = "0.1.0"

	VersionMajor = 0
	VersionMinor = 1
	VersionPatch = 0
)

// Info describes the running library.
type Info struct {
	// Version is the library version string.
	Version string

	// Engine names the synchronizer algorithm.
	Engine string

	// GoVersion is the Go runtime the binary was built with.
	GoVersion string
}

// GetInfo returns information about the running library.
//
//	info := qsync.GetInfo()
//	fmt.Printf("qsync %s (%s)\n", info.Version, info.Engine)
func GetInfo() Info {
	return Info{
		Version:   Version,
		Engine:    "CLH queue synchronizer",
		GoVersion: runtime.Version(),
	}
}

// AtLeast reports whether the library version is v or newer. v may omit the
// leading "v"; an invalid v reports false.
func AtLeast(v string) bool {
	if v == "" || v[0] != 'v' {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return false
	}
	return semver.Compare("v"+Version, v) >= 0
}
