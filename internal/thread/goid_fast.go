// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.24 && !go1.26 && (amd64 || arm64)

package thread

import "unsafe"

const fastGoidAvailable = true

// getg returns the calling goroutine's runtime.g pointer.
// Implemented in goid_amd64.s and goid_arm64.s.
//
//go:noescape
func getg() uintptr

// fastGoroutineID reads g.goid at goidOffset. It returns 0 if getg does.
//
//go:nosplit
//go:nocheckptr
func fastGoroutineID() int64 {
	gp := getg()
	if gp == 0 {
		return 0
	}
	//nolint:gosec // G103: reads runtime.g.goid
	return int64(*(*uint64)(unsafe.Pointer(gp + goidOffset)))
}
