// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Goroutine ID extraction.
//
// Goroutine IDs are used only as opaque registry keys for Current(). On
// amd64 and arm64 with Go 1.24-1.25 they are read straight from runtime.g
// (goid_fast.go, ~1-2ns). Everywhere else, or when that read disagrees with
// the stack header at startup, they are parsed from the first line of
// runtime.Stack output (~1-5µs):
//
//	goroutine 123 [running]:

package thread

import "runtime"

// goroutinePrefix is the leading text of every goroutine header line.
const goroutinePrefix = "goroutine "

// fastGoidOK is set when fastGoroutineID matches the stack header on this
// runtime, checked on two goroutines.
var fastGoidOK = fastGoidAvailable && fastGoidAgrees()

func fastGoidAgrees() bool {
	if fastGoroutineID() != stackGoroutineID() {
		return false
	}
	ok := make(chan bool)
	go func() { ok <- fastGoroutineID() == stackGoroutineID() }()
	return <-ok
}

// goroutineID returns the current goroutine ID, or 0 if it cannot be parsed.
func goroutineID() int64 {
	if fastGoidOK {
		if gid := fastGoroutineID(); gid > 0 {
			return gid
		}
	}
	return stackGoroutineID()
}

// stackGoroutineID parses the current goroutine ID from runtime.Stack.
func stackGoroutineID() int64 {
	// Only the first line is needed, 64 bytes is plenty.
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGID(buf[:n])
}

// parseGID extracts the goroutine ID from a "goroutine N [...]" header.
//
// Returns 0 if the prefix is missing or no digits follow it.
func parseGID(buf []byte) int64 {
	if len(buf) < len(goroutinePrefix) || string(buf[:len(goroutinePrefix)]) != goroutinePrefix {
		return 0
	}

	var gid int64
	for _, c := range buf[len(goroutinePrefix):] {
		if c < '0' || c > '9' {
			break
		}
		gid = gid*10 + int64(c-'0')
	}
	return gid
}

// liveGoroutineIDs returns the IDs of all goroutines currently alive.
//
// This dumps every goroutine stack, so it costs ~1ms per 1000 goroutines and
// must stay off hot paths. The buffer grows until the dump fits, a truncated
// dump would make live goroutines look dead.
func liveGoroutineIDs() []int64 {
	buf := make([]byte, 1<<20)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return parseAllGIDs(buf[:n])
		}
		buf = make([]byte, 2*len(buf))
	}
}

// parseAllGIDs parses a runtime.Stack(all=true) dump into goroutine IDs.
func parseAllGIDs(buf []byte) []int64 {
	var gids []int64

	for i := 0; i < len(buf); {
		end := i
		for end < len(buf) && buf[end] != '\n' {
			end++
		}

		if gid := parseGID(buf[i:end]); gid != 0 {
			gids = append(gids, gid)
		}

		i = end + 1
	}

	return gids
}
