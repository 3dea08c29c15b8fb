// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stackdepot stores deduplicated call-site stacks of blocked waiters.
//
// When a synchronizer is built with stack capture enabled, every goroutine that
// enqueues records where it blocked. Identical stacks are stored once and
// referenced by a 64-bit hash, so a node only carries a uint64.
//
// Design:
//   - Fixed-size stack traces (MaxFrames frames)
//   - Hash-based deduplication (FNV-1a over program counters)
//   - Global sync.Map storage
//
// Usage:
//
//	hash := stackdepot.CaptureStack(1)
//
//	// Later, from a diagnostics path
//	if st := stackdepot.GetStack(hash); st != nil {
//	    fmt.Print(st.FormatStack())
//	}
package stackdepot

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"runtime"
	"strings"
	"sync"
)

// MaxFrames is the maximum number of stack frames kept per trace.
// Internal engine frames are skipped before counting, so the frames kept
// are the caller's.
const MaxFrames = 8

// StackTrace is a captured call stack of fixed size.
type StackTrace struct {
	PC [MaxFrames]uintptr
}

// depot maps a uint64 hash to its *StackTrace.
var depot sync.Map

// CaptureStack records the calling goroutine's stack and returns its hash.
//
// skip is the number of frames above CaptureStack's caller to omit; 0 starts
// the trace at the caller itself. Returns 0 if no frames are available.
//
// Safe for concurrent use.
func CaptureStack(skip int) uint64 {
	var pcs [MaxFrames]uintptr
	// runtime.Callers and CaptureStack itself.
	n := runtime.Callers(skip+2, pcs[:])
	if n == 0 {
		return 0
	}

	hash := hashStack(pcs[:n])
	if _, exists := depot.Load(hash); exists {
		return hash
	}

	depot.LoadOrStore(hash, &StackTrace{PC: pcs})
	return hash
}

// GetStack returns the trace stored under hash, or nil if hash is zero or
// unknown.
func GetStack(hash uint64) *StackTrace {
	if hash == 0 {
		return nil
	}
	val, ok := depot.Load(hash)
	if !ok {
		return nil
	}
	return val.(*StackTrace)
}

func hashStack(pcs []uintptr) uint64 {
	h := fnv.New64a()
	var b [8]byte
	for _, pc := range pcs {
		binary.LittleEndian.PutUint64(b[:], uint64(pc))
		_, _ = h.Write(b[:]) // hash.Hash never fails.
	}
	return h.Sum64()
}

// Frames returns the function names of the trace, runtime frames excluded.
func (st *StackTrace) Frames() []string {
	if st == nil {
		return nil
	}

	var out []string
	frames := runtime.CallersFrames(trimmed(st.PC[:]))
	for {
		frame, more := frames.Next()
		if frame.PC == 0 {
			break
		}
		if !strings.HasPrefix(frame.Function, "runtime.") {
			out = append(out, frame.Function)
		}
		if !more {
			break
		}
	}
	return out
}

// FormatStack renders the trace in the layout of a goroutine dump:
//
//	main.consumer()
//	    /path/to/file.go:45
//
// Runtime frames are omitted.
func (st *StackTrace) FormatStack() string {
	if st == nil {
		return "  <unknown>\n"
	}

	var buf strings.Builder
	frames := runtime.CallersFrames(trimmed(st.PC[:]))
	for {
		frame, more := frames.Next()
		if frame.PC == 0 {
			break
		}
		if !strings.HasPrefix(frame.Function, "runtime.") {
			fmt.Fprintf(&buf, "  %s()\n", frame.Function)
			fmt.Fprintf(&buf, "      %s:%d\n", frame.File, frame.Line)
		}
		if !more {
			break
		}
	}

	if buf.Len() == 0 {
		return "  <runtime internal>\n"
	}
	return buf.String()
}

func trimmed(pcs []uintptr) []uintptr {
	for i, pc := range pcs {
		if pc == 0 {
			return pcs[:i]
		}
	}
	return pcs
}

// Reset clears the depot. Intended for tests.
func Reset() {
	depot.Range(func(key, _ any) bool {
		depot.Delete(key)
		return true
	})
}

// Stats returns the number of unique stacks and their approximate memory use.
// O(N), not for hot paths.
func Stats() (uniqueStacks int, totalMemory int64) {
	depot.Range(func(_, _ any) bool {
		uniqueStacks++
		return true
	})

	// Trace array plus sync.Map entry overhead.
	const bytesPerStack = MaxFrames*8 + 32
	return uniqueStacks, int64(uniqueStacks) * bytesPerStack
}
