// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package thread provides goroutine identity, a single-permit park/unpark
// primitive and a cooperative interruption flag.
//
// These are the collaborators the queued synchronizer engine needs from the
// scheduler:
//   - an opaque identity token per goroutine (Current)
//   - Park/Unpark with one non-accumulating permit per goroutine
//   - an interrupted flag with test-and-clear semantics (Interrupt/Interrupted)
//
// Example:
//
//	t := thread.Current()
//	go func() {
//		// ... make the awaited condition true ...
//		t.Unpark()
//	}()
//	for !condition() {
//		t.Park(nil)
//	}
//
// Park may return spuriously; callers always recheck in a loop.
package thread
