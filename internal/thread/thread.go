// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package thread

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Thread is the identity, park permit and interruption flag of one goroutine.
//
// A Thread is obtained with Current() from the goroutine it represents. Its
// pointer is stable for the goroutine's lifetime and serves as the opaque key
// for ownership and hold counts. Any goroutine may Unpark or Interrupt a
// Thread; only its own goroutine may Park on it.
type Thread struct {
	id  int64
	seq uint64

	parker      *parker
	interrupted atomic.Bool

	// blocker is the object the thread is parked on, nil when running.
	blocker atomic.Pointer[blockerBox]
}

type blockerBox struct{ v any }

func newThread(id int64, seq uint64) *Thread {
	return &Thread{id: id, seq: seq, parker: newParker()}
}

// ID returns the goroutine ID this Thread was registered under.
func (t *Thread) ID() int64 { return t.id }

// String implements fmt.Stringer.
func (t *Thread) String() string {
	if t == nil {
		return "thread(<nil>)"
	}
	return fmt.Sprintf("thread(%d)", t.id)
}

// Park blocks the calling goroutine until a permit is available.
//
// Returns immediately if a permit is pending or the thread is interrupted.
// Spurious returns are allowed, callers recheck their condition in a loop.
// Must be called only by the goroutine t represents.
func (t *Thread) Park(blocker any) {
	t.setBlocker(blocker)
	t.parker.park(0, &t.interrupted)
	t.setBlocker(nil)
}

// ParkNanos is Park with an upper bound on the wait. A non-positive timeout
// returns immediately.
func (t *Thread) ParkNanos(blocker any, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	t.setBlocker(blocker)
	t.parker.park(timeout, &t.interrupted)
	t.setBlocker(nil)
}

// ParkUntil is Park with an absolute deadline.
func (t *Thread) ParkUntil(blocker any, deadline time.Time) {
	t.ParkNanos(blocker, time.Until(deadline))
}

// Unpark makes one permit available to t. Calling it again before t parks
// has no further effect.
func (t *Thread) Unpark() {
	if t != nil {
		t.parker.unpark()
	}
}

// Interrupt sets t's interrupted flag and wakes it if parked.
func (t *Thread) Interrupt() {
	t.interrupted.Store(true)
	t.parker.unpark()
}

// Interrupted reports whether t was interrupted and clears the flag.
func (t *Thread) Interrupted() bool {
	return t.interrupted.Swap(false)
}

// IsInterrupted reports whether t is interrupted without clearing the flag.
func (t *Thread) IsInterrupted() bool {
	return t.interrupted.Load()
}

// Blocker returns the object t is currently parked on, or nil.
func (t *Thread) Blocker() any {
	if b := t.blocker.Load(); b != nil {
		return b.v
	}
	return nil
}

func (t *Thread) setBlocker(v any) {
	if v == nil {
		t.blocker.Store(nil)
		return
	}
	t.blocker.Store(&blockerBox{v: v})
}
