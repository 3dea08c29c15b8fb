// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package thread

import (
	"sync"
	"sync/atomic"
)

// sweepInterval is the number of registrations between dead-goroutine sweeps.
const sweepInterval = 1000

var (
	// threads maps goroutine IDs to their *Thread.
	// Key: int64 (goroutine ID), Value: *Thread.
	threads sync.Map

	// registrations numbers each new Thread. A sweep only reclaims threads
	// registered before its stack dump was taken.
	registrations atomic.Uint64

	// sweeping is set while a background sweep is running.
	sweeping atomic.Bool
)

// Current returns the Thread of the calling goroutine, registering it on first use.
//
// The returned pointer is stable until the goroutine exits (or calls Forget),
// so callers may compare Threads with ==.
func Current() *Thread {
	gid := goroutineID()

	if val, ok := threads.Load(gid); ok {
		return val.(*Thread)
	}

	t := newThread(gid, registrations.Add(1))
	val, _ := threads.LoadOrStore(gid, t)

	if t.seq%sweepInterval == 0 {
		maybeSweep()
	}

	return val.(*Thread)
}

// Forget drops the calling goroutine's Thread from the registry.
//
// Long-lived worker pools that recycle goroutines do not need this. It exists
// for goroutines that exit immediately after using a synchronizer and want
// their entry gone before the next sweep.
func Forget() {
	threads.Delete(goroutineID())
}

// Registered returns the number of Threads currently in the registry.
func Registered() int {
	n := 0
	threads.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Sweep removes registry entries of goroutines that no longer exist and
// returns how many were removed.
func Sweep() int {
	// Threads registered after this point may be missing from the dump.
	horizon := registrations.Load()

	live := liveGoroutineIDs()
	liveSet := make(map[int64]struct{}, len(live))
	for _, gid := range live {
		liveSet[gid] = struct{}{}
	}

	removed := 0
	threads.Range(func(key, value any) bool {
		gid := key.(int64)
		t := value.(*Thread)

		if t.seq > horizon {
			return true
		}
		if _, ok := liveSet[gid]; !ok {
			if threads.CompareAndDelete(gid, t) {
				removed++
			}
		}
		return true
	})

	return removed
}

func maybeSweep() {
	if !sweeping.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer sweeping.Store(false)
		Sweep()
	}()
}
