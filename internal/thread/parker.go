// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package thread

import (
	"sync/atomic"
	"time"
)

// Parker states.
//
//	EMPTY   -> no permit, owner not blocked
//	PRESENT -> one permit available (permits never accumulate)
//	PARKED  -> owner is blocked waiting for a permit
const (
	parkEmpty int32 = iota
	parkPresent
	parkParked
)

// parker is a single-permit blocking primitive owned by one goroutine.
//
// Only the owning goroutine calls park. Any goroutine may call unpark.
//
// Unpark of a PARKED owner hands the permit over directly (PARKED -> EMPTY plus
// a token on wake), so a permit granted while the owner is still returning
// from an earlier wakeup is recorded as PRESENT instead of being swallowed.
// The wake channel holds a token exactly while a hand-off is in flight.
type parker struct {
	state atomic.Int32
	wake  chan struct{}
}

func newParker() *parker {
	return &parker{wake: make(chan struct{}, 1)}
}

// park blocks until a permit is available or the timeout elapses.
//
// timeout <= 0 means wait without a deadline. Returns true if a permit was
// consumed, false on timeout. Callers must tolerate spurious returns.
func (p *parker) park(timeout time.Duration, interrupted *atomic.Bool) bool {
	for {
		if p.state.CompareAndSwap(parkPresent, parkEmpty) {
			return true
		}
		if p.state.CompareAndSwap(parkEmpty, parkParked) {
			break
		}
	}

	// Interrupt sets the flag before it unparks, so a set flag means the
	// wakeup is already owed. Don't sleep for it.
	if interrupted != nil && interrupted.Load() {
		if p.state.CompareAndSwap(parkParked, parkEmpty) {
			return false
		}
		<-p.wake
		return true
	}

	if timeout <= 0 {
		<-p.wake
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.wake:
		return true
	case <-timer.C:
		if p.state.CompareAndSwap(parkParked, parkEmpty) {
			return false
		}
		// An unpark won the race and is handing off, take the token.
		<-p.wake
		return true
	}
}

// unpark makes a permit available. Idempotent while a permit is pending.
func (p *parker) unpark() {
	for {
		switch p.state.Load() {
		case parkPresent:
			return
		case parkEmpty:
			if p.state.CompareAndSwap(parkEmpty, parkPresent) {
				return
			}
		case parkParked:
			if p.state.CompareAndSwap(parkParked, parkEmpty) {
				p.wake <- struct{}{}
				return
			}
		}
	}
}

// hasPermit reports whether a permit is pending. Monitoring only.
func (p *parker) hasPermit() bool {
	return p.state.Load() == parkPresent
}
