// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package locks

import "errors"

var (
	// ErrHoldCountExceeded is returned when a reentrant acquire would
	// overflow the hold count.
	ErrHoldCountExceeded = errors.New("qsync: maximum lock count exceeded")

	// ErrReadHoldCountExceeded is returned when an RWMutex has the maximum
	// number of read holds.
	ErrReadHoldCountExceeded = errors.New("qsync: maximum read lock count exceeded")

	// ErrNegativePermits is returned for negative permit or count arguments.
	ErrNegativePermits = errors.New("qsync: negative permit count")

	// ErrPermitOverflow is returned when a release would overflow the
	// permit count of a Semaphore.
	ErrPermitOverflow = errors.New("qsync: maximum permit count exceeded")

	// ErrBrokenBarrier is returned to every party of a CyclicBarrier once a
	// party is interrupted or times out, the barrier action fails, or the
	// barrier is reset while parties wait.
	ErrBrokenBarrier = errors.New("qsync: broken barrier")

	// ErrBarrierTimeout is returned to the party whose timed wait expired.
	// The barrier is broken for everyone else.
	ErrBarrierTimeout = errors.New("qsync: barrier wait timed out")

	// ErrInvalidParties is returned for a CyclicBarrier with fewer than one party.
	ErrInvalidParties = errors.New("qsync: barrier needs at least one party")
)
