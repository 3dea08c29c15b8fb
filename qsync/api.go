// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qsync

import (
	"log/slog"

	"github.com/kolkov/qsync/internal/aqs"
	"github.com/kolkov/qsync/internal/locks"
	"github.com/kolkov/qsync/internal/thread"
)

type (
	// Synchronizer is the queued synchronizer engine. See [New].
	Synchronizer = aqs.Synchronizer

	// Policy defines what acquiring and releasing a Synchronizer means.
	Policy = aqs.Policy

	// Unsupported implements every Policy hook by failing with
	// ErrUnsupported. Embed it in custom policies.
	Unsupported = aqs.Unsupported

	// Condition is a wait set bound to an exclusively held Synchronizer.
	Condition = aqs.Condition

	// Option configures a Synchronizer.
	Option = aqs.Option

	// Stats is a snapshot of a Synchronizer's activity counters.
	Stats = aqs.Stats

	// WaiterInfo describes one queued goroutine.
	WaiterInfo = aqs.WaiterInfo

	// Mode is the mode a waiter is queued in.
	Mode = aqs.Mode

	// Thread is the identity, park permit and interrupt flag of a goroutine.
	Thread = thread.Thread
)

type (
	Mutex          = locks.Mutex
	RWMutex        = locks.RWMutex
	Semaphore      = locks.Semaphore
	CountDownLatch = locks.CountDownLatch
	CyclicBarrier  = locks.CyclicBarrier
)

const (
	Exclusive = aqs.Exclusive
	Shared    = aqs.Shared
)

var (
	ErrIllegalMonitorState = aqs.ErrIllegalMonitorState
	ErrUnsupported         = aqs.ErrUnsupported
	ErrInterrupted         = aqs.ErrInterrupted
	ErrForeignCondition    = aqs.ErrForeignCondition

	ErrHoldCountExceeded     = locks.ErrHoldCountExceeded
	ErrReadHoldCountExceeded = locks.ErrReadHoldCountExceeded
	ErrNegativePermits       = locks.ErrNegativePermits
	ErrPermitOverflow        = locks.ErrPermitOverflow
	ErrBrokenBarrier         = locks.ErrBrokenBarrier
	ErrBarrierTimeout        = locks.ErrBarrierTimeout
	ErrInvalidParties        = locks.ErrInvalidParties
)

// New returns a Synchronizer driven by policy. The state starts at zero.
//
// The policy usually needs the Synchronizer to read and CAS the state, so
// construct the policy first and assign the result to it:
//
//	l := &latch{}
//	l.sync = qsync.New(l)
func New(policy Policy, opts ...Option) *Synchronizer {
	return aqs.New(policy, opts...)
}

// WithName names a synchronizer in logs, String and metrics.
func WithName(name string) Option { return aqs.WithName(name) }

// WithLogger sets the logger for slow-path events.
func WithLogger(l *slog.Logger) Option { return aqs.WithLogger(l) }

// WithStackCapture records the stack of every goroutine that queues.
func WithStackCapture(enabled bool) Option { return aqs.WithStackCapture(enabled) }

// WithStatsSampling counts one in every rate uncontended acquires.
func WithStatsSampling(rate uint64) Option { return aqs.WithStatsSampling(rate) }

// CurrentThread returns the Thread of the calling goroutine.
func CurrentThread() *Thread { return thread.Current() }

// ForgetThread drops the calling goroutine's Thread from the registry.
func ForgetThread() { thread.Forget() }

// NewMutex returns an unlocked reentrant mutex.
func NewMutex(fair bool, opts ...Option) *Mutex {
	return locks.NewMutex(fair, opts...)
}

// NewRWMutex returns an unlocked reentrant read-write mutex.
func NewRWMutex(fair bool, opts ...Option) *RWMutex {
	return locks.NewRWMutex(fair, opts...)
}

// NewSemaphore returns a semaphore with the given number of permits.
// permits may be negative, in which case releases must come first.
func NewSemaphore(permits int32, fair bool, opts ...Option) *Semaphore {
	return locks.NewSemaphore(permits, fair, opts...)
}

// NewCountDownLatch returns a latch that opens after count CountDown calls.
func NewCountDownLatch(count int32, opts ...Option) (*CountDownLatch, error) {
	return locks.NewCountDownLatch(count, opts...)
}

// NewCyclicBarrier returns a barrier for parties goroutines. action, if not
// nil, runs in the last goroutine to arrive before the others are released.
func NewCyclicBarrier(parties int, action func() error, opts ...Option) (*CyclicBarrier, error) {
	return locks.NewCyclicBarrier(parties, action, opts...)
}
