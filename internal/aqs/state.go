// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aqs

import (
	"fmt"
	"sync/atomic"
)

// Synchronizer is the blocking engine shared by every lock in qsync.
//
// It owns a 32-bit state word and a FIFO wait queue of parked goroutines.
// What the state means, and when an acquire succeeds, is decided by the
// Policy passed to New. The Synchronizer only handles queueing, parking and
// wakeups.
//
// A Synchronizer must not be copied after first use.
type Synchronizer struct {
	noCopy noCopy

	policy Policy
	opts   options

	state atomic.Int32

	// head is the dummy node whose successor is next in line. It is created
	// lazily on first contention and is never cancelled.
	head atomic.Pointer[Node]
	tail atomic.Pointer[Node]

	stats counters
}

// New returns a Synchronizer driven by policy, with state 0 and an empty queue.
func New(policy Policy, opts ...Option) *Synchronizer {
	if policy == nil {
		panic("aqs: nil Policy")
	}
	s := &Synchronizer{policy: policy, opts: defaultOptions()}
	for _, opt := range opts {
		opt(&s.opts)
	}
	return s
}

// State returns the current state value.
func (s *Synchronizer) State() int32 {
	return s.state.Load()
}

// SetState sets the state value. Policies use it when they already own the
// synchronizer and no CAS is needed.
func (s *Synchronizer) SetState(v int32) {
	s.state.Store(v)
}

// CompareAndSetState atomically sets the state to update if it currently
// equals expect.
func (s *Synchronizer) CompareAndSetState(expect, update int32) bool {
	return s.state.CompareAndSwap(expect, update)
}

// Name returns the name given with WithName, or "".
func (s *Synchronizer) Name() string {
	return s.opts.name
}

// String describes the state and whether the queue is empty.
func (s *Synchronizer) String() string {
	q := "empty queue"
	if s.HasQueuedThreads() {
		q = "nonempty queue"
	}
	name := s.opts.name
	if name == "" {
		name = fmt.Sprintf("%p", s)
	}
	return fmt.Sprintf("Synchronizer(%s)[state=%d, %s]", name, s.State(), q)
}

// noCopy may be embedded into structs which must not be copied after first
// use. See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
