// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/kolkov/qsync/internal/aqs"
	"github.com/kolkov/qsync/internal/thread"
)

// Semaphore is a counting semaphore.
//
// It holds a number of permits. Acquire blocks until enough permits are
// available and takes them; Release adds permits back. Permits are not
// owned: any goroutine may release, and releasing more than was acquired
// simply raises the count.
//
// A fair Semaphore hands permits out in FIFO order, so a large request at the
// head of the queue holds back smaller ones behind it.
type Semaphore struct {
	sync *aqs.Synchronizer
	p    *semPolicy
}

type semPolicy struct {
	aqs.Unsupported
	sync *aqs.Synchronizer
	fair bool
}

// NewSemaphore returns a Semaphore with the given number of permits. A
// negative count is allowed; releases must then happen before any acquire
// succeeds.
func NewSemaphore(permits int32, fair bool, opts ...aqs.Option) *Semaphore {
	p := &semPolicy{fair: fair}
	p.sync = aqs.New(p, opts...)
	p.sync.SetState(permits)
	return &Semaphore{sync: p.sync, p: p}
}

func (p *semPolicy) TryAcquireShared(acquires int32) (int32, error) {
	if p.fair && p.sync.HasQueuedPredecessors(thread.Current()) {
		return -1, nil
	}
	return p.nonfairTryAcquireShared(acquires), nil
}

func (p *semPolicy) nonfairTryAcquireShared(acquires int32) int32 {
	for {
		available := p.sync.State()
		remaining := available - acquires
		if remaining < 0 || p.sync.CompareAndSetState(available, remaining) {
			return remaining
		}
	}
}

func (p *semPolicy) TryReleaseShared(releases int32) (bool, error) {
	for {
		current := p.sync.State()
		next := current + releases
		if next < current {
			return false, ErrPermitOverflow
		}
		if p.sync.CompareAndSetState(current, next) {
			return true, nil
		}
	}
}

func checkPermits(n int32) error {
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrNegativePermits, n)
	}
	return nil
}

// Acquire takes n permits, blocking until they are available. It fails
// with aqs.ErrInterrupted if the calling goroutine's Thread is interrupted.
func (s *Semaphore) Acquire(n int32) error {
	if err := checkPermits(n); err != nil {
		return err
	}
	return s.sync.AcquireSharedInterruptibly(n)
}

// AcquireUninterruptibly takes n permits, blocking until they are available.
func (s *Semaphore) AcquireUninterruptibly(n int32) error {
	if err := checkPermits(n); err != nil {
		return err
	}
	return s.sync.AcquireShared(n)
}

// AcquireContext is Acquire that also gives up when ctx is done.
func (s *Semaphore) AcquireContext(ctx context.Context, n int32) error {
	if err := checkPermits(n); err != nil {
		return err
	}
	return s.sync.AcquireSharedContext(ctx, n)
}

// TryAcquire takes n permits only if they are available now, ignoring
// fairness.
func (s *Semaphore) TryAcquire(n int32) (bool, error) {
	if err := checkPermits(n); err != nil {
		return false, err
	}
	return s.p.nonfairTryAcquireShared(n) >= 0, nil
}

// TryAcquireTimeout takes n permits if they become available within timeout.
func (s *Semaphore) TryAcquireTimeout(n int32, timeout time.Duration) (bool, error) {
	if err := checkPermits(n); err != nil {
		return false, err
	}
	return s.sync.TryAcquireSharedNanos(n, timeout)
}

// Release returns n permits.
func (s *Semaphore) Release(n int32) error {
	if err := checkPermits(n); err != nil {
		return err
	}
	_, err := s.sync.ReleaseShared(n)
	return err
}

// AvailablePermits returns the current number of permits.
func (s *Semaphore) AvailablePermits() int32 {
	return s.sync.State()
}

// DrainPermits takes all immediately available permits and returns how
// many it took. A negative count is reset to zero and reported as zero.
func (s *Semaphore) DrainPermits() int32 {
	for {
		current := s.sync.State()
		if current == 0 || s.sync.CompareAndSetState(current, 0) {
			return max(current, 0)
		}
	}
}

// ReducePermits shrinks the number of permits by reduction without
// blocking. Unlike Acquire it may drive the count negative.
func (s *Semaphore) ReducePermits(reduction int32) error {
	if err := checkPermits(reduction); err != nil {
		return err
	}
	for {
		current := s.sync.State()
		next := current - reduction
		if next > current {
			return ErrPermitOverflow
		}
		if s.sync.CompareAndSetState(current, next) {
			return nil
		}
	}
}

// IsFair reports whether s was created fair.
func (s *Semaphore) IsFair() bool { return s.p.fair }

// HasQueuedThreads reports whether any goroutine may be waiting for permits.
func (s *Semaphore) HasQueuedThreads() bool { return s.sync.HasQueuedThreads() }

// QueueLength estimates the number of goroutines waiting for permits.
func (s *Semaphore) QueueLength() int { return s.sync.QueueLength() }

// Synchronizer returns the engine behind s.
func (s *Semaphore) Synchronizer() *aqs.Synchronizer { return s.sync }

// String implements fmt.Stringer.
func (s *Semaphore) String() string {
	return fmt.Sprintf("Semaphore[permits = %d]", s.AvailablePermits())
}
