// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aqs

import (
	"context"
	"time"

	"github.com/kolkov/qsync/internal/thread"
)

// Acquire acquires in exclusive mode, blocking until TryAcquire succeeds.
//
// Interrupts do not abort the wait; an interrupt received while queued is
// re-asserted on the calling Thread before returning. The only error is one
// returned by a policy hook.
func (s *Synchronizer) Acquire(arg int32) error {
	ok, err := s.policy.TryAcquire(arg)
	if err != nil {
		return err
	}
	if ok {
		s.stats.sampleFast(s.opts.sampleRate)
		return nil
	}

	w := &waiter{th: thread.Current()}
	err = s.acquireQueued(w, Exclusive, arg)
	w.finish()
	return err
}

// AcquireInterruptibly is Acquire, but returns ErrInterrupted if the calling
// Thread is interrupted before or while waiting.
func (s *Synchronizer) AcquireInterruptibly(arg int32) error {
	th, err := enterInterruptible()
	if err != nil {
		return err
	}
	ok, err := s.policy.TryAcquire(arg)
	if err != nil {
		return err
	}
	if ok {
		s.stats.sampleFast(s.opts.sampleRate)
		return nil
	}
	return s.acquireQueued(&waiter{th: th, interruptible: true}, Exclusive, arg)
}

// TryAcquireNanos is AcquireInterruptibly bounded by timeout. It reports
// whether the synchronizer was acquired; running out of time is not an
// error. A non-positive timeout makes a single attempt without queueing.
func (s *Synchronizer) TryAcquireNanos(arg int32, timeout time.Duration) (bool, error) {
	th, err := enterInterruptible()
	if err != nil {
		return false, err
	}
	ok, err := s.policy.TryAcquire(arg)
	if err != nil {
		return false, err
	}
	if ok {
		s.stats.sampleFast(s.opts.sampleRate)
		return true, nil
	}
	if timeout <= 0 {
		return false, nil
	}

	w := &waiter{th: th, interruptible: true, deadline: time.Now().Add(timeout)}
	return timedResult(s.acquireQueued(w, Exclusive, arg))
}

// AcquireContext is AcquireInterruptibly that also gives up when ctx is
// done, returning ctx.Err().
func (s *Synchronizer) AcquireContext(ctx context.Context, arg int32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	th, err := enterInterruptible()
	if err != nil {
		return err
	}
	ok, err := s.policy.TryAcquire(arg)
	if err != nil {
		return err
	}
	if ok {
		s.stats.sampleFast(s.opts.sampleRate)
		return nil
	}
	return s.acquireQueued(&waiter{th: th, interruptible: true, ctx: ctx}, Exclusive, arg)
}

// Release releases in exclusive mode. If TryRelease reports the
// synchronizer fully released, the first waiter is woken. Returns the
// TryRelease result.
func (s *Synchronizer) Release(arg int32) (bool, error) {
	ok, err := s.policy.TryRelease(arg)
	if err != nil || !ok {
		return false, err
	}
	if h := s.head.Load(); h != nil && h.status() != 0 {
		s.unparkSuccessor(h)
	}
	return true, nil
}
