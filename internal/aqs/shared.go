// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aqs

import (
	"context"
	"time"

	"github.com/kolkov/qsync/internal/thread"
)

// AcquireShared acquires in shared mode, blocking until TryAcquireShared
// returns a non-negative value. Interrupts are deferred as in Acquire.
func (s *Synchronizer) AcquireShared(arg int32) error {
	r, err := s.policy.TryAcquireShared(arg)
	if err != nil {
		return err
	}
	if r >= 0 {
		s.stats.sampleFast(s.opts.sampleRate)
		return nil
	}

	w := &waiter{th: thread.Current()}
	err = s.acquireQueued(w, Shared, arg)
	w.finish()
	return err
}

// AcquireSharedInterruptibly is AcquireShared, but returns ErrInterrupted if
// the calling Thread is interrupted before or while waiting.
func (s *Synchronizer) AcquireSharedInterruptibly(arg int32) error {
	th, err := enterInterruptible()
	if err != nil {
		return err
	}
	r, err := s.policy.TryAcquireShared(arg)
	if err != nil {
		return err
	}
	if r >= 0 {
		s.stats.sampleFast(s.opts.sampleRate)
		return nil
	}
	return s.acquireQueued(&waiter{th: th, interruptible: true}, Shared, arg)
}

// TryAcquireSharedNanos is AcquireSharedInterruptibly bounded by timeout.
func (s *Synchronizer) TryAcquireSharedNanos(arg int32, timeout time.Duration) (bool, error) {
	th, err := enterInterruptible()
	if err != nil {
		return false, err
	}
	r, err := s.policy.TryAcquireShared(arg)
	if err != nil {
		return false, err
	}
	if r >= 0 {
		s.stats.sampleFast(s.opts.sampleRate)
		return true, nil
	}
	if timeout <= 0 {
		return false, nil
	}

	w := &waiter{th: th, interruptible: true, deadline: time.Now().Add(timeout)}
	return timedResult(s.acquireQueued(w, Shared, arg))
}

// AcquireSharedContext is AcquireSharedInterruptibly that also gives up when
// ctx is done, returning ctx.Err().
func (s *Synchronizer) AcquireSharedContext(ctx context.Context, arg int32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	th, err := enterInterruptible()
	if err != nil {
		return err
	}
	r, err := s.policy.TryAcquireShared(arg)
	if err != nil {
		return err
	}
	if r >= 0 {
		s.stats.sampleFast(s.opts.sampleRate)
		return nil
	}
	return s.acquireQueued(&waiter{th: th, interruptible: true, ctx: ctx}, Shared, arg)
}

// ReleaseShared releases in shared mode and, if TryReleaseShared allows it,
// wakes waiters.
func (s *Synchronizer) ReleaseShared(arg int32) (bool, error) {
	ok, err := s.policy.TryReleaseShared(arg)
	if err != nil || !ok {
		return false, err
	}
	s.doReleaseShared()
	return true, nil
}
