// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aqs

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/kolkov/qsync/internal/thread"
)

// SpinForTimeoutThreshold is the remaining time below which timed waits spin
// instead of parking; parking for shorter than this costs more than it saves.
const SpinForTimeoutThreshold = time.Microsecond

// waiter is the blocking behaviour of one queued acquire.
type waiter struct {
	th *thread.Thread

	// interruptible waits abort with ErrInterrupted. Others record the
	// interrupt and re-assert it once acquired.
	interruptible bool
	interrupted   bool

	// deadline bounds timed waits; zero means none.
	deadline time.Time

	// ctx aborts the wait with ctx.Err() when done; nil means none.
	ctx context.Context
}

// acquireQueued enqueues the calling thread and waits until it acquires.
// It returns nil once acquired. Any other result means the node was cancelled.
func (s *Synchronizer) acquireQueued(w *waiter, mode Mode, arg int32) error {
	return s.acquireNode(w, s.addWaiter(w.th, mode), arg)
}

// acquireNode runs the acquire loop for a node already on the wait queue.
func (s *Synchronizer) acquireNode(w *waiter, node *Node, arg int32) (err error) {
	failed := true
	defer func() {
		if failed {
			s.cancelAcquire(node)
			s.noteCancel(w.th, err)
		}
	}()

	if w.ctx != nil {
		stop := context.AfterFunc(w.ctx, w.th.Unpark)
		defer stop()
	}

	for {
		p := node.predecessor()
		if p == s.head.Load() {
			ok, herr := s.tryAcquireAsHead(node, arg)
			if herr != nil {
				s.opts.logger.Warn("policy hook failed",
					"synchronizer", s.opts.name, "mode", node.mode(), "arg", arg, "error", herr)
				return herr
			}
			if ok {
				p.next.Store(nil)
				failed = false
				s.stats.slow.Add(1)
				return nil
			}
		}
		if err := w.block(s, p, node); err != nil {
			return err
		}
	}
}

// tryAcquireAsHead runs the policy hook for node, which is first in line, and
// on success makes it the new head.
func (s *Synchronizer) tryAcquireAsHead(node *Node, arg int32) (bool, error) {
	if !node.isShared() {
		ok, err := s.policy.TryAcquire(arg)
		if err != nil || !ok {
			return false, err
		}
		s.setHead(node)
		return true, nil
	}

	r, err := s.policy.TryAcquireShared(arg)
	if err != nil || r < 0 {
		return false, err
	}
	s.setHeadAndPropagate(node, r)
	return true, nil
}

// block parks after a failed attempt, once pred is set to signal node.
// A non-nil error ends the wait.
func (w *waiter) block(s *Synchronizer, pred, node *Node) error {
	if w.deadline.IsZero() {
		if shouldParkAfterFailedAcquire(pred, node) {
			s.park(w.th, 0)
		}
	} else {
		remaining := time.Until(w.deadline)
		if remaining <= 0 {
			return errTimedOut
		}
		if shouldParkAfterFailedAcquire(pred, node) {
			if remaining > SpinForTimeoutThreshold {
				s.park(w.th, remaining)
			} else {
				runtime.Gosched()
			}
		}
	}

	if w.ctx != nil {
		if err := w.ctx.Err(); err != nil {
			return err
		}
	}
	if w.th.Interrupted() {
		if w.interruptible {
			return ErrInterrupted
		}
		w.interrupted = true
	}
	return nil
}

// finish re-asserts an interrupt swallowed by an uninterruptible wait.
func (w *waiter) finish() {
	if w.interrupted {
		w.th.Interrupt()
	}
}

func (s *Synchronizer) park(th *thread.Thread, timeout time.Duration) {
	s.stats.parks.Add(1)
	if timeout > 0 {
		th.ParkNanos(s, timeout)
		return
	}
	th.Park(s)
}

func (s *Synchronizer) noteCancel(th *thread.Thread, err error) {
	s.stats.cancellations.Add(1)
	switch {
	case errors.Is(err, errTimedOut), errors.Is(err, context.DeadlineExceeded):
		s.stats.timeouts.Add(1)
	case errors.Is(err, ErrInterrupted), errors.Is(err, context.Canceled):
		s.stats.interrupts.Add(1)
	}

	reason := "panic"
	if err != nil {
		reason = err.Error()
	}
	s.opts.logger.Debug("acquire cancelled",
		"synchronizer", s.opts.name, "goroutine", th.ID(), "reason", reason)
}

// enterInterruptible returns the calling thread, or ErrInterrupted if it has
// a pending interrupt, which is cleared.
func enterInterruptible() (*thread.Thread, error) {
	th := thread.Current()
	if th.Interrupted() {
		return th, ErrInterrupted
	}
	return th, nil
}

// timedResult maps the outcome of a timed acquire loop.
func timedResult(err error) (bool, error) {
	if errors.Is(err, errTimedOut) {
		return false, nil
	}
	return err == nil, err
}
