// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aqs

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/kolkov/qsync/internal/thread"
)

// Condition is a condition variable bound to an exclusively held
// Synchronizer.
//
// Waiting releases the synchronizer fully, parks until signalled, then
// reacquires it with the saved state before returning. Every method requires
// the calling goroutine to hold the synchronizer exclusively and returns
// ErrIllegalMonitorState otherwise.
//
// Waiters sit on a private singly-linked queue until Signal moves them to
// the synchronizer's wait queue. Spurious wakeups are possible, so waits
// belong in a loop that rechecks the predicate.
type Condition struct {
	s *Synchronizer

	// Only touched while s is held exclusively.
	firstWaiter *Node
	lastWaiter  *Node
}

// NewCondition returns a Condition bound to s.
func (s *Synchronizer) NewCondition() *Condition {
	return &Condition{s: s}
}

// condWait describes how a condition wait ends.
type condWait struct {
	interruptible bool

	timed    bool
	deadline time.Time

	ctx context.Context
}

// Await waits until signalled. It returns ErrInterrupted if the calling
// Thread is interrupted before being signalled; an interrupt arriving after
// the signal is re-asserted instead. The synchronizer is held again on
// every return except ErrIllegalMonitorState.
func (c *Condition) Await() error {
	_, err := c.await(condWait{interruptible: true})
	return err
}

// AwaitUninterruptibly waits until signalled. Interrupts are deferred until
// it returns.
func (c *Condition) AwaitUninterruptibly() error {
	_, err := c.await(condWait{})
	return err
}

// AwaitNanos waits until signalled or timeout elapses, and returns an
// estimate of the time left. A non-positive result means the wait timed out.
func (c *Condition) AwaitNanos(timeout time.Duration) (time.Duration, error) {
	deadline := time.Now().Add(timeout)
	if _, err := c.await(condWait{interruptible: true, timed: true, deadline: deadline}); err != nil {
		return 0, err
	}
	return time.Until(deadline), nil
}

// AwaitUntil waits until signalled or the deadline passes. It returns false
// if the deadline passed first.
func (c *Condition) AwaitUntil(deadline time.Time) (bool, error) {
	timedOut, err := c.await(condWait{interruptible: true, timed: true, deadline: deadline})
	return !timedOut && err == nil, err
}

// AwaitTimeout is AwaitUntil with a relative timeout.
func (c *Condition) AwaitTimeout(timeout time.Duration) (bool, error) {
	return c.AwaitUntil(time.Now().Add(timeout))
}

// AwaitContext waits until signalled or ctx is done, in which case it
// returns ctx.Err(). Interrupts behave as in Await.
func (c *Condition) AwaitContext(ctx context.Context) error {
	_, err := c.await(condWait{interruptible: true, ctx: ctx})
	return err
}

// Signal moves the longest-waiting goroutine, if any, to the wait queue of
// the synchronizer. It wakes once the caller releases.
func (c *Condition) Signal() error {
	if !c.s.policy.IsHeldExclusively() {
		return ErrIllegalMonitorState
	}
	first := c.firstWaiter
	for first != nil {
		next := first.nextWaiter.Load()
		c.firstWaiter = next
		if next == nil {
			c.lastWaiter = nil
		}
		first.nextWaiter.Store(nil)

		// A cancelled waiter cannot be transferred; try the next one.
		if c.s.transferForSignal(first) {
			c.s.stats.signals.Add(1)
			return nil
		}
		first = next
	}
	return nil
}

// SignalAll moves every waiting goroutine to the wait queue.
func (c *Condition) SignalAll() error {
	if !c.s.policy.IsHeldExclusively() {
		return ErrIllegalMonitorState
	}
	first := c.firstWaiter
	c.firstWaiter = nil
	c.lastWaiter = nil
	for first != nil {
		next := first.nextWaiter.Load()
		first.nextWaiter.Store(nil)
		if c.s.transferForSignal(first) {
			c.s.stats.signals.Add(1)
		}
		first = next
	}
	return nil
}

// await is the shared implementation of the wait variants. timedOut is
// true only if the deadline passed before a signal.
func (c *Condition) await(cw condWait) (timedOut bool, err error) {
	s := c.s
	if !s.policy.IsHeldExclusively() {
		return false, ErrIllegalMonitorState
	}
	th := thread.Current()
	if cw.ctx != nil {
		if err := cw.ctx.Err(); err != nil {
			return false, err
		}
	}
	if cw.interruptible && th.Interrupted() {
		return false, ErrInterrupted
	}

	node := c.addConditionWaiter(th)
	saved, err := s.fullyRelease(node)
	if err != nil {
		return false, err
	}

	if cw.ctx != nil {
		stop := context.AfterFunc(cw.ctx, th.Unpark)
		defer stop()
	}

	var (
		abort    error // returned once the synchronizer is reacquired
		reassert bool  // re-set the interrupt flag before returning
	)
	for !s.isOnSyncQueue(node) {
		if cw.timed {
			remaining := time.Until(cw.deadline)
			if remaining <= 0 {
				timedOut = s.transferAfterCancelledWait(node)
				break
			}
			if remaining >= SpinForTimeoutThreshold {
				s.park(th, remaining)
			} else {
				runtime.Gosched()
			}
		} else {
			s.park(th, 0)
		}

		if cw.ctx != nil && cw.ctx.Err() != nil {
			if s.transferAfterCancelledWait(node) {
				abort = cw.ctx.Err()
			}
			break
		}
		if th.Interrupted() {
			if !cw.interruptible {
				reassert = true
				continue
			}
			// Interrupted before a signal arrived: report it. After: the
			// signal wins and the interrupt is re-asserted.
			if s.transferAfterCancelledWait(node) {
				abort = ErrInterrupted
			} else {
				reassert = true
			}
			break
		}
	}

	w := &waiter{th: th}
	if err := s.acquireNode(w, node, saved); err != nil {
		return timedOut, err
	}
	if node.nextWaiter.Load() != nil {
		c.unlinkCancelledWaiters()
	}

	if abort != nil {
		return timedOut, abort
	}
	if reassert || w.interrupted {
		th.Interrupt()
	}
	return timedOut, nil
}

func (c *Condition) addConditionWaiter(th *thread.Thread) *Node {
	t := c.lastWaiter
	if t != nil && t.status() != StatusCondition {
		c.unlinkCancelledWaiters()
		t = c.lastWaiter
	}

	node := newConditionNode(th)
	if t == nil {
		c.firstWaiter = node
	} else {
		t.nextWaiter.Store(node)
	}
	c.lastWaiter = node
	return node
}

// unlinkCancelledWaiters drops nodes that left the condition queue by
// timeout, interrupt or failed release.
func (c *Condition) unlinkCancelledWaiters() {
	var trail *Node
	for t := c.firstWaiter; t != nil; {
		next := t.nextWaiter.Load()
		if t.status() != StatusCondition {
			t.nextWaiter.Store(nil)
			if trail == nil {
				c.firstWaiter = next
			} else {
				trail.nextWaiter.Store(next)
			}
			if next == nil {
				c.lastWaiter = trail
			}
		} else {
			trail = t
		}
		t = next
	}
}

// fullyRelease releases the synchronizer with its whole current state and
// returns that state for reacquisition. On failure the node is cancelled.
func (s *Synchronizer) fullyRelease(node *Node) (int32, error) {
	saved := s.State()
	ok, err := s.Release(saved)
	if err == nil && !ok {
		err = ErrIllegalMonitorState
	}
	if err != nil {
		node.waitStatus.Store(StatusCancelled)
		return 0, fmt.Errorf("release saved state %d: %w", saved, err)
	}
	return saved, nil
}

// transferForSignal moves a condition node to the wait queue. It returns
// false if the node was cancelled before the signal.
func (s *Synchronizer) transferForSignal(node *Node) bool {
	if !node.casStatus(StatusCondition, 0) {
		return false
	}

	p := s.enq(node)
	s.stats.transfers.Add(1)

	// Ask the predecessor to signal us. If it is cancelled or the CAS races,
	// wake the thread so it can fix its links itself.
	if ws := p.status(); ws > 0 || !p.casStatus(ws, StatusSignal) {
		node.thread.Load().Unpark()
	}
	return true
}

// transferAfterCancelledWait moves a node whose wait ended without a signal
// to the wait queue. It returns true if the node was cancelled before any
// signal, false if a signal won the race.
func (s *Synchronizer) transferAfterCancelledWait(node *Node) bool {
	if node.casStatus(StatusCondition, 0) {
		s.enq(node)
		s.stats.transfers.Add(1)
		return true
	}
	// A signal is transferring the node; it is briefly off both queues.
	for !s.isOnSyncQueue(node) {
		runtime.Gosched()
	}
	return false
}
