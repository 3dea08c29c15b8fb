// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aqs

import (
	"slices"

	"github.com/kolkov/qsync/internal/stackdepot"
	"github.com/kolkov/qsync/internal/thread"
)

// Queue inspection is a best-effort snapshot: nodes may be enqueued,
// acquire or cancel while it runs. The methods are meant for monitoring and
// for fairness checks in policies, not for synchronization control.

// HasQueuedThreads reports whether any goroutine may be waiting to acquire.
func (s *Synchronizer) HasQueuedThreads() bool {
	return s.head.Load() != s.tail.Load()
}

// HasContended reports whether any goroutine has ever had to wait.
func (s *Synchronizer) HasContended() bool {
	return s.head.Load() != nil
}

// FirstQueuedThread returns the longest-waiting goroutine, or nil if none.
func (s *Synchronizer) FirstQueuedThread() *thread.Thread {
	if s.head.Load() == s.tail.Load() {
		return nil
	}

	// Usually head.next; retry once in case of a concurrent setHead.
	for range 2 {
		if h := s.head.Load(); h != nil {
			if n := h.next.Load(); n != nil && n.prev.Load() == s.head.Load() {
				if t := n.thread.Load(); t != nil {
					return t
				}
			}
		}
	}

	// next links lag behind; walk back from the tail instead.
	var first *thread.Thread
	h := s.head.Load()
	for t := s.tail.Load(); t != nil && t != h; t = t.prev.Load() {
		if th := t.thread.Load(); th != nil {
			first = th
		}
	}
	return first
}

// IsQueued reports whether th is waiting on the queue.
func (s *Synchronizer) IsQueued(th *thread.Thread) bool {
	if th == nil {
		return false
	}
	for p := s.tail.Load(); p != nil; p = p.prev.Load() {
		if p.thread.Load() == th {
			return true
		}
	}
	return false
}

// ApparentlyFirstQueuedIsExclusive reports whether the first queued waiter,
// if it can be seen, waits in exclusive mode. Read locks use it to avoid
// starving a writer.
func (s *Synchronizer) ApparentlyFirstQueuedIsExclusive() bool {
	h := s.head.Load()
	if h == nil {
		return false
	}
	n := h.next.Load()
	return n != nil && !n.isShared() && n.thread.Load() != nil
}

// HasQueuedPredecessors reports whether some goroutine other than th has
// been waiting longer. Fair policies call it from TryAcquire with the
// current Thread and fail if it returns true.
func (s *Synchronizer) HasQueuedPredecessors(th *thread.Thread) bool {
	// Read tail before head: head is initialised before tail.
	t := s.tail.Load()
	h := s.head.Load()
	if h == t {
		return false
	}
	n := h.next.Load()
	return n == nil || n.thread.Load() != th
}

// QueueLength estimates the number of waiting goroutines.
func (s *Synchronizer) QueueLength() int {
	n := 0
	for p := s.tail.Load(); p != nil; p = p.prev.Load() {
		if p.thread.Load() != nil {
			n++
		}
	}
	return n
}

// QueuedThreads returns the waiting goroutines, most recent first.
func (s *Synchronizer) QueuedThreads() []*thread.Thread {
	return s.queued(func(*Node) bool { return true })
}

// ExclusiveQueuedThreads is QueuedThreads restricted to exclusive waiters.
func (s *Synchronizer) ExclusiveQueuedThreads() []*thread.Thread {
	return s.queued(func(n *Node) bool { return !n.isShared() })
}

// SharedQueuedThreads is QueuedThreads restricted to shared waiters.
func (s *Synchronizer) SharedQueuedThreads() []*thread.Thread {
	return s.queued((*Node).isShared)
}

func (s *Synchronizer) queued(keep func(*Node) bool) []*thread.Thread {
	var out []*thread.Thread
	for p := s.tail.Load(); p != nil; p = p.prev.Load() {
		if th := p.thread.Load(); th != nil && keep(p) {
			out = append(out, th)
		}
	}
	return out
}

// WaiterInfo describes one queued waiter.
type WaiterInfo struct {
	Thread *thread.Thread
	Mode   Mode
	Status int32

	// Stack is where the waiter blocked. Nil unless the synchronizer was
	// built WithStackCapture(true).
	Stack *stackdepot.StackTrace
}

// Waiters returns the queued waiters, longest-waiting first.
func (s *Synchronizer) Waiters() []WaiterInfo {
	var out []WaiterInfo
	for p := s.tail.Load(); p != nil; p = p.prev.Load() {
		th := p.thread.Load()
		if th == nil {
			continue
		}
		out = append(out, WaiterInfo{
			Thread: th,
			Mode:   p.mode(),
			Status: p.status(),
			Stack:  stackdepot.GetStack(p.stack),
		})
	}
	slices.Reverse(out)
	return out
}

// Owns reports whether c was created by s.
func (s *Synchronizer) Owns(c *Condition) bool {
	return c != nil && c.s == s
}

// HasWaiters reports whether any goroutine waits on c. The caller must hold
// s exclusively.
func (s *Synchronizer) HasWaiters(c *Condition) (bool, error) {
	n, err := s.WaitQueueLength(c)
	return n > 0, err
}

// WaitQueueLength estimates the number of goroutines waiting on c. The
// caller must hold s exclusively.
func (s *Synchronizer) WaitQueueLength(c *Condition) (int, error) {
	threads, err := s.WaitingThreads(c)
	return len(threads), err
}

// WaitingThreads returns the goroutines waiting on c, longest-waiting first.
// The caller must hold s exclusively.
func (s *Synchronizer) WaitingThreads(c *Condition) ([]*thread.Thread, error) {
	if !s.Owns(c) {
		return nil, ErrForeignCondition
	}
	if !s.policy.IsHeldExclusively() {
		return nil, ErrIllegalMonitorState
	}

	var out []*thread.Thread
	for w := c.firstWaiter; w != nil; w = w.nextWaiter.Load() {
		if w.status() != StatusCondition {
			continue
		}
		if th := w.thread.Load(); th != nil {
			out = append(out, th)
		}
	}
	return out, nil
}
