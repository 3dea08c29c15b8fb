// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aqs

import (
	"github.com/kolkov/qsync/internal/stackdepot"
	"github.com/kolkov/qsync/internal/thread"
)

// enq inserts node at the tail, creating the dummy head first if needed.
// Returns node's predecessor.
func (s *Synchronizer) enq(node *Node) *Node {
	for {
		t := s.tail.Load()
		if t == nil {
			if h := (&Node{}); s.head.CompareAndSwap(nil, h) {
				s.tail.Store(h)
			}
			continue
		}
		node.prev.Store(t)
		if s.tail.CompareAndSwap(t, node) {
			t.next.Store(node)
			return t
		}
	}
}

// addWaiter enqueues a node for th in the given mode.
func (s *Synchronizer) addWaiter(th *thread.Thread, mode Mode) *Node {
	node := newNode(th, mode)
	if s.opts.captureStack {
		// Skip addWaiter, acquireQueued and the public entry point.
		node.stack = stackdepot.CaptureStack(3)
	}

	// Fast path: one CAS onto an existing tail.
	if pred := s.tail.Load(); pred != nil {
		node.prev.Store(pred)
		if s.tail.CompareAndSwap(pred, node) {
			pred.next.Store(node)
			return node
		}
	}
	s.enq(node)
	return node
}

// setHead makes node the dummy head after its thread acquired. Called only
// by that thread.
func (s *Synchronizer) setHead(node *Node) {
	s.head.Store(node)
	node.thread.Store(nil)
	node.prev.Store(nil)
}

// unparkSuccessor wakes the first live successor of node, if any.
func (s *Synchronizer) unparkSuccessor(node *Node) {
	if ws := node.status(); ws < 0 {
		// May fail if the successor changed it; that is fine.
		node.casStatus(ws, 0)
	}

	succ := node.next.Load()
	if succ == nil || succ.status() > 0 {
		// next is only a hint; scan back from the tail for the live
		// successor closest to node.
		succ = nil
		for t := s.tail.Load(); t != nil && t != node; t = t.prev.Load() {
			if t.status() <= 0 {
				succ = t
			}
		}
	}
	if succ != nil {
		succ.thread.Load().Unpark()
	}
}

// shouldParkAfterFailedAcquire checks and updates the status of a node that
// failed to acquire. It returns true once pred is known to signal node, so
// node may park. Cancelled predecessors are skipped and unlinked.
func shouldParkAfterFailedAcquire(pred, node *Node) bool {
	ws := pred.status()
	if ws == StatusSignal {
		return true
	}
	if ws > 0 {
		for {
			pred = pred.prev.Load()
			node.prev.Store(pred)
			if pred.status() <= 0 {
				break
			}
		}
		pred.next.Store(node)
	} else {
		// 0 or PROPAGATE. Ask for a signal, but retry the acquire once
		// before parking.
		pred.casStatus(ws, StatusSignal)
	}
	return false
}

// cancelAcquire abandons node's pending acquire.
func (s *Synchronizer) cancelAcquire(node *Node) {
	if node == nil {
		return
	}
	node.thread.Store(nil)

	// Skip cancelled predecessors. The head is never cancelled, so this ends.
	pred := node.prev.Load()
	for pred.status() > 0 {
		pred = pred.prev.Load()
		node.prev.Store(pred)
	}
	predNext := pred.next.Load()

	// After this, other nodes skip past us.
	node.waitStatus.Store(StatusCancelled)

	if node == s.tail.Load() && s.tail.CompareAndSwap(node, pred) {
		pred.next.CompareAndSwap(predNext, nil)
		return
	}

	// If the successor needs a signal, hand that obligation to pred.
	// Otherwise wake the successor so it can relink itself.
	ws := pred.status()
	if pred != s.head.Load() &&
		(ws == StatusSignal || (ws <= 0 && pred.casStatus(ws, StatusSignal))) &&
		pred.thread.Load() != nil {
		if next := node.next.Load(); next != nil && next.status() <= 0 {
			pred.next.CompareAndSwap(predNext, next)
		}
	} else {
		s.unparkSuccessor(node)
	}
}

// setHeadAndPropagate makes node head after a shared acquire and, if the
// acquire left capacity or an earlier release asked for propagation, passes
// the wakeup on to a shared successor.
func (s *Synchronizer) setHeadAndPropagate(node *Node, propagate int32) {
	h := s.head.Load()
	s.setHead(node)

	// Both the old and the new head are checked; either may carry a
	// PROPAGATE or SIGNAL set by a concurrent release.
	if propagate > 0 || h == nil || h.status() < 0 {
		s.propagateTo(node)
		return
	}
	if h = s.head.Load(); h == nil || h.status() < 0 {
		s.propagateTo(node)
	}
}

func (s *Synchronizer) propagateTo(node *Node) {
	if next := node.next.Load(); next == nil || next.isShared() {
		s.doReleaseShared()
	}
}

// doReleaseShared signals the head's successor and makes sure the release
// propagates, looping while the head keeps moving.
func (s *Synchronizer) doReleaseShared() {
	for {
		h := s.head.Load()
		if h != nil && h != s.tail.Load() {
			switch ws := h.status(); {
			case ws == StatusSignal:
				if !h.casStatus(StatusSignal, 0) {
					continue
				}
				s.unparkSuccessor(h)
			case ws == 0:
				if !h.casStatus(0, StatusPropagate) {
					continue
				}
			}
		}
		if h == s.head.Load() {
			return
		}
	}
}

// isOnSyncQueue reports whether node, initially placed on a condition
// queue, has been transferred to the wait queue.
func (s *Synchronizer) isOnSyncQueue(node *Node) bool {
	if node.status() == StatusCondition || node.prev.Load() == nil {
		return false
	}
	if node.next.Load() != nil {
		return true
	}
	// prev can be set while the tail CAS is still failing, so look from the tail.
	return s.findNodeFromTail(node)
}

func (s *Synchronizer) findNodeFromTail(node *Node) bool {
	for t := s.tail.Load(); t != nil; t = t.prev.Load() {
		if t == node {
			return true
		}
	}
	return false
}
