// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aqs

import (
	"sync/atomic"

	"github.com/kolkov/qsync/internal/thread"
)

// Node wait statuses.
//
//	StatusSignal     successor is (or will be) parked and must be unparked
//	                 when this node releases or cancels.
//	StatusCancelled  the node's acquire was abandoned. Terminal.
//	StatusCondition  the node is on a condition queue.
//	StatusPropagate  a shared release must propagate past this head.
//	0                none of the above.
//
// Non-negative values mean the node needs no signalling, so checks are sign
// checks.
const (
	StatusCancelled int32 = 1
	StatusSignal    int32 = -1
	StatusCondition int32 = -2
	StatusPropagate int32 = -3
)

// Mode tells whether a waiter acquires exclusively or shared.
type Mode uint8

const (
	// Exclusive mode: one holder at a time.
	Exclusive Mode = iota
	// Shared mode: multiple holders may succeed.
	Shared
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	if m == Shared {
		return "shared"
	}
	return "exclusive"
}

// Node is one entry of a wait queue or a condition queue.
//
// All fields are accessed atomically. On the wait queue, prev is
// authoritative and next is an optimisation that may lag; a nil next does
// not mean the node is last.
type Node struct {
	waitStatus atomic.Int32

	prev atomic.Pointer[Node]
	next atomic.Pointer[Node]

	// nextWaiter links condition queue nodes. On the wait queue it holds
	// sharedMode for shared waiters and nil for exclusive ones.
	nextWaiter atomic.Pointer[Node]

	// thread is the waiting goroutine, nil once the node is head or cancelled.
	thread atomic.Pointer[thread.Thread]

	// stack is the stack depot hash of the blocking call, 0 if not captured.
	stack uint64
}

// sharedMode marks shared waiters through Node.nextWaiter.
var sharedMode = &Node{}

func newNode(t *thread.Thread, mode Mode) *Node {
	n := &Node{}
	n.thread.Store(t)
	if mode == Shared {
		n.nextWaiter.Store(sharedMode)
	}
	return n
}

func newConditionNode(t *thread.Thread) *Node {
	n := &Node{}
	n.thread.Store(t)
	n.waitStatus.Store(StatusCondition)
	return n
}

func (n *Node) isShared() bool {
	return n.nextWaiter.Load() == sharedMode
}

func (n *Node) mode() Mode {
	if n.isShared() {
		return Shared
	}
	return Exclusive
}

// predecessor returns prev. Only called on queued non-head nodes, whose prev
// is never nil.
func (n *Node) predecessor() *Node {
	p := n.prev.Load()
	if p == nil {
		panic("aqs: queued node without predecessor")
	}
	return p
}

func (n *Node) status() int32 { return n.waitStatus.Load() }

func (n *Node) casStatus(expect, update int32) bool {
	return n.waitStatus.CompareAndSwap(expect, update)
}
