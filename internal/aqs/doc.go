// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package aqs is the queued synchronizer engine behind every lock in qsync.
//
// A Synchronizer combines three things:
//
//   - a 32-bit state word, read and updated with State, SetState and
//     CompareAndSetState;
//   - a FIFO wait queue of parked goroutines (a CLH lock queue variant with
//     a lazily created dummy head);
//   - condition queues, one per Condition, whose waiters are spliced back
//     onto the wait queue when signalled.
//
// The engine never decides what the state means. A lock supplies a Policy
// whose hooks try to acquire or release by inspecting and CASing the state.
// Acquire, AcquireShared and their interruptible, timed and context variants
// call the hook first and fall back to queueing and parking only when it
// fails. Release and ReleaseShared wake the next waiter.
//
// # Example
//
// A non-reentrant mutex:
//
//	type mutex struct {
//	    aqs.Unsupported
//	    sync *aqs.Synchronizer
//	}
//
//	func (m *mutex) TryAcquire(int32) (bool, error) {
//	    return m.sync.CompareAndSetState(0, 1), nil
//	}
//
//	func (m *mutex) TryRelease(int32) (bool, error) {
//	    if m.sync.State() == 0 {
//	        return false, aqs.ErrIllegalMonitorState
//	    }
//	    m.sync.SetState(0)
//	    return true, nil
//	}
//
//	func (m *mutex) IsHeldExclusively() bool { return m.sync.State() == 1 }
//
//	m := &mutex{}
//	m.sync = aqs.New(m)
//	_ = m.sync.Acquire(1)
//	defer m.sync.Release(1)
//
// # Interruption
//
// Goroutines have no built-in interruption, so each goroutine gets a
// thread.Thread carrying an interrupt flag. Interruptible operations check
// and clear the flag, cancel their queue node and return ErrInterrupted.
// Uninterruptible ones keep waiting and set the flag again on return. The
// Context variants treat a done context the same way and return ctx.Err().
//
// # Fairness
//
// The engine lets a newly arriving goroutine barge ahead of queued ones
// when its hook succeeds. A fair policy refuses to acquire while
// HasQueuedPredecessors reports an older waiter.
package aqs
