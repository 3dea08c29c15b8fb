// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package locks

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/kolkov/qsync/internal/aqs"
	"github.com/kolkov/qsync/internal/thread"
)

// Mutex is a reentrant mutual exclusion lock.
//
// The goroutine that last locked it owns it until a matching number of
// Unlock calls. Lock by the owner succeeds immediately and increments the
// hold count. Unlike sync.Mutex, a Mutex knows its owner, so Unlock by
// any other goroutine fails with aqs.ErrIllegalMonitorState.
//
// A fair Mutex grants the lock to the longest-waiting goroutine. A non-fair
// one lets an arriving goroutine take a free lock ahead of the queue, which
// gives much higher throughput. TryLock barges in either mode.
type Mutex struct {
	sync *aqs.Synchronizer
	p    *mutexPolicy
}

// mutexPolicy keeps the hold count in the state word.
type mutexPolicy struct {
	aqs.Unsupported
	sync  *aqs.Synchronizer
	fair  bool
	owner atomic.Pointer[thread.Thread]
}

// NewMutex returns an unlocked Mutex.
func NewMutex(fair bool, opts ...aqs.Option) *Mutex {
	p := &mutexPolicy{fair: fair}
	p.sync = aqs.New(p, opts...)
	return &Mutex{sync: p.sync, p: p}
}

func (p *mutexPolicy) TryAcquire(acquires int32) (bool, error) {
	th := thread.Current()
	if p.sync.State() == 0 && p.fair && p.sync.HasQueuedPredecessors(th) {
		return false, nil
	}
	return p.tryLock(th, acquires)
}

// tryLock acquires without regard for queued goroutines.
func (p *mutexPolicy) tryLock(th *thread.Thread, acquires int32) (bool, error) {
	c := p.sync.State()
	if c == 0 {
		if p.sync.CompareAndSetState(0, acquires) {
			p.owner.Store(th)
			return true, nil
		}
		return false, nil
	}
	if p.owner.Load() == th {
		if c > math.MaxInt32-acquires {
			return false, ErrHoldCountExceeded
		}
		p.sync.SetState(c + acquires)
		return true, nil
	}
	return false, nil
}

func (p *mutexPolicy) TryRelease(releases int32) (bool, error) {
	if p.owner.Load() != thread.Current() {
		return false, aqs.ErrIllegalMonitorState
	}
	c := p.sync.State() - releases
	free := c == 0
	if free {
		p.owner.Store(nil)
	}
	p.sync.SetState(c)
	return free, nil
}

func (p *mutexPolicy) IsHeldExclusively() bool {
	return p.owner.Load() == thread.Current()
}

// Lock acquires the lock, waiting as long as it takes. Interrupts do not
// abort the wait.
func (m *Mutex) Lock() error {
	return m.sync.Acquire(1)
}

// LockInterruptibly is Lock, but fails with aqs.ErrInterrupted if the
// calling goroutine's Thread is interrupted.
func (m *Mutex) LockInterruptibly() error {
	return m.sync.AcquireInterruptibly(1)
}

// LockContext is LockInterruptibly that also gives up when ctx is done.
func (m *Mutex) LockContext(ctx context.Context) error {
	return m.sync.AcquireContext(ctx, 1)
}

// TryLock acquires the lock only if it is free or already held by the
// caller. It ignores fairness.
func (m *Mutex) TryLock() (bool, error) {
	return m.p.tryLock(thread.Current(), 1)
}

// TryLockTimeout acquires the lock if it becomes available within timeout.
// It honours fairness.
func (m *Mutex) TryLockTimeout(timeout time.Duration) (bool, error) {
	return m.sync.TryAcquireNanos(1, timeout)
}

// Unlock releases one hold. It returns aqs.ErrIllegalMonitorState if the
// caller is not the owner.
func (m *Mutex) Unlock() error {
	_, err := m.sync.Release(1)
	return err
}

// NewCondition returns a Condition bound to m.
func (m *Mutex) NewCondition() *aqs.Condition {
	return m.sync.NewCondition()
}

// HoldCount returns the calling goroutine's number of holds, 0 if it is not
// the owner.
func (m *Mutex) HoldCount() int {
	if m.p.IsHeldExclusively() {
		return int(m.sync.State())
	}
	return 0
}

// IsHeldByCurrentThread reports whether the calling goroutine owns m.
func (m *Mutex) IsHeldByCurrentThread() bool {
	return m.p.IsHeldExclusively()
}

// IsLocked reports whether any goroutine owns m.
func (m *Mutex) IsLocked() bool {
	return m.sync.State() != 0
}

// IsFair reports whether m was created fair.
func (m *Mutex) IsFair() bool { return m.p.fair }

// Owner returns the owning Thread, or nil if m is unlocked.
func (m *Mutex) Owner() *thread.Thread {
	if m.sync.State() == 0 {
		return nil
	}
	return m.p.owner.Load()
}

// QueueLength estimates the number of goroutines waiting to lock.
func (m *Mutex) QueueLength() int { return m.sync.QueueLength() }

// HasQueuedThreads reports whether any goroutine may be waiting to lock.
func (m *Mutex) HasQueuedThreads() bool { return m.sync.HasQueuedThreads() }

// HasQueuedThread reports whether th is waiting to lock.
func (m *Mutex) HasQueuedThread(th *thread.Thread) bool { return m.sync.IsQueued(th) }

// HasWaiters reports whether any goroutine waits on c, which must have been
// created by m. The caller must hold m.
func (m *Mutex) HasWaiters(c *aqs.Condition) (bool, error) {
	return m.sync.HasWaiters(c)
}

// WaitQueueLength estimates the number of goroutines waiting on c.
func (m *Mutex) WaitQueueLength(c *aqs.Condition) (int, error) {
	return m.sync.WaitQueueLength(c)
}

// Synchronizer returns the engine behind m, for metrics and diagnostics.
func (m *Mutex) Synchronizer() *aqs.Synchronizer { return m.sync }

// String implements fmt.Stringer.
func (m *Mutex) String() string {
	if owner := m.Owner(); owner != nil {
		return fmt.Sprintf("Mutex[locked by %s]", owner)
	}
	return "Mutex[unlocked]"
}
