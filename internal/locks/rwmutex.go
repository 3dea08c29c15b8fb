// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package locks

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kolkov/qsync/internal/aqs"
	"github.com/kolkov/qsync/internal/thread"
)

// The state word is split in two unsigned 16-bit halves: the low half is the
// write hold count, the high half the total read hold count.
const (
	sharedShift   = 16
	sharedUnit    = int32(1) << sharedShift
	maxCount      = 1<<sharedShift - 1
	exclusiveMask = 1<<sharedShift - 1
)

func sharedCount(c int32) int    { return int(uint32(c) >> sharedShift) }
func exclusiveCount(c int32) int { return int(c & exclusiveMask) }

// RWMutex is a reentrant reader/writer lock.
//
// Any number of goroutines may hold the read lock while no goroutine holds
// the write lock. Both locks are reentrant, with at most 65535 holds each.
// The writer may also take the read lock, and releasing the write lock
// afterwards downgrades it to a read lock. Upgrading from read to write is
// not possible: a reader that calls Lock waits forever.
//
// In non-fair mode a reader does not jump ahead of a writer at the head of
// the queue, so writers are not starved by a stream of readers.
type RWMutex struct {
	sync *aqs.Synchronizer
	p    *rwPolicy
}

type rwPolicy struct {
	aqs.Unsupported
	sync  *aqs.Synchronizer
	fair  bool
	owner atomic.Pointer[thread.Thread]

	// readHolds maps *thread.Thread to *readHold. Each entry is only
	// modified by its own goroutine.
	readHolds sync.Map
}

type readHold struct {
	count int
}

// NewRWMutex returns an unlocked RWMutex.
func NewRWMutex(fair bool, opts ...aqs.Option) *RWMutex {
	p := &rwPolicy{fair: fair}
	p.sync = aqs.New(p, opts...)
	return &RWMutex{sync: p.sync, p: p}
}

func (p *rwPolicy) writerShouldBlock(th *thread.Thread) bool {
	return p.fair && p.sync.HasQueuedPredecessors(th)
}

func (p *rwPolicy) readerShouldBlock(th *thread.Thread) bool {
	if p.fair {
		return p.sync.HasQueuedPredecessors(th)
	}
	return p.sync.ApparentlyFirstQueuedIsExclusive()
}

func (p *rwPolicy) TryAcquire(acquires int32) (bool, error) {
	th := thread.Current()
	c := p.sync.State()
	if c != 0 {
		// c != 0 with no writer means readers hold it.
		w := exclusiveCount(c)
		if w == 0 || p.owner.Load() != th {
			return false, nil
		}
		if w+int(acquires) > maxCount {
			return false, ErrHoldCountExceeded
		}
		p.sync.SetState(c + acquires)
		return true, nil
	}
	if p.writerShouldBlock(th) || !p.sync.CompareAndSetState(c, c+acquires) {
		return false, nil
	}
	p.owner.Store(th)
	return true, nil
}

func (p *rwPolicy) TryRelease(releases int32) (bool, error) {
	if !p.IsHeldExclusively() {
		return false, aqs.ErrIllegalMonitorState
	}
	next := p.sync.State() - releases
	free := exclusiveCount(next) == 0
	if free {
		p.owner.Store(nil)
	}
	p.sync.SetState(next)
	return free, nil
}

func (p *rwPolicy) TryAcquireShared(int32) (int32, error) {
	th := thread.Current()
	for {
		c := p.sync.State()
		if exclusiveCount(c) != 0 {
			if p.owner.Load() != th {
				return -1, nil
			}
			// The writer may always take a read hold (downgrade).
		} else if p.readerShouldBlock(th) && p.holds(th) == 0 {
			// Reentrant read acquires never block.
			return -1, nil
		}
		if sharedCount(c) == maxCount {
			return -1, ErrReadHoldCountExceeded
		}
		if p.sync.CompareAndSetState(c, c+sharedUnit) {
			p.addHold(th, 1)
			return 1, nil
		}
	}
}

func (p *rwPolicy) TryReleaseShared(int32) (bool, error) {
	th := thread.Current()
	if p.holds(th) == 0 {
		return false, fmt.Errorf("%w: read unlock without a read lock", aqs.ErrIllegalMonitorState)
	}
	p.addHold(th, -1)
	for {
		c := p.sync.State()
		next := c - sharedUnit
		if p.sync.CompareAndSetState(c, next) {
			// Releasing a read lock does not affect readers, but lets a
			// waiting writer in once both counts are zero.
			return next == 0, nil
		}
	}
}

func (p *rwPolicy) IsHeldExclusively() bool {
	return p.owner.Load() == thread.Current()
}

// tryWriteLock barges for the write lock.
func (p *rwPolicy) tryWriteLock(th *thread.Thread) (bool, error) {
	c := p.sync.State()
	if c != 0 {
		w := exclusiveCount(c)
		if w == 0 || p.owner.Load() != th {
			return false, nil
		}
		if w == maxCount {
			return false, ErrHoldCountExceeded
		}
	}
	if !p.sync.CompareAndSetState(c, c+1) {
		return false, nil
	}
	p.owner.Store(th)
	return true, nil
}

// tryReadLock barges for a read hold.
func (p *rwPolicy) tryReadLock(th *thread.Thread) (bool, error) {
	for {
		c := p.sync.State()
		if exclusiveCount(c) != 0 && p.owner.Load() != th {
			return false, nil
		}
		if sharedCount(c) == maxCount {
			return false, ErrReadHoldCountExceeded
		}
		if p.sync.CompareAndSetState(c, c+sharedUnit) {
			p.addHold(th, 1)
			return true, nil
		}
	}
}

func (p *rwPolicy) holds(th *thread.Thread) int {
	if h, ok := p.readHolds.Load(th); ok {
		return h.(*readHold).count
	}
	return 0
}

func (p *rwPolicy) addHold(th *thread.Thread, delta int) {
	v, ok := p.readHolds.Load(th)
	if !ok {
		v, _ = p.readHolds.LoadOrStore(th, &readHold{})
	}
	h := v.(*readHold)
	h.count += delta
	if h.count == 0 {
		p.readHolds.Delete(th)
	}
}

// RLock acquires a read hold, waiting while a writer holds the lock.
func (rw *RWMutex) RLock() error {
	return rw.sync.AcquireShared(1)
}

// RLockInterruptibly is RLock, but fails with aqs.ErrInterrupted if the
// calling goroutine's Thread is interrupted.
func (rw *RWMutex) RLockInterruptibly() error {
	return rw.sync.AcquireSharedInterruptibly(1)
}

// TryRLock takes a read hold if no other goroutine holds the write lock,
// ignoring fairness.
func (rw *RWMutex) TryRLock() (bool, error) {
	return rw.p.tryReadLock(thread.Current())
}

// TryRLockTimeout takes a read hold if possible within timeout.
func (rw *RWMutex) TryRLockTimeout(timeout time.Duration) (bool, error) {
	return rw.sync.TryAcquireSharedNanos(1, timeout)
}

// RUnlock releases one read hold of the calling goroutine.
func (rw *RWMutex) RUnlock() error {
	_, err := rw.sync.ReleaseShared(1)
	return err
}

// Lock acquires the write lock, waiting until there are no readers and no
// other writer.
func (rw *RWMutex) Lock() error {
	return rw.sync.Acquire(1)
}

// LockInterruptibly is Lock, but fails with aqs.ErrInterrupted if the
// calling goroutine's Thread is interrupted.
func (rw *RWMutex) LockInterruptibly() error {
	return rw.sync.AcquireInterruptibly(1)
}

// TryLock acquires the write lock if it is free or already held by the
// caller, ignoring fairness.
func (rw *RWMutex) TryLock() (bool, error) {
	return rw.p.tryWriteLock(thread.Current())
}

// TryLockTimeout acquires the write lock if possible within timeout.
func (rw *RWMutex) TryLockTimeout(timeout time.Duration) (bool, error) {
	return rw.sync.TryAcquireNanos(1, timeout)
}

// Unlock releases one write hold.
func (rw *RWMutex) Unlock() error {
	_, err := rw.sync.Release(1)
	return err
}

// NewCondition returns a Condition for the write lock.
func (rw *RWMutex) NewCondition() *aqs.Condition {
	return rw.sync.NewCondition()
}

// ReadLockCount returns the number of read holds across all goroutines.
func (rw *RWMutex) ReadLockCount() int {
	return sharedCount(rw.sync.State())
}

// ReadHoldCount returns the calling goroutine's number of read holds.
func (rw *RWMutex) ReadHoldCount() int {
	if rw.ReadLockCount() == 0 {
		return 0
	}
	return rw.p.holds(thread.Current())
}

// WriteHoldCount returns the calling goroutine's number of write holds.
func (rw *RWMutex) WriteHoldCount() int {
	if rw.p.IsHeldExclusively() {
		return exclusiveCount(rw.sync.State())
	}
	return 0
}

// IsWriteLocked reports whether any goroutine holds the write lock.
func (rw *RWMutex) IsWriteLocked() bool {
	return exclusiveCount(rw.sync.State()) != 0
}

// IsWriteLockedByCurrentThread reports whether the caller holds the write lock.
func (rw *RWMutex) IsWriteLockedByCurrentThread() bool {
	return rw.p.IsHeldExclusively()
}

// IsFair reports whether rw was created fair.
func (rw *RWMutex) IsFair() bool { return rw.p.fair }

// QueueLength estimates the number of goroutines waiting for either lock.
func (rw *RWMutex) QueueLength() int { return rw.sync.QueueLength() }

// Synchronizer returns the engine behind rw.
func (rw *RWMutex) Synchronizer() *aqs.Synchronizer { return rw.sync }

// RLocker returns a sync.Locker whose Lock and Unlock take and release read
// holds. Like sync.RWMutex, it panics on misuse (an unmatched Unlock), since
// sync.Locker cannot report errors.
func (rw *RWMutex) RLocker() sync.Locker {
	return rlocker{rw}
}

type rlocker struct{ rw *RWMutex }

func (r rlocker) Lock() {
	if err := r.rw.RLock(); err != nil {
		panic(err)
	}
}

func (r rlocker) Unlock() {
	if err := r.rw.RUnlock(); err != nil {
		panic(err)
	}
}

// String implements fmt.Stringer.
func (rw *RWMutex) String() string {
	c := rw.sync.State()
	return fmt.Sprintf("RWMutex[write locks = %d, read locks = %d]", exclusiveCount(c), sharedCount(c))
}
