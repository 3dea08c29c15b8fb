// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/kolkov/qsync/internal/aqs"
)

// CountDownLatch lets goroutines wait until a count reaches zero.
//
// The count is set once at construction. CountDown decrements it; when it
// reaches zero every waiter is released and later Await calls return
// immediately. The count cannot be reset; use CyclicBarrier for that.
type CountDownLatch struct {
	sync *aqs.Synchronizer
}

type latchPolicy struct {
	aqs.Unsupported
	sync *aqs.Synchronizer
}

// NewCountDownLatch returns a latch that opens after count calls to CountDown.
func NewCountDownLatch(count int32, opts ...aqs.Option) (*CountDownLatch, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativePermits, count)
	}
	p := &latchPolicy{}
	p.sync = aqs.New(p, opts...)
	p.sync.SetState(count)
	return &CountDownLatch{sync: p.sync}, nil
}

func (p *latchPolicy) TryAcquireShared(int32) (int32, error) {
	if p.sync.State() == 0 {
		return 1, nil
	}
	return -1, nil
}

func (p *latchPolicy) TryReleaseShared(int32) (bool, error) {
	for {
		c := p.sync.State()
		if c == 0 {
			return false, nil
		}
		if p.sync.CompareAndSetState(c, c-1) {
			return c == 1, nil
		}
	}
}

// Await blocks until the count reaches zero. It fails with
// aqs.ErrInterrupted if the calling goroutine's Thread is interrupted.
func (l *CountDownLatch) Await() error {
	return l.sync.AcquireSharedInterruptibly(1)
}

// AwaitTimeout is Await bounded by timeout. It returns false if the count
// did not reach zero in time.
func (l *CountDownLatch) AwaitTimeout(timeout time.Duration) (bool, error) {
	return l.sync.TryAcquireSharedNanos(1, timeout)
}

// AwaitContext is Await that also gives up when ctx is done.
func (l *CountDownLatch) AwaitContext(ctx context.Context) error {
	return l.sync.AcquireSharedContext(ctx, 1)
}

// CountDown decrements the count, releasing all waiters when it reaches
// zero. It does nothing once the count is zero.
func (l *CountDownLatch) CountDown() {
	// The latch policy never fails.
	_, _ = l.sync.ReleaseShared(1)
}

// Count returns the current count.
func (l *CountDownLatch) Count() int32 {
	return l.sync.State()
}

// Synchronizer returns the engine behind l.
func (l *CountDownLatch) Synchronizer() *aqs.Synchronizer { return l.sync }

// String implements fmt.Stringer.
func (l *CountDownLatch) String() string {
	return fmt.Sprintf("CountDownLatch[count = %d]", l.Count())
}
