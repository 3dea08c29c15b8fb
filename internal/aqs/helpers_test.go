// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aqs

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kolkov/qsync/internal/thread"
)

// reentrantMutex is a minimal exclusive policy: state is the hold count.
type reentrantMutex struct {
	Unsupported
	sync  *Synchronizer
	owner atomic.Pointer[thread.Thread]
}

func newReentrantMutex(opts ...Option) *reentrantMutex {
	m := &reentrantMutex{}
	m.sync = New(m, opts...)
	return m
}

func (m *reentrantMutex) TryAcquire(arg int32) (bool, error) {
	th := thread.Current()
	c := m.sync.State()
	if c == 0 {
		if m.sync.CompareAndSetState(0, arg) {
			m.owner.Store(th)
			return true, nil
		}
		return false, nil
	}
	if m.owner.Load() == th {
		m.sync.SetState(c + arg)
		return true, nil
	}
	return false, nil
}

func (m *reentrantMutex) TryRelease(arg int32) (bool, error) {
	if m.owner.Load() != thread.Current() {
		return false, ErrIllegalMonitorState
	}
	c := m.sync.State() - arg
	free := c == 0
	if free {
		m.owner.Store(nil)
	}
	m.sync.SetState(c)
	return free, nil
}

func (m *reentrantMutex) IsHeldExclusively() bool {
	return m.owner.Load() == thread.Current()
}

// latch opens once its count reaches zero.
type latch struct {
	Unsupported
	sync *Synchronizer
}

func newLatch(count int32) *latch {
	l := &latch{}
	l.sync = New(l)
	l.sync.SetState(count)
	return l
}

func (l *latch) TryAcquireShared(int32) (int32, error) {
	if l.sync.State() == 0 {
		return 1, nil
	}
	return -1, nil
}

func (l *latch) TryReleaseShared(int32) (bool, error) {
	for {
		c := l.sync.State()
		if c == 0 {
			return false, nil
		}
		if l.sync.CompareAndSetState(c, c-1) {
			return c == 1, nil
		}
	}
}

// permits is a counting semaphore.
type permits struct {
	Unsupported
	sync *Synchronizer
}

func newPermits(n int32) *permits {
	p := &permits{}
	p.sync = New(p)
	p.sync.SetState(n)
	return p
}

func (p *permits) TryAcquireShared(arg int32) (int32, error) {
	for {
		avail := p.sync.State()
		rem := avail - arg
		if rem < 0 || p.sync.CompareAndSetState(avail, rem) {
			return rem, nil
		}
	}
}

func (p *permits) TryReleaseShared(arg int32) (bool, error) {
	for {
		c := p.sync.State()
		if p.sync.CompareAndSetState(c, c+arg) {
			return true, nil
		}
	}
}

var errBoom = errors.New("boom")

// flakyPolicy fails its first exclusive attempt and errors on every later one.
type flakyPolicy struct {
	Unsupported
	calls atomic.Int32
}

func (f *flakyPolicy) TryAcquire(int32) (bool, error) {
	if f.calls.Add(1) == 1 {
		return false, nil
	}
	return false, errBoom
}

// goThread runs fn in a new goroutine and returns its Thread and a channel
// receiving fn's result.
func goThread(fn func() error) (*thread.Thread, <-chan error) {
	thCh := make(chan *thread.Thread, 1)
	done := make(chan error, 1)
	go func() {
		thCh <- thread.Current()
		done <- fn()
	}()
	return <-thCh, done
}

func waitQueueLength(t *testing.T, s *Synchronizer, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.QueueLength() == n },
		5*time.Second, time.Millisecond, "queue length never reached %d", n)
}

func receive(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("goroutine did not finish")
		return nil
	}
}

func assertBlocked(t *testing.T, ch <-chan error) {
	t.Helper()
	select {
	case err := <-ch:
		t.Fatalf("goroutine finished early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
}

// checkQueue walks the wait queue backwards from the tail and fails on a
// cycle or a chain that does not end at the head.
func checkQueue(t *testing.T, s *Synchronizer) {
	t.Helper()
	h := s.head.Load()
	steps := 0
	p := s.tail.Load()
	for ; p != nil && p != h; p = p.prev.Load() {
		steps++
		require.Less(t, steps, 1<<16, "cycle in wait queue")
	}
	require.Same(t, h, p, "wait queue does not lead back to the head")
	if h != nil {
		require.NotEqual(t, StatusCancelled, h.status(), "cancelled head")
	}
}
