// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aqs

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/qsync/internal/thread"
)

// TestAcquireShared_LatchReleasesAll verifies one opening release wakes every
// shared waiter through propagation.
func TestAcquireShared_LatchReleasesAll(t *testing.T) {
	const waiters = 5
	l := newLatch(3)

	dones := make([]<-chan error, waiters)
	for i := range dones {
		_, dones[i] = goThread(func() error { return l.sync.AcquireShared(1) })
	}
	waitQueueLength(t, l.sync, waiters)

	for i := range 2 {
		ok, err := l.sync.ReleaseShared(1)
		require.NoError(t, err)
		assert.False(t, ok, "count down %d must not open the latch", i+1)
	}
	assert.Equal(t, waiters, l.sync.QueueLength())

	ok, err := l.sync.ReleaseShared(1)
	require.NoError(t, err)
	require.True(t, ok)

	for _, done := range dones {
		require.NoError(t, receive(t, done))
	}
	assert.Zero(t, l.sync.QueueLength())
	assert.Equal(t, uint64(waiters), l.sync.Stats().SlowAcquires)
	checkQueue(t, l.sync)
}

// TestAcquireShared_OpenLatch verifies acquires on an open latch never queue.
func TestAcquireShared_OpenLatch(t *testing.T) {
	l := newLatch(0)

	for range 3 {
		require.NoError(t, l.sync.AcquireShared(1))
	}
	ok, err := l.sync.TryAcquireSharedNanos(1, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, l.sync.HasContended())
}

// TestTryAcquireSharedNanos_Timeout verifies a timed shared acquire gives up.
func TestTryAcquireSharedNanos_Timeout(t *testing.T) {
	l := newLatch(1)

	_, done := goThread(func() error {
		ok, err := l.sync.TryAcquireSharedNanos(1, 10*time.Millisecond)
		if ok {
			t.Error("acquired a closed latch")
		}
		return err
	})

	require.NoError(t, receive(t, done))
	assert.Zero(t, l.sync.QueueLength())
	checkQueue(t, l.sync)
}

// TestAcquireSharedInterruptibly_Interrupt verifies an interrupted shared
// waiter leaves the queue without disturbing the others.
func TestAcquireSharedInterruptibly_Interrupt(t *testing.T) {
	l := newLatch(1)

	th, interrupted := goThread(func() error { return l.sync.AcquireSharedInterruptibly(1) })
	waitQueueLength(t, l.sync, 1)
	_, other := goThread(func() error { return l.sync.AcquireSharedInterruptibly(1) })
	waitQueueLength(t, l.sync, 2)

	th.Interrupt()
	assert.ErrorIs(t, receive(t, interrupted), ErrInterrupted)
	waitQueueLength(t, l.sync, 1)

	_, err := l.sync.ReleaseShared(1)
	require.NoError(t, err)
	require.NoError(t, receive(t, other))
	checkQueue(t, l.sync)
}

// TestAcquireSharedContext_Cancel verifies context cancellation of a shared wait.
func TestAcquireSharedContext_Cancel(t *testing.T) {
	l := newLatch(1)
	ctx, cancel := context.WithCancel(context.Background())

	_, done := goThread(func() error { return l.sync.AcquireSharedContext(ctx, 1) })
	waitQueueLength(t, l.sync, 1)
	cancel()

	assert.ErrorIs(t, receive(t, done), context.Canceled)
	assert.Zero(t, l.sync.QueueLength())
}

// TestAcquireShared_FIFOBehindLargeRequest verifies a waiter needing more
// permits than are available holds back the waiters queued behind it.
func TestAcquireShared_FIFOBehindLargeRequest(t *testing.T) {
	p := newPermits(0)

	_, big := goThread(func() error { return p.sync.AcquireShared(2) })
	waitQueueLength(t, p.sync, 1)
	_, small := goThread(func() error { return p.sync.AcquireShared(1) })
	waitQueueLength(t, p.sync, 2)

	// One permit is not enough for the first waiter, and the second stays
	// behind it.
	_, err := p.sync.ReleaseShared(1)
	require.NoError(t, err)
	assertBlocked(t, big)
	assertBlocked(t, small)

	_, err = p.sync.ReleaseShared(2)
	require.NoError(t, err)
	require.NoError(t, receive(t, big))
	require.NoError(t, receive(t, small))
	assert.Zero(t, p.sync.State())
}

// TestAcquireShared_NoLostWakeup verifies every waiter eventually gets its
// permits when permits are returned by concurrent releases.
func TestAcquireShared_NoLostWakeup(t *testing.T) {
	const (
		workers    = 16
		iterations = 300
		capacity   = 4
	)
	p := newPermits(capacity)

	var (
		inUse atomic.Int32
		wg    sync.WaitGroup
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer thread.Forget()
			r := rand.New(rand.NewPCG(uint64(i), 42))
			for range iterations {
				n := int32(r.IntN(capacity) + 1)
				if !assert.NoError(t, p.sync.AcquireShared(n)) {
					return
				}
				if inUse.Add(n) > capacity {
					t.Error("permit bound exceeded")
				}
				inUse.Add(-n)
				_, err := p.sync.ReleaseShared(n)
				assert.NoError(t, err)
			}
		}()
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(30 * time.Second):
		t.Fatalf("workers stuck, %d queued", p.sync.QueueLength())
	}

	assert.Equal(t, int32(capacity), p.sync.State())
	assert.Zero(t, p.sync.QueueLength())
	checkQueue(t, p.sync)
}
