// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package locks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/qsync/internal/aqs"
	"github.com/kolkov/qsync/internal/thread"
)

// goThread runs fn in a new goroutine and returns its Thread and result channel.
func goThread(fn func() error) (*thread.Thread, <-chan error) {
	thCh := make(chan *thread.Thread, 1)
	done := make(chan error, 1)
	go func() {
		thCh <- thread.Current()
		done <- fn()
	}()
	return <-thCh, done
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

func waitQueued(t *testing.T, s *aqs.Synchronizer, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.QueueLength() == n },
		5*time.Second, time.Millisecond)
}

// TestMutex_Reentrant verifies the owner can lock repeatedly and must unlock
// as often.
func TestMutex_Reentrant(t *testing.T) {
	for _, fair := range []bool{false, true} {
		m := NewMutex(fair)
		assert.Equal(t, fair, m.IsFair())

		for i := 1; i <= 3; i++ {
			require.NoError(t, m.Lock())
			assert.Equal(t, i, m.HoldCount())
		}
		assert.True(t, m.IsLocked())
		assert.True(t, m.IsHeldByCurrentThread())
		assert.Same(t, thread.Current(), m.Owner())

		for i := 2; i >= 0; i-- {
			require.NoError(t, m.Unlock())
			assert.Equal(t, i, m.HoldCount())
		}
		assert.False(t, m.IsLocked())
		assert.Nil(t, m.Owner())
		assert.Equal(t, "Mutex[unlocked]", m.String())
	}
}

// TestMutex_UnlockNotOwner verifies only the owner may unlock.
func TestMutex_UnlockNotOwner(t *testing.T) {
	m := NewMutex(false)
	assert.ErrorIs(t, m.Unlock(), aqs.ErrIllegalMonitorState)

	require.NoError(t, m.Lock())
	_, done := goThread(m.Unlock)
	assert.ErrorIs(t, receive(t, done), aqs.ErrIllegalMonitorState)
	assert.True(t, m.IsHeldByCurrentThread())
	require.NoError(t, m.Unlock())
}

// TestMutex_TryLock verifies TryLock never waits.
func TestMutex_TryLock(t *testing.T) {
	m := NewMutex(true)

	ok, err := m.TryLock()
	require.NoError(t, err)
	require.True(t, ok)

	_, done := goThread(func() error {
		ok, err := m.TryLock()
		if ok {
			t.Error("TryLock acquired a held mutex")
		}
		return err
	})
	require.NoError(t, receive(t, done))

	ok, err = m.TryLockTimeout(time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok, "reentrant timed lock")
	assert.Equal(t, 2, m.HoldCount())
	require.NoError(t, m.Unlock())
	require.NoError(t, m.Unlock())
}

// TestMutex_FairOrder verifies a fair mutex grants the lock in arrival order.
func TestMutex_FairOrder(t *testing.T) {
	const waiters = 5
	m := NewMutex(true)
	require.NoError(t, m.Lock())

	var (
		order []int // guarded by m
		dones []<-chan error
	)
	for i := range waiters {
		_, done := goThread(func() error {
			if err := m.Lock(); err != nil {
				return err
			}
			order = append(order, i)
			return m.Unlock()
		})
		dones = append(dones, done)
		waitQueued(t, m.Synchronizer(), i+1)
	}
	assert.Equal(t, waiters, m.QueueLength())
	assert.True(t, m.HasQueuedThreads())

	require.NoError(t, m.Unlock())
	for _, done := range dones {
		require.NoError(t, receive(t, done))
	}

	require.NoError(t, m.Lock())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	require.NoError(t, m.Unlock())
}

// TestMutex_FairRefusesBarging verifies a fair Lock queues behind waiters
// while a non-fair TryLock may still barge.
func TestMutex_FairRefusesBarging(t *testing.T) {
	m := NewMutex(true)
	require.NoError(t, m.Lock())

	waiter, done := goThread(func() error {
		if err := m.Lock(); err != nil {
			return err
		}
		return m.Unlock()
	})
	waitQueued(t, m.Synchronizer(), 1)
	assert.True(t, m.HasQueuedThread(waiter))
	require.Eventually(t, func() bool { return waiter.Blocker() != nil },
		5*time.Second, time.Millisecond, "waiter never parked")

	// Open the window between a release and the waiter's wakeup: the mutex
	// is free but the waiter is still parked.
	m.p.owner.Store(nil)
	m.Synchronizer().SetState(0)

	_, late := goThread(func() error {
		ok, err := m.TryLockTimeout(0)
		if err != nil || ok {
			t.Errorf("fair timed lock barged: ok=%v err=%v", ok, err)
		}
		if ok, err = m.TryLock(); err != nil || !ok {
			t.Errorf("TryLock did not barge: ok=%v err=%v", ok, err)
		}
		return m.Unlock()
	})
	require.NoError(t, receive(t, late))
	require.NoError(t, receive(t, done))
	assert.False(t, m.IsLocked())
}

// TestMutex_LockContext verifies cancellation of a blocked Lock.
func TestMutex_LockContext(t *testing.T) {
	m := NewMutex(false)
	require.NoError(t, m.Lock())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, done := goThread(func() error { return m.LockContext(ctx) })
	assert.ErrorIs(t, receive(t, done), context.DeadlineExceeded)
	assert.Zero(t, m.QueueLength())

	th, done := goThread(m.LockInterruptibly)
	waitQueued(t, m.Synchronizer(), 1)
	th.Interrupt()
	assert.ErrorIs(t, receive(t, done), aqs.ErrInterrupted)
	require.NoError(t, m.Unlock())
}

// TestMutex_Condition verifies the bounded-buffer pattern with two conditions.
func TestMutex_Condition(t *testing.T) {
	const items = 200
	m := NewMutex(false)
	notFull, notEmpty := m.NewCondition(), m.NewCondition()

	var (
		buf  []int // guarded by m
		sum  int
		wg   sync.WaitGroup
		size = 4
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= items; i++ {
			assert.NoError(t, m.Lock())
			for len(buf) == size {
				assert.NoError(t, notFull.Await())
			}
			buf = append(buf, i)
			assert.NoError(t, notEmpty.Signal())
			assert.NoError(t, m.Unlock())
		}
	}()
	go func() {
		defer wg.Done()
		for range items {
			assert.NoError(t, m.Lock())
			for len(buf) == 0 {
				assert.NoError(t, notEmpty.Await())
			}
			sum += buf[0]
			buf = buf[1:]
			assert.NoError(t, notFull.Signal())
			assert.NoError(t, m.Unlock())
		}
	}()
	wg.Wait()

	assert.Equal(t, items*(items+1)/2, sum)
	require.NoError(t, m.Lock())
	has, err := m.HasWaiters(notFull)
	require.NoError(t, err)
	assert.False(t, has)
	n, err := m.WaitQueueLength(notEmpty)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, m.Unlock())
}
