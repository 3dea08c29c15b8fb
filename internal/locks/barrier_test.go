// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package locks

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/qsync/internal/aqs"
)

// TestCyclicBarrier_Generations verifies every party gets a distinct arrival
// index each round and the action runs once per round.
func TestCyclicBarrier_Generations(t *testing.T) {
	const (
		parties = 4
		rounds  = 5
	)
	var actions atomic.Int32
	b, err := NewCyclicBarrier(parties, func() error {
		actions.Add(1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, parties, b.Parties())

	var (
		mu      sync.Mutex
		indexes = make([][]int, rounds)
		wg      sync.WaitGroup
	)
	for range parties {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range rounds {
				idx, err := b.Await()
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				indexes[r] = append(indexes[r], idx)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(rounds), actions.Load())
	for r, idx := range indexes {
		sort.Ints(idx)
		assert.Equal(t, []int{0, 1, 2, 3}, idx, "round %d", r)
	}
	assert.False(t, b.IsBroken())
	assert.Zero(t, b.NumberWaiting())
}

// TestCyclicBarrier_Timeout verifies a timed-out party breaks the barrier for
// the others.
func TestCyclicBarrier_Timeout(t *testing.T) {
	b, err := NewCyclicBarrier(3, nil)
	require.NoError(t, err)

	_, waiting := goThread(func() error {
		_, err := b.Await()
		return err
	})
	require.Eventually(t, func() bool { return b.NumberWaiting() == 1 },
		5*time.Second, time.Millisecond)

	_, err = b.AwaitTimeout(5 * time.Millisecond)
	assert.ErrorIs(t, err, ErrBarrierTimeout)
	assert.ErrorIs(t, receive(t, waiting), ErrBrokenBarrier)
	assert.True(t, b.IsBroken())

	_, err = b.Await()
	assert.ErrorIs(t, err, ErrBrokenBarrier)

	require.NoError(t, b.Reset())
	assert.False(t, b.IsBroken())
}

// TestCyclicBarrier_Interrupt verifies an interrupted party breaks the barrier.
func TestCyclicBarrier_Interrupt(t *testing.T) {
	b, err := NewCyclicBarrier(2, nil)
	require.NoError(t, err)

	th, done := goThread(func() error {
		_, err := b.Await()
		return err
	})
	require.Eventually(t, func() bool { return b.NumberWaiting() == 1 },
		5*time.Second, time.Millisecond)

	th.Interrupt()
	assert.ErrorIs(t, receive(t, done), aqs.ErrInterrupted)
	assert.True(t, b.IsBroken())
}

// TestCyclicBarrier_Reset verifies Reset fails current waiters and the
// barrier works again afterwards.
func TestCyclicBarrier_Reset(t *testing.T) {
	b, err := NewCyclicBarrier(2, nil)
	require.NoError(t, err)

	_, done := goThread(func() error {
		_, err := b.Await()
		return err
	})
	require.Eventually(t, func() bool { return b.NumberWaiting() == 1 },
		5*time.Second, time.Millisecond)

	require.NoError(t, b.Reset())
	assert.ErrorIs(t, receive(t, done), ErrBrokenBarrier)

	_, done = goThread(func() error {
		_, err := b.Await()
		return err
	})
	idx, err := b.Await()
	require.NoError(t, err)
	require.NoError(t, receive(t, done))
	assert.Contains(t, []int{0, 1}, idx)
}

// TestCyclicBarrier_ActionError verifies a failing action breaks the barrier
// and reaches the tripping party.
func TestCyclicBarrier_ActionError(t *testing.T) {
	boom := errors.New("boom")
	b, err := NewCyclicBarrier(2, func() error { return boom })
	require.NoError(t, err)

	_, done := goThread(func() error {
		_, err := b.Await()
		return err
	})
	require.Eventually(t, func() bool { return b.NumberWaiting() == 1 },
		5*time.Second, time.Millisecond)

	_, err = b.Await()
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, receive(t, done), ErrBrokenBarrier)
}

// TestNewCyclicBarrier_InvalidParties verifies the party count is checked.
func TestNewCyclicBarrier_InvalidParties(t *testing.T) {
	_, err := NewCyclicBarrier(0, nil)
	assert.ErrorIs(t, err, ErrInvalidParties)
}
