// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aqs

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/qsync/internal/thread"
)

// TestIntrospection_EmptyQueue verifies queries on a fresh synchronizer.
func TestIntrospection_EmptyQueue(t *testing.T) {
	m := newReentrantMutex()

	assert.False(t, m.sync.HasQueuedThreads())
	assert.False(t, m.sync.HasContended())
	assert.Nil(t, m.sync.FirstQueuedThread())
	assert.Zero(t, m.sync.QueueLength())
	assert.Empty(t, m.sync.QueuedThreads())
	assert.Empty(t, m.sync.Waiters())
	assert.False(t, m.sync.HasQueuedPredecessors(thread.Current()))
	assert.False(t, m.sync.ApparentlyFirstQueuedIsExclusive())
	assert.False(t, m.sync.IsQueued(nil))
}

// TestIntrospection_QueuedWaiters verifies the queue views while exclusive
// and shared waiters are parked.
func TestIntrospection_QueuedWaiters(t *testing.T) {
	rw := newMixedPolicy()
	s := rw.sync
	require.NoError(t, s.Acquire(1))

	writer, wdone := goThread(func() error {
		if err := s.Acquire(1); err != nil {
			return err
		}
		_, err := s.Release(1)
		return err
	})
	waitQueueLength(t, s, 1)
	reader, rdone := goThread(func() error {
		if err := s.AcquireShared(1); err != nil {
			return err
		}
		_, err := s.ReleaseShared(1)
		return err
	})
	waitQueueLength(t, s, 2)

	assert.True(t, s.HasQueuedThreads())
	assert.True(t, s.HasContended())
	assert.Same(t, writer, s.FirstQueuedThread())
	assert.True(t, s.IsQueued(writer))
	assert.True(t, s.IsQueued(reader))
	assert.False(t, s.IsQueued(thread.Current()))
	assert.True(t, s.ApparentlyFirstQueuedIsExclusive())

	assert.Equal(t, []*thread.Thread{reader, writer}, s.QueuedThreads())
	assert.Equal(t, []*thread.Thread{writer}, s.ExclusiveQueuedThreads())
	assert.Equal(t, []*thread.Thread{reader}, s.SharedQueuedThreads())

	assert.False(t, s.HasQueuedPredecessors(writer), "writer is first")
	assert.True(t, s.HasQueuedPredecessors(reader))
	assert.True(t, s.HasQueuedPredecessors(thread.Current()))

	// The reader asks the writer for a signal before it parks.
	require.Eventually(t, func() bool {
		w := s.Waiters()
		return len(w) == 2 && w[0].Status == StatusSignal
	}, 5*time.Second, time.Millisecond)

	waiters := s.Waiters()
	require.Len(t, waiters, 2)
	assert.Same(t, writer, waiters[0].Thread)
	assert.Equal(t, Exclusive, waiters[0].Mode)
	assert.Same(t, reader, waiters[1].Thread)
	assert.Equal(t, Shared, waiters[1].Mode)
	assert.Nil(t, waiters[0].Stack, "stack capture is off")

	assert.Contains(t, s.String(), "nonempty queue")

	_, err := s.Release(1)
	require.NoError(t, err)
	require.NoError(t, receive(t, wdone))
	require.NoError(t, receive(t, rdone))
	assert.NotContains(t, s.String(), "nonempty")
}

// TestWaiters_StackCapture verifies waiters record where they blocked.
func TestWaiters_StackCapture(t *testing.T) {
	m := newReentrantMutex(WithStackCapture(true), WithName("captured"))
	require.NoError(t, m.sync.Acquire(1))

	_, done := goThread(func() error { return blockOn(m) })
	waitQueueLength(t, m.sync, 1)

	waiters := m.sync.Waiters()
	require.Len(t, waiters, 1)
	require.NotNil(t, waiters[0].Stack)
	frames := waiters[0].Stack.Frames()
	require.NotEmpty(t, frames)
	assert.True(t, strings.HasSuffix(frames[0], ".blockOn"), "first frame %q", frames[0])

	assert.Equal(t, "captured", m.sync.Name())
	assert.Equal(t, "Synchronizer(captured)[state=1, nonempty queue]", m.sync.String())

	_, err := m.sync.Release(1)
	require.NoError(t, err)
	require.NoError(t, receive(t, done))
}

//go:noinline
func blockOn(m *reentrantMutex) error {
	if err := m.sync.Acquire(1); err != nil {
		return err
	}
	_, err := m.sync.Release(1)
	return err
}

// TestStats_Sampling verifies fast-path acquires are counted at the
// configured rate.
func TestStats_Sampling(t *testing.T) {
	tests := map[string]struct {
		rate uint64
		want uint64
	}{
		"disabled":  {rate: 0, want: 0},
		"every":     {rate: 1, want: 100},
		"one in 10": {rate: 10, want: 100},
		"one in 30": {rate: 30, want: 90},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			m := newReentrantMutex(WithStatsSampling(tc.rate))
			for range 100 {
				require.NoError(t, m.sync.Acquire(1))
				_, err := m.sync.Release(1)
				require.NoError(t, err)
			}
			stats := m.sync.Stats()
			assert.Equal(t, tc.want, stats.FastAcquires)
			assert.Zero(t, stats.SlowAcquires)
			assert.Zero(t, stats.Parks)
		})
	}
}

// TestWithLogger verifies cancellations are logged off the fast path.
func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m := newReentrantMutex(WithLogger(logger), WithName("logged"))

	require.NoError(t, m.sync.Acquire(1))
	assert.Empty(t, buf.String(), "fast path must not log")

	_, done := goThread(func() error {
		_, err := m.sync.TryAcquireNanos(1, 5*time.Millisecond)
		return err
	})
	require.NoError(t, receive(t, done))

	out := buf.String()
	assert.Contains(t, out, "acquire cancelled")
	assert.Contains(t, out, "synchronizer=logged")
	assert.Contains(t, out, "timed out")
}

// mixedPolicy is a tiny read-write lock: -1 means write-locked, n > 0 is
// the number of readers.
type mixedPolicy struct {
	Unsupported
	sync *Synchronizer
}

func newMixedPolicy() *mixedPolicy {
	p := &mixedPolicy{}
	p.sync = New(p)
	return p
}

func (p *mixedPolicy) TryAcquire(int32) (bool, error) {
	return p.sync.CompareAndSetState(0, -1), nil
}

func (p *mixedPolicy) TryRelease(int32) (bool, error) {
	p.sync.SetState(0)
	return true, nil
}

func (p *mixedPolicy) TryAcquireShared(int32) (int32, error) {
	for {
		c := p.sync.State()
		if c < 0 {
			return -1, nil
		}
		if p.sync.CompareAndSetState(c, c+1) {
			return 1, nil
		}
	}
}

func (p *mixedPolicy) TryReleaseShared(int32) (bool, error) {
	for {
		c := p.sync.State()
		if p.sync.CompareAndSetState(c, c-1) {
			return c == 1, nil
		}
	}
}

func (p *mixedPolicy) IsHeldExclusively() bool { return p.sync.State() < 0 }
