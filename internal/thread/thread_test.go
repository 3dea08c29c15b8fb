// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package thread

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseGID verifies goroutine header parsing.
func TestParseGID(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		input string
		want  int64
	}{
		"running":        {input: "goroutine 123 [running]:\nmain.main()", want: 123},
		"single digit":   {input: "goroutine 7 [chan receive]:", want: 7},
		"missing prefix": {input: "created by main.main in goroutine 1", want: 0},
		"too short":      {input: "gorou", want: 0},
		"no digits":      {input: "goroutine [running]", want: 0},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, parseGID([]byte(tc.input)))
		})
	}
}

// TestParseAllGIDs verifies a full stack dump yields every goroutine ID.
func TestParseAllGIDs(t *testing.T) {
	t.Parallel()

	dump := "goroutine 1 [running]:\nmain.main()\n\t/x/main.go:10 +0x20\n\n" +
		"goroutine 5 [chan receive]:\nmain.worker()\n\t/x/main.go:20 +0x40\n" +
		"created by main.main in goroutine 1\n"

	assert.Equal(t, []int64{1, 5}, parseAllGIDs([]byte(dump)))
}

// TestGoroutineID_MatchesStackHeader verifies the ID used for Current agrees
// with the runtime.Stack header on many goroutines, fast path or not.
func TestGoroutineID_MatchesStackHeader(t *testing.T) {
	t.Parallel()

	if fastGoidAvailable {
		t.Logf("runtime.g read enabled: %v", fastGoidOK)
	}

	const n = 100
	var wg sync.WaitGroup
	ids := make([][2]int64, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i] = [2]int64{goroutineID(), stackGoroutineID()}
		}()
	}
	wg.Wait()

	seen := make(map[int64]struct{}, n)
	for _, pair := range ids {
		assert.Positive(t, pair[0])
		assert.Equal(t, pair[1], pair[0])
		seen[pair[0]] = struct{}{}
	}
	assert.Len(t, seen, n)
}

// TestCurrent_Stable verifies repeated Current calls return the same Thread.
func TestCurrent_Stable(t *testing.T) {
	t.Parallel()

	a := Current()
	b := Current()
	require.Same(t, a, b)
	assert.Positive(t, a.ID())
	assert.Equal(t, goroutineID(), a.ID())
}

// TestCurrent_DistinctGoroutines verifies goroutines get distinct Threads.
func TestCurrent_DistinctGoroutines(t *testing.T) {
	t.Parallel()

	self := Current()
	other := make(chan *Thread)
	go func() { other <- Current() }()

	o := <-other
	assert.NotSame(t, self, o)
	assert.NotEqual(t, self.ID(), o.ID())
}

// TestUnpark_BeforePark verifies a permit granted before Park is consumed
// without blocking.
func TestUnpark_BeforePark(t *testing.T) {
	t.Parallel()

	th := Current()
	th.Unpark()
	assert.True(t, th.parker.hasPermit())

	th.Park("test")
	assert.False(t, th.parker.hasPermit())
}

// TestUnpark_Idempotent verifies two unparks before a park leave one permit.
func TestUnpark_Idempotent(t *testing.T) {
	t.Parallel()

	th := Current()
	th.Unpark()
	th.Unpark()

	th.Park(nil) // consumes the single permit

	start := time.Now()
	th.ParkNanos(nil, 20*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond,
		"second park should have waited for its timeout")
}

// TestPark_WokenByUnpark verifies a parked goroutine resumes after Unpark.
func TestPark_WokenByUnpark(t *testing.T) {
	t.Parallel()

	ready := make(chan *Thread)
	done := make(chan struct{})

	go func() {
		th := Current()
		ready <- th
		th.Park("waiting")
		close(done)
	}()

	th := <-ready
	th.Unpark()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("parked goroutine was not woken")
	}
}

// TestParkNanos_Timeout verifies ParkNanos returns after its timeout.
func TestParkNanos_Timeout(t *testing.T) {
	t.Parallel()

	th := Current()
	start := time.Now()
	th.ParkNanos("timed", 10*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
	assert.Nil(t, th.Blocker())
}

// TestParkNanos_NonPositive verifies a non-positive timeout never blocks.
func TestParkNanos_NonPositive(t *testing.T) {
	t.Parallel()

	th := Current()
	th.ParkNanos(nil, 0)
	th.ParkNanos(nil, -time.Second)
	th.ParkUntil(nil, time.Now().Add(-time.Second))
}

// TestInterrupt_WakesParked verifies Interrupt wakes a parked goroutine and
// that Interrupted clears the flag.
func TestInterrupt_WakesParked(t *testing.T) {
	t.Parallel()

	ready := make(chan *Thread)
	result := make(chan bool)

	go func() {
		th := Current()
		ready <- th
		for !th.IsInterrupted() {
			th.Park("interruptible")
		}
		result <- th.Interrupted()
	}()

	th := <-ready
	th.Interrupt()

	select {
	case got := <-result:
		assert.True(t, got)
		assert.False(t, th.IsInterrupted())
	case <-time.After(5 * time.Second):
		t.Fatal("interrupted goroutine was not woken")
	}
}

// TestPark_InterruptedReturnsImmediately verifies Park does not block while
// the interrupt flag is set.
func TestPark_InterruptedReturnsImmediately(t *testing.T) {
	t.Parallel()

	th := Current()
	th.interrupted.Store(true)
	defer th.Interrupted()

	th.Park(nil)
	th.Park(nil)
	assert.True(t, th.IsInterrupted())
}

// TestBlocker_VisibleWhileParked verifies the blocker is published during Park.
func TestBlocker_VisibleWhileParked(t *testing.T) {
	t.Parallel()

	ready := make(chan *Thread)
	done := make(chan struct{})

	go func() {
		th := Current()
		ready <- th
		th.Park("the-blocker")
		close(done)
	}()

	th := <-ready
	require.Eventually(t, func() bool { return th.Blocker() == "the-blocker" },
		5*time.Second, time.Millisecond)

	th.Unpark()
	<-done
	assert.Nil(t, th.Blocker())
}

// TestUnpark_Concurrent verifies concurrent unparks never block or lose the
// wakeup of a parked goroutine.
func TestUnpark_Concurrent(t *testing.T) {
	t.Parallel()

	for range 100 {
		ready := make(chan *Thread)
		done := make(chan struct{})

		go func() {
			th := Current()
			ready <- th
			th.Park(nil)
			close(done)
		}()

		th := <-ready

		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				th.Unpark()
			}()
		}
		wg.Wait()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("wakeup lost under concurrent unpark")
		}
	}
}

// TestSweep_RemovesDeadGoroutines verifies Sweep reclaims exited goroutines.
func TestSweep_RemovesDeadGoroutines(t *testing.T) {
	var gid int64
	done := make(chan struct{})
	go func() {
		gid = Current().ID()
		close(done)
	}()
	<-done

	require.Eventually(t, func() bool {
		Sweep()
		_, ok := threads.Load(gid)
		return !ok
	}, 5*time.Second, 10*time.Millisecond)

	// The calling goroutine is alive and must survive the sweep.
	self := Current()
	Sweep()
	assert.Same(t, self, Current())
}

// TestForget verifies Forget drops the caller's entry.
func TestForget(t *testing.T) {
	t.Parallel()

	done := make(chan bool)
	go func() {
		first := Current()
		Forget()
		done <- first != Current()
	}()
	assert.True(t, <-done)
}

func BenchmarkCurrent(b *testing.B) {
	Current()
	for b.Loop() {
		Current()
	}
}

func BenchmarkStackGoroutineID(b *testing.B) {
	for b.Loop() {
		stackGoroutineID()
	}
}
