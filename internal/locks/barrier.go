// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package locks

import (
	"errors"
	"fmt"
	"time"

	"github.com/kolkov/qsync/internal/aqs"
	"github.com/kolkov/qsync/internal/thread"
)

// CyclicBarrier lets a fixed number of parties wait for each other.
//
// Each Await blocks until all parties have called it; the last arrival runs
// the optional barrier action and then releases everyone. The barrier is
// then reusable for the next round ("generation").
//
// If any party is interrupted, times out or the action fails, the barrier
// breaks: every waiting and later party gets ErrBrokenBarrier until Reset.
type CyclicBarrier struct {
	lock    *Mutex
	trip    *aqs.Condition
	parties int
	action  func() error

	// Guarded by lock.
	gen   *generation
	count int
}

// generation is one round of the barrier.
type generation struct {
	broken bool
}

// NewCyclicBarrier returns a barrier for parties goroutines. action may be
// nil; otherwise it runs in the last arriving goroutine before the others
// are released.
func NewCyclicBarrier(parties int, action func() error, opts ...aqs.Option) (*CyclicBarrier, error) {
	if parties <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidParties, parties)
	}
	lock := NewMutex(false, opts...)
	return &CyclicBarrier{
		lock:    lock,
		trip:    lock.NewCondition(),
		parties: parties,
		action:  action,
		gen:     &generation{},
		count:   parties,
	}, nil
}

// Await waits until all parties arrive. It returns the arrival index of the
// caller: parties-1 for the first to arrive and 0 for the last.
func (b *CyclicBarrier) Await() (int, error) {
	return b.await(false, 0)
}

// AwaitTimeout is Await bounded by timeout. On timeout it returns
// ErrBarrierTimeout and breaks the barrier.
func (b *CyclicBarrier) AwaitTimeout(timeout time.Duration) (int, error) {
	return b.await(true, timeout)
}

func (b *CyclicBarrier) await(timed bool, timeout time.Duration) (index int, err error) {
	if err := b.lock.Lock(); err != nil {
		return 0, err
	}
	defer func() {
		if uerr := b.lock.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}()

	g := b.gen
	if g.broken {
		return 0, ErrBrokenBarrier
	}
	if thread.Current().Interrupted() {
		b.breakBarrier()
		return 0, aqs.ErrInterrupted
	}

	b.count--
	index = b.count
	if index == 0 {
		return 0, b.complete()
	}

	remaining := timeout
	for {
		var werr error
		switch {
		case !timed:
			werr = b.trip.Await()
		case remaining > 0:
			remaining, werr = b.trip.AwaitNanos(remaining)
		}

		if errors.Is(werr, aqs.ErrInterrupted) {
			if g == b.gen && !g.broken {
				b.breakBarrier()
				return 0, werr
			}
			// The round completed or broke anyway; keep the interrupt.
			thread.Current().Interrupt()
		} else if werr != nil {
			return 0, werr
		}

		if g.broken {
			return 0, ErrBrokenBarrier
		}
		if g != b.gen {
			return index, nil
		}
		if timed && remaining <= 0 {
			b.breakBarrier()
			return 0, ErrBarrierTimeout
		}
	}
}

// complete ends the current generation. Called by the last arrival with
// the lock held.
func (b *CyclicBarrier) complete() error {
	if b.action != nil {
		ran := false
		defer func() {
			if !ran {
				b.breakBarrier()
			}
		}()
		if err := b.action(); err != nil {
			return fmt.Errorf("barrier action: %w", err)
		}
		ran = true
	}
	return b.nextGeneration()
}

func (b *CyclicBarrier) nextGeneration() error {
	err := b.trip.SignalAll()
	b.count = b.parties
	b.gen = &generation{}
	return err
}

func (b *CyclicBarrier) breakBarrier() {
	b.gen.broken = true
	b.count = b.parties
	// Only fails if the lock is not held, which the callers guarantee.
	_ = b.trip.SignalAll()
}

// Reset breaks the current generation, failing parties already waiting
// with ErrBrokenBarrier, and starts a new one.
func (b *CyclicBarrier) Reset() error {
	if err := b.lock.Lock(); err != nil {
		return err
	}
	b.breakBarrier()
	err := b.nextGeneration()
	if uerr := b.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}

// IsBroken reports whether the current generation is broken.
func (b *CyclicBarrier) IsBroken() bool {
	if b.lock.Lock() != nil {
		return false
	}
	defer b.lock.Unlock()
	return b.gen.broken
}

// NumberWaiting returns how many parties are waiting in the current round.
func (b *CyclicBarrier) NumberWaiting() int {
	if b.lock.Lock() != nil {
		return 0
	}
	defer b.lock.Unlock()
	return b.parties - b.count
}

// Parties returns the number of parties the barrier was created for.
func (b *CyclicBarrier) Parties() int { return b.parties }

// Synchronizer returns the engine of the barrier's internal lock.
func (b *CyclicBarrier) Synchronizer() *aqs.Synchronizer { return b.lock.Synchronizer() }
