// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package qsync provides blocking locks built on one queued synchronizer
// engine.
//
// The engine keeps a 32-bit state word and a FIFO queue of parked
// goroutines. Locks decide what the state means by implementing a small
// Policy; the engine does the queueing, parking, cancellation and wakeups.
// Every lock therefore supports the same set of waits: plain, interruptible,
// timed and context-bounded.
//
// # Quick Start
//
//	mu := qsync.NewMutex(false)
//	if err := mu.Lock(); err != nil {
//		return err
//	}
//	defer mu.Unlock()
//
// # API Overview
//
// Ready-made locks:
//   - [Mutex]: reentrant mutual exclusion, fair or non-fair, with conditions
//   - [RWMutex]: reentrant read-write lock with write-to-read downgrade
//   - [Semaphore]: counting semaphore with multi-permit acquires
//   - [CountDownLatch]: one-shot gate opened by a countdown
//   - [CyclicBarrier]: reusable rendezvous for a fixed number of parties
//
// Building blocks for custom locks:
//   - [New] and [Policy]: a Synchronizer driven by your own hooks
//   - [Condition]: wait sets attached to an exclusively held Synchronizer
//   - [CurrentThread]: the identity, park permit and interrupt flag of the
//     calling goroutine
//
// Version information: [Version], [GetInfo].
//
// # Goroutine identity
//
// Ownership and interruption need a notion of "the current goroutine" that
// Go does not expose. qsync keeps a registry of [Thread] values keyed by
// goroutine ID. A Thread pointer is stable for the goroutine's lifetime, so
// locks compare owners with ==. Entries of goroutines that have exited are
// swept in the background; short-lived goroutines may call [ForgetThread]
// before returning.
//
// # Interruption
//
// Interrupting a Thread sets its flag and wakes it if parked. Interruptible
// waits return [ErrInterrupted] and leave the queue; uninterruptible waits
// keep going and set the flag again when they return.
//
//	th := qsync.CurrentThread() // in the goroutine to interrupt
//	...
//	th.Interrupt()              // from anywhere
//
// Context-aware waits are usually simpler: a done context ends the wait
// with ctx.Err().
//
// # Fairness
//
// Non-fair locks let an arriving goroutine take a free lock ahead of queued
// ones, which keeps throughput high. Fair locks hand the lock over in
// arrival order. The TryLock style methods always barge.
package qsync
