// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package locks provides the standard synchronizers built on the aqs engine:
// a reentrant Mutex, a reentrant RWMutex, a counting Semaphore, a
// CountDownLatch and a CyclicBarrier.
//
// Every lock is one aqs.Synchronizer plus a small Policy giving meaning to
// its state word:
//
//	Mutex           hold count of the owner
//	RWMutex         write holds (low 16 bits), read holds (high 16 bits)
//	Semaphore       available permits
//	CountDownLatch  remaining count
//
// CyclicBarrier is built from a Mutex and a Condition.
//
// Owned locks identify goroutines through thread.Current, so a lock must be
// released by the goroutine that acquired it.
package locks
