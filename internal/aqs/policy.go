// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aqs

// Policy defines what acquiring and releasing a Synchronizer means.
//
// A concrete lock implements Policy on top of the Synchronizer's state word,
// using State, SetState and CompareAndSetState. The engine calls the hooks; it
// never interprets the state itself.
//
// All hooks must be safe for concurrent use and must not block. Returning an
// error aborts the calling operation: a queued acquisition is cancelled and
// the error is returned unchanged.
//
// Embed Unsupported to get ErrUnsupported defaults for the hooks a lock does
// not need.
type Policy interface {
	// TryAcquire attempts to acquire in exclusive mode.
	TryAcquire(arg int32) (bool, error)

	// TryRelease attempts to release in exclusive mode. It returns true if
	// the synchronizer is now fully released, so waiters may acquire.
	TryRelease(arg int32) (bool, error)

	// TryAcquireShared attempts to acquire in shared mode. A negative result
	// means failure; zero means success with no capacity left for further
	// shared acquires; positive means success and later shared acquires may
	// also succeed, so the wakeup is propagated.
	TryAcquireShared(arg int32) (int32, error)

	// TryReleaseShared attempts to release in shared mode. It returns true if
	// the release may allow a waiting acquire (shared or exclusive) to succeed.
	TryReleaseShared(arg int32) (bool, error)

	// IsHeldExclusively reports whether the calling goroutine holds the
	// synchronizer exclusively. Only condition operations use it.
	IsHeldExclusively() bool
}

// Unsupported implements every Policy hook by failing with ErrUnsupported.
// Embed it and override the hooks a synchronizer supports.
type Unsupported struct{}

// TryAcquire implements Policy.
func (Unsupported) TryAcquire(int32) (bool, error) { return false, ErrUnsupported }

// TryRelease implements Policy.
func (Unsupported) TryRelease(int32) (bool, error) { return false, ErrUnsupported }

// TryAcquireShared implements Policy.
func (Unsupported) TryAcquireShared(int32) (int32, error) { return -1, ErrUnsupported }

// TryReleaseShared implements Policy.
func (Unsupported) TryReleaseShared(int32) (bool, error) { return false, ErrUnsupported }

// IsHeldExclusively implements Policy.
func (Unsupported) IsHeldExclusively() bool { return false }
