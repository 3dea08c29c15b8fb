// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aqs

import "errors"

var (
	// ErrIllegalMonitorState is returned when a synchronizer is released by a
	// goroutine that does not hold it, or a condition is used without holding
	// its synchronizer exclusively.
	ErrIllegalMonitorState = errors.New("qsync: illegal monitor state")

	// ErrUnsupported is returned by policy hooks a synchronizer does not
	// implement, e.g. shared operations on an exclusive-only lock.
	ErrUnsupported = errors.New("qsync: unsupported operation")

	// ErrInterrupted is returned when a blocking operation is abandoned
	// because the calling Thread was interrupted.
	ErrInterrupted = errors.New("qsync: interrupted")
)

// errTimedOut ends a timed acquire loop. It never leaves the package:
// timeouts are reported as a false result.
var errTimedOut = errors.New("qsync: timed out")

// ErrForeignCondition is returned when a Condition is passed to a
// Synchronizer that did not create it.
var ErrForeignCondition = errors.New("qsync: condition not owned by this synchronizer")
