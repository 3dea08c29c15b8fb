// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command qsync exercises the qsync locks under load.
//
// Usage:
//
//	qsync stress                          # run every scenario
//	qsync stress --scenario mutex --fair  # one scenario, fair locks
//	qsync stress --config profile.yaml    # load from a profile
//	qsync scenarios                       # list scenarios
//	qsync version                         # show version information
//
// Each stress scenario checks the invariant of the lock it drives: mutual
// exclusion, reader/writer exclusion, the permit bound, latch release,
// barrier generations, buffer conservation and an empty queue after
// cancellation churn. Any violation makes the command exit with status 1.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
