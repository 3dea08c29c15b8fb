// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aqs

import "sync/atomic"

// Stats is a snapshot of a Synchronizer's activity counters.
type Stats struct {
	// FastAcquires counts acquires that succeeded without queueing. It is an
	// estimate scaled by the sampling rate, and zero unless WithStatsSampling
	// is set.
	FastAcquires uint64

	// SlowAcquires counts acquires that succeeded after queueing.
	SlowAcquires uint64

	// Parks counts how many times a waiter parked.
	Parks uint64

	// Cancellations counts queued acquires abandoned by timeout, interrupt,
	// context cancellation or hook error.
	Cancellations uint64

	// Timeouts and Interrupts break Cancellations down by cause.
	Timeouts   uint64
	Interrupts uint64

	// Signals counts condition signals that moved a waiter; Transfers counts
	// condition nodes spliced onto the wait queue for any reason.
	Signals   uint64
	Transfers uint64
}

// counters holds the live values behind Stats.
//
// Fast-path counting uses the trace-position sampling scheme: an atomic
// counter advanced on every uncontended acquire, with one in rate recorded
// and weighted by rate.
type counters struct {
	tracePos atomic.Uint64

	fast          atomic.Uint64
	slow          atomic.Uint64
	parks         atomic.Uint64
	cancellations atomic.Uint64
	timeouts      atomic.Uint64
	interrupts    atomic.Uint64
	signals       atomic.Uint64
	transfers     atomic.Uint64
}

func (c *counters) sampleFast(rate uint64) {
	switch rate {
	case 0:
		return
	case 1:
		c.fast.Add(1)
	default:
		if c.tracePos.Add(1)%rate == 0 {
			c.fast.Add(rate)
		}
	}
}

// Stats returns a snapshot of the activity counters.
func (s *Synchronizer) Stats() Stats {
	c := &s.stats
	return Stats{
		FastAcquires:  c.fast.Load(),
		SlowAcquires:  c.slow.Load(),
		Parks:         c.parks.Load(),
		Cancellations: c.cancellations.Load(),
		Timeouts:      c.timeouts.Load(),
		Interrupts:    c.interrupts.Load(),
		Signals:       c.signals.Load(),
		Transfers:     c.transfers.Load(),
	}
}
