// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aqs

import "log/slog"

type options struct {
	name         string
	logger       *slog.Logger
	captureStack bool
	sampleRate   uint64
}

// Option configures a Synchronizer.
type Option func(*options)

// WithName names the synchronizer in logs, String and metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger used for slow-path events: cancellations at
// Debug level and policy hook errors at Warn level. The fast path never logs.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithStackCapture records the call stack of every goroutine that enqueues,
// visible through Synchronizer.Waiters.
func WithStackCapture(enabled bool) Option {
	return func(o *options) { o.captureStack = enabled }
}

// WithStatsSampling enables counting of uncontended acquires, one in every
// rate. Zero (the default) leaves fast-path acquires uncounted; 1 counts all
// of them. Slow-path events are always counted.
func WithStatsSampling(rate uint64) Option {
	return func(o *options) { o.sampleRate = rate }
}

func defaultOptions() options {
	return options{logger: slog.Default()}
}
