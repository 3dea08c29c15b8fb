// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !go1.24 || go1.26 || !(amd64 || arm64)

package thread

// The runtime.g layout is unverified here, so goroutine IDs always come
// from runtime.Stack.
const fastGoidAvailable = false

func fastGoroutineID() int64 { return 0 }
