// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.25 && !go1.26 && (amd64 || arm64)

package thread

// goidOffset is the offset of goid in runtime.g for Go 1.25, where gobuf
// lost its ret field (48 bytes).
//
//	stack 0, stackguard0 16, stackguard1 24, _panic 32, _defer 40, m 48,
//	sched 56, syscallsp 104, syscallpc 112, syscallbp 120, stktopsp 128,
//	param 136, atomicstatus 144, stackLock 148, goid 152
const goidOffset = 152
