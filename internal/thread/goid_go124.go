// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.24 && !go1.25 && (amd64 || arm64)

package thread

// goidOffset is the offset of goid in runtime.g for Go 1.24. gobuf holds
// sp, pc, g, ctxt, ret, lr and bp (56 bytes), which puts goid at 160.
const goidOffset = 160
