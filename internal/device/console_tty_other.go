//go:build !linux
// +build !linux

// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import "os"

// RawTerminal is unsupported outside Linux in this build; callers
// fall back to the host's own line discipline (see IsTerminal).
func RawTerminal(fd int) (restore func() error, err error) {
	return func() error { return nil }, nil
}

// IsTerminal always reports false outside Linux, so cmd/xv6god never
// attempts RawTerminal there.
func IsTerminal(f *os.File) bool {
	return false
}
