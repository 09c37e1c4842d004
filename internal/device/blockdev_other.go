//go:build !linux
// +build !linux

// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import "os"

// openBlockFile is the portable fallback: regular buffered I/O, with
// every Write followed by an explicit Sync (see FileBlockDevice.Write)
// to approximate the synchronous-completion contract without O_SYNC.
func openBlockFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
}
