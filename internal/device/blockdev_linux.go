//go:build linux
// +build linux

// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"os"

	"golang.org/x/sys/unix"
)

// openBlockFile opens the disk image with O_SYNC so every Write
// completes (and is durable) before the next instruction issues,
// matching the block device contract's synchronous write() and
// giving the log's commit-point ordering (spec §4.8) real teeth
// instead of trusting the host page cache.
func openBlockFile(path string) (*os.File, error) {
	return os.OpenFile(path, unix.O_RDWR|unix.O_CREAT|unix.O_SYNC, 0o644)
}
