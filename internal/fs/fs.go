// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"fmt"

	"github.com/xv6go/kernel/internal/device"
	"github.com/xv6go/kernel/internal/kernel"
	"github.com/xv6go/kernel/internal/klog"
)

// FS wires together every piece spec §2's data-flow diagram names
// between a trap into a file-system syscall and the block device: the
// superblock, buffer cache, log, inode table, and device dispatch
// table for one mounted file system.
type FS struct {
	Superblock *Superblock
	Cache      *Cache
	Log        *Log
	Inodes     *InodeTable
	Devices    *DevTable
}

// NCache and NInode are the fixed in-memory table capacities (spec
// §4.7, §4.9 describe both as fixed-capacity caches; sizes are a
// deployment knob, not a spec constant, so they are parameters to
// Mount rather than consts here).

// Mount reads and validates the superblock from dev (block 1, spec
// §6 "On-disk layout"), replays any pending log transaction, and
// returns a ready FS. A magic mismatch is fatal (spec §7).
func Mount(cp *kernel.Cpu, caller *kernel.Proc, dev device.BlockDevice, ncache, ninode int, log klog.Logger) (*FS, error) {
	cache := NewCache(ncache, dev)

	b := cache.Read(cp, caller, 1)
	var sb Superblock
	sb.Unmarshal(&b.Data)
	cache.Release(cp, b)

	if sb.Magic != SuperblockMagic {
		return nil, fmt.Errorf("fs: mount: bad superblock magic %#x", sb.Magic)
	}
	log.Printf("fs: mounted %d blocks, %d inodes, log %d blocks at %d", sb.Size, sb.NInodes, sb.NLog, sb.LogStart)

	xlog := NewLog(cp, caller, &sb, cache)
	itable := NewInodeTable(ninode, &sb, cache, xlog)

	return &FS{Superblock: &sb, Cache: cache, Log: xlog, Inodes: itable, Devices: NewDevTable()}, nil
}
