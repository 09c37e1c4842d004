// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"testing"

	"github.com/xv6go/kernel/internal/device"
	"github.com/xv6go/kernel/internal/kernel"
)

// memDevice is an in-memory device.BlockDevice stand-in for tests:
// no host file, no background completion goroutine, just a byte
// slice per block. Good enough for exercising Cache/Log logic, which
// never cares how blocks are actually persisted.
type memDevice struct {
	blocks [][device.BlockSize]byte
}

func newMemDevice(n int) *memDevice {
	return &memDevice{blocks: make([][device.BlockSize]byte, n)}
}

func (d *memDevice) NumBlocks() uint32 { return uint32(len(d.blocks)) }

func (d *memDevice) Read(c *kernel.Cpu, caller *kernel.Proc, blk uint32, dst *[device.BlockSize]byte) {
	*dst = d.blocks[blk]
}

func (d *memDevice) Write(c *kernel.Cpu, caller *kernel.Proc, blk uint32, src *[device.BlockSize]byte) {
	d.blocks[blk] = *src
}

// newTestCpuProc returns a Cpu/Proc pair suitable for driving fs
// package operations outside a scheduler, with Cpu.Proc set by hand
// (DESIGN.md OQ-6): SleepLock ownership and Sleep's "is this proc
// running on this cpu" check both key off it, and nothing else sets
// it when no scheduler is dispatching.
func newTestCpuProc(t *testing.T) (*kernel.Cpu, *kernel.Proc) {
	t.Helper()
	procs := kernel.NewProcTable(4, nil)
	c := kernel.NewCpu(0, procs)
	p := procs.Alloc(c)
	if p == nil {
		t.Fatal("process table exhausted")
	}
	c.Proc = p
	p.Lock().Release(c)
	return c, p
}

func TestCacheReadCachesByBlock(t *testing.T) {
	c, p := newTestCpuProc(t)
	dev := newMemDevice(8)
	cache := NewCache(3, dev)

	dev.blocks[5][0] = 0xAB
	b1 := cache.Read(c, p, 5)
	if b1.Data[0] != 0xAB {
		t.Fatalf("Data[0] = %x, want 0xAB", b1.Data[0])
	}
	cache.Release(c, b1)

	// Mutate disk directly; a cached hit must not re-read, so the
	// in-memory copy (still the old value) is what Read returns next.
	dev.blocks[5][0] = 0xFF
	b2 := cache.Read(c, p, 5)
	if b2.Data[0] != 0xAB {
		t.Fatalf("cache hit Data[0] = %x, want stale 0xAB (no re-read)", b2.Data[0])
	}
	cache.Release(c, b2)
}

func TestCacheReleaseRecyclesLRUSlot(t *testing.T) {
	c, p := newTestCpuProc(t)
	dev := newMemDevice(8)
	cache := NewCache(2, dev)

	b0 := cache.Read(c, p, 0)
	cache.Release(c, b0)
	b1 := cache.Read(c, p, 1)
	cache.Release(c, b1)
	// Both slots now free, block 1 most-recently released. A third
	// distinct block must evict block 0 (least-recently released),
	// not block 1.
	b2 := cache.Read(c, p, 2)
	cache.Release(c, b2)

	b1Again := cache.Read(c, p, 1)
	if b1Again != b1 {
		t.Fatalf("block 1's slot was evicted; want it to survive as the more recently released")
	}
	cache.Release(c, b1Again)
}

func TestCacheReleaseOfUnlockedBufferPanics(t *testing.T) {
	c, p := newTestCpuProc(t)
	dev := newMemDevice(4)
	cache := NewCache(2, dev)

	b := cache.Read(c, p, 0)
	cache.Release(c, b)

	defer func() {
		if recover() == nil {
			t.Fatal("releasing an already-released buffer must panic")
		}
	}()
	cache.Release(c, b)
}

func TestCachePinPreventsEviction(t *testing.T) {
	c, p := newTestCpuProc(t)
	dev := newMemDevice(4)
	cache := NewCache(1, dev)

	b0 := cache.Read(c, p, 0)
	cache.Pin(c, b0)
	cache.Release(c, b0) // refcnt drops from 2 to 1, still pinned

	defer func() {
		if recover() == nil {
			t.Fatal("requesting a new block with the only slot pinned must panic (no free buffers)")
		}
	}()
	cache.Read(c, p, 1)
}
