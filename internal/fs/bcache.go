// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"github.com/xv6go/kernel/internal/device"
	"github.com/xv6go/kernel/internal/kernel"
	"github.com/xv6go/kernel/internal/klog"
)

// Buf is one buffer-cache slot (spec §3 "Buffer slot"): block
// identity, validity, disk-ownership, a reference count guarded by
// the cache lock, a per-slot sleep lock guarding Data and Valid, and
// LRU linkage ordered by recency of release.
type Buf struct {
	Blk     uint32
	Valid   bool
	refcnt  int
	lock    *kernel.SleepLock
	Data    [BSIZE]byte
	prev, next *Buf
}

// Cache is the fixed-capacity LRU buffer cache (spec §4.7). The list
// is circular with a sentinel head: head.next is most-recently
// released, head.prev is least-recently released, matching the scan
// order the contract specifies for get().
type Cache struct {
	lock *kernel.SpinLock
	head *Buf
	dev  device.BlockDevice
}

// NewCache allocates n buffer slots (all initially free, refcnt 0)
// linked in release-recency order and returns a Cache fronting dev.
func NewCache(n int, dev device.BlockDevice) *Cache {
	head := &Buf{}
	head.prev, head.next = head, head
	c := &Cache{lock: kernel.NewSpinLock("bcache"), head: head, dev: dev}
	for i := 0; i < n; i++ {
		b := &Buf{lock: kernel.NewSleepLock("buf")}
		b.next = head.next
		b.prev = head
		head.next.prev = b
		head.next = b
	}
	return c
}

// Get returns the buffer for blk, locked (spec §4.7 get()): reuse a
// cached hit if present, else rebind the least-recently-released free
// slot. Panics (a fatal invariant violation, spec §7) if every slot
// is pinned.
func (c *Cache) Get(cp *kernel.Cpu, caller *kernel.Proc, blk uint32) *Buf {
	c.lock.Acquire(cp)

	for b := c.head.next; b != c.head; b = b.next {
		if b.Blk == blk && (b.Valid || b.refcnt > 0) {
			b.refcnt++
			c.lock.Release(cp)
			b.lock.Acquire(cp)
			return b
		}
	}

	for b := c.head.prev; b != c.head; b = b.prev {
		if b.refcnt == 0 {
			b.Blk = blk
			b.Valid = false
			b.refcnt = 1
			c.lock.Release(cp)
			b.lock.Acquire(cp)
			return b
		}
	}

	klog.Panic("bcache: no free buffers")
	return nil
}

// Read returns the locked buffer for blk, loading it from disk first
// if it is not already valid (spec §4.7 read()).
func (c *Cache) Read(cp *kernel.Cpu, caller *kernel.Proc, blk uint32) *Buf {
	b := c.Get(cp, caller, blk)
	if !b.Valid {
		c.dev.Read(cp, caller, blk, &b.Data)
		b.Valid = true
	}
	return b
}

// Write issues a synchronous write of b to its home block. Only the
// log calls this directly (spec §4.7, §4.8) — ordinary writers go
// through the log's log_write/end_op instead.
func (c *Cache) Write(cp *kernel.Cpu, caller *kernel.Proc, b *Buf) {
	c.dev.Write(cp, caller, b.Blk, &b.Data)
}

// Release unlocks b and, if its refcount drops to zero, moves it to
// the most-recently-released end of the list (spec §4.7 release()).
func (c *Cache) Release(cp *kernel.Cpu, b *Buf) {
	if !b.lock.Holding(cp) {
		klog.Panic("bcache: release of unlocked buffer")
	}
	b.lock.Release(cp)

	c.lock.Acquire(cp)
	b.refcnt--
	if b.refcnt == 0 {
		b.prev.next = b.next
		b.next.prev = b.prev
		b.next = c.head.next
		b.prev = c.head
		c.head.next.prev = b
		c.head.next = b
	}
	c.lock.Release(cp)
}

// Pin and Unpin mutate refcnt under the cache lock only, without the
// per-slot sleep lock (spec §4.7, and the open question of spec §9):
// safe only because the log calls these while already holding the
// buffer reference it obtained from an earlier Get — see DESIGN.md
// for why xv6go keeps this shape rather than introducing a distinct
// "reserve" operation.
func (c *Cache) Pin(cp *kernel.Cpu, b *Buf) {
	c.lock.Acquire(cp)
	b.refcnt++
	c.lock.Release(cp)
}

func (c *Cache) Unpin(cp *kernel.Cpu, b *Buf) {
	c.lock.Acquire(cp)
	b.refcnt--
	c.lock.Release(cp)
}
