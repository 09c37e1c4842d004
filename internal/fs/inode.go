// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"github.com/xv6go/kernel/internal/errno"
	"github.com/xv6go/kernel/internal/kernel"
	"github.com/xv6go/kernel/internal/klog"
)

// Inode is the in-memory inode (spec §3 "In-memory inode"): identity,
// a reference count guarded by the inode-table lock, a validity flag,
// a sleep lock, and the cached on-disk fields guarded by that sleep
// lock.
type Inode struct {
	Inum uint32
	ref  int
	valid bool
	lock *kernel.SleepLock

	DInode
}

// InodeTable is the fixed-capacity in-memory inode cache (spec §4.9),
// backed by the buffer cache and log for the on-disk inodes it
// mirrors.
type InodeTable struct {
	lock   *kernel.SpinLock
	inodes []*Inode
	sb     *Superblock
	cache  *Cache
	log    *Log
}

// NewInodeTable allocates n recyclable in-memory inode slots.
func NewInodeTable(n int, sb *Superblock, cache *Cache, log *Log) *InodeTable {
	t := &InodeTable{lock: kernel.NewSpinLock("itable"), sb: sb, cache: cache, log: log}
	t.inodes = make([]*Inode, n)
	for i := range t.inodes {
		t.inodes[i] = &Inode{lock: kernel.NewSleepLock("inode")}
	}
	return t
}

// Ialloc implements spec §4.9 ialloc(dev, type): scan on-disk inodes
// from 1 up for the first with type 0, claim it under the caller's
// already-open log transaction, and return a reference via Iget.
func (t *InodeTable) Ialloc(cp *kernel.Cpu, caller *kernel.Proc, typ uint16) (*Inode, errno.Errno) {
	for inum := uint32(1); inum < t.sb.NInodes; inum++ {
		b := t.cache.Read(cp, caller, IBlock(inum, t.sb))
		off := (inum % IPB) * DInodeSize
		var d DInode
		d.Unmarshal(b.Data[off:])
		if d.Type == TypeFree {
			d = DInode{Type: typ}
			d.Marshal(b.Data[off:])
			t.log.LogWrite(cp, caller, b)
			t.cache.Release(cp, b)
			return t.Iget(cp, inum), errno.Ok
		}
		t.cache.Release(cp, b)
	}
	return nil, errno.NoSpace
}

// Iget implements spec §4.9 iget(dev, inum): reuse a live table entry
// or recycle a ref==0 slot, bump ref to (at least) 1, and return
// without touching disk or the per-inode sleep lock.
func (t *InodeTable) Iget(cp *kernel.Cpu, inum uint32) *Inode {
	t.lock.Acquire(cp)
	defer t.lock.Release(cp)

	var empty *Inode
	for _, ip := range t.inodes {
		if ip.ref > 0 && ip.Inum == inum {
			ip.ref++
			return ip
		}
		if empty == nil && ip.ref == 0 {
			empty = ip
		}
	}
	if empty == nil {
		klog.Panic("itable: no free inode slots")
	}
	empty.Inum = inum
	empty.ref = 1
	empty.valid = false
	return empty
}

// Idup bumps ip's reference count (used by fork/dup-style duplication
// of a held inode reference).
func (t *InodeTable) Idup(cp *kernel.Cpu, ip *Inode) *Inode {
	t.lock.Acquire(cp)
	ip.ref++
	t.lock.Release(cp)
	return ip
}

// Ilock implements spec §4.9 ilock(ip): take the sleep lock, and load
// the on-disk fields on first lock. A loaded type of 0 is a fatal
// invariant violation (spec §7).
func (t *InodeTable) Ilock(cp *kernel.Cpu, caller *kernel.Proc, ip *Inode) {
	if ip == nil || ip.ref < 1 {
		klog.Panic("ilock: no reference")
	}
	ip.lock.Acquire(cp)
	if !ip.valid {
		b := t.cache.Read(cp, caller, IBlock(ip.Inum, t.sb))
		off := (ip.Inum % IPB) * DInodeSize
		ip.DInode.Unmarshal(b.Data[off:])
		t.cache.Release(cp, b)
		if ip.Type == TypeFree {
			klog.Panic("ilock: inode %d has no type", ip.Inum)
		}
		ip.valid = true
	}
}

// Iunlock releases ip's sleep lock.
func (t *InodeTable) Iunlock(cp *kernel.Cpu, ip *Inode) {
	if !ip.lock.Holding(cp) || ip.ref < 1 {
		klog.Panic("iunlock: not held")
	}
	ip.lock.Release(cp)
}

// Iupdate writes ip's in-memory fields to their on-disk inode block,
// inside the caller's open log transaction.
func (t *InodeTable) Iupdate(cp *kernel.Cpu, caller *kernel.Proc, ip *Inode) {
	b := t.cache.Read(cp, caller, IBlock(ip.Inum, t.sb))
	off := (ip.Inum % IPB) * DInodeSize
	ip.DInode.Marshal(b.Data[off:])
	t.log.LogWrite(cp, caller, b)
	t.cache.Release(cp, b)
}

// Iput implements spec §4.9 iput(ip): decrement ref; on the
// ref==1 && valid && nlink==0 transition, truncate and free the inode
// on disk. Must run inside a log transaction (the caller's).
func (t *InodeTable) Iput(cp *kernel.Cpu, caller *kernel.Proc, ip *Inode) {
	t.lock.Acquire(cp)
	if ip.ref == 1 && ip.valid && ip.Nlink == 0 {
		t.lock.Release(cp)

		t.Ilock(cp, caller, ip)
		t.itrunc(cp, caller, ip)
		ip.Type = TypeFree
		t.Iupdate(cp, caller, ip)
		ip.valid = false
		t.Iunlock(cp, ip)

		t.lock.Acquire(cp)
	}
	ip.ref--
	t.lock.Release(cp)
}

// IunlockPut is the common Iunlock-then-Iput pairing used throughout
// the directory/path layer.
func (t *InodeTable) IunlockPut(cp *kernel.Cpu, caller *kernel.Proc, ip *Inode) {
	t.Iunlock(cp, ip)
	t.Iput(cp, caller, ip)
}

// Stat fills out the spec §6 stat/fstat payload for ip. Caller must
// hold ip's sleep lock.
func (t *InodeTable) Stat(ip *Inode) Stat {
	return Stat{Dev: 0, Ino: ip.Inum, Type: ip.Type, Nlink: ip.Nlink, Size: uint64(ip.Size)}
}

// bmap returns the disk block number holding the bn'th block of ip's
// content, allocating a direct or indirect block as needed (spec
// §4.9 "allocating direct or indirect blocks as needed in writei").
// Caller must hold ip's sleep lock and an open log transaction.
func (t *InodeTable) bmap(cp *kernel.Cpu, caller *kernel.Proc, ip *Inode, bn uint32) (uint32, errno.Errno) {
	if bn < NDIRECT {
		addr := ip.Addrs[bn]
		if addr == 0 {
			a, ok := t.balloc(cp, caller)
			if !ok {
				return 0, errno.NoSpace
			}
			addr = a
			ip.Addrs[bn] = addr
		}
		return addr, errno.Ok
	}
	bn -= NDIRECT
	if bn >= NINDIRECT {
		return 0, errno.NoSpace
	}
	indirect := ip.Addrs[NDIRECT]
	if indirect == 0 {
		a, ok := t.balloc(cp, caller)
		if !ok {
			return 0, errno.NoSpace
		}
		indirect = a
		ip.Addrs[NDIRECT] = indirect
	}
	ib := t.cache.Read(cp, caller, indirect)
	addr := le32(ib.Data[4*bn:])
	if addr == 0 {
		a, ok := t.balloc(cp, caller)
		if !ok {
			t.cache.Release(cp, ib)
			return 0, errno.NoSpace
		}
		addr = a
		putLe32(ib.Data[4*bn:], addr)
		t.log.LogWrite(cp, caller, ib)
	}
	t.cache.Release(cp, ib)
	return addr, errno.Ok
}

// itrunc frees every direct and indirect block of ip and resets its
// size (spec §4.9 "truncates (freeing every direct and indirect block
// via the bitmap)").
func (t *InodeTable) itrunc(cp *kernel.Cpu, caller *kernel.Proc, ip *Inode) {
	for i := 0; i < NDIRECT; i++ {
		if ip.Addrs[i] != 0 {
			t.bfree(cp, caller, ip.Addrs[i])
			ip.Addrs[i] = 0
		}
	}
	if ip.Addrs[NDIRECT] != 0 {
		ib := t.cache.Read(cp, caller, ip.Addrs[NDIRECT])
		for i := 0; i < NINDIRECT; i++ {
			a := le32(ib.Data[4*i:])
			if a != 0 {
				t.bfree(cp, caller, a)
			}
		}
		t.cache.Release(cp, ib)
		t.bfree(cp, caller, ip.Addrs[NDIRECT])
		ip.Addrs[NDIRECT] = 0
	}
	ip.Size = 0
	t.Iupdate(cp, caller, ip)
}

// balloc scans the bitmap for a free data block, claims it, and
// returns its block number. ok is false when the disk is full (spec
// §7 NoSpace).
func (t *InodeTable) balloc(cp *kernel.Cpu, caller *kernel.Proc) (uint32, bool) {
	for b := uint32(0); b < t.sb.Size; b += BPB {
		bb := t.cache.Read(cp, caller, BBlock(b, t.sb))
		for bi := uint32(0); bi < BPB && b+bi < t.sb.Size; bi++ {
			byteIdx := bi / 8
			mask := byte(1 << (bi % 8))
			if bb.Data[byteIdx]&mask == 0 {
				bb.Data[byteIdx] |= mask
				t.log.LogWrite(cp, caller, bb)
				t.cache.Release(cp, bb)
				return b + bi, true
			}
		}
		t.cache.Release(cp, bb)
	}
	return 0, false
}

// bfree clears b's bitmap bit. A double-free (bit already clear) is a
// fatal invariant violation (spec §7).
func (t *InodeTable) bfree(cp *kernel.Cpu, caller *kernel.Proc, b uint32) {
	bb := t.cache.Read(cp, caller, BBlock(b, t.sb))
	bi := b % BPB
	byteIdx := bi / 8
	mask := byte(1 << (bi % 8))
	if bb.Data[byteIdx]&mask == 0 {
		klog.Panic("bfree: freeing already-free block %d", b)
	}
	bb.Data[byteIdx] &^= mask
	t.log.LogWrite(cp, caller, bb)
	t.cache.Release(cp, bb)
}

// Readi implements spec §4.9 readi: byte-granular read through the
// buffer cache, requiring ip's sleep lock held.
func (t *InodeTable) Readi(cp *kernel.Cpu, caller *kernel.Proc, ip *Inode, dst []byte, off uint32) (int, errno.Errno) {
	if ip.Type == TypeDevice {
		return 0, errno.Fault
	}
	if off > ip.Size {
		return 0, errno.Ok
	}
	n := uint32(len(dst))
	if off+n > ip.Size {
		n = ip.Size - off
	}
	var total uint32
	for total < n {
		bn := (off + total) / BSIZE
		addr, err := t.bmap(cp, caller, ip, bn)
		if err != errno.Ok {
			break
		}
		b := t.cache.Read(cp, caller, addr)
		boff := (off + total) % BSIZE
		m := min32(n-total, BSIZE-boff)
		copy(dst[total:total+m], b.Data[boff:boff+m])
		t.cache.Release(cp, b)
		total += m
	}
	return int(total), errno.Ok
}

// Writei implements spec §4.9 writei: byte-granular write, allocating
// blocks as needed, extending Size, requiring ip's sleep lock and an
// open log transaction.
func (t *InodeTable) Writei(cp *kernel.Cpu, caller *kernel.Proc, ip *Inode, src []byte, off uint32) (int, errno.Errno) {
	if ip.Type == TypeDevice {
		return 0, errno.Fault
	}
	n := uint32(len(src))
	if off > ip.Size || off+n < off {
		return 0, errno.Fault
	}
	if off+n > MAXFILE*BSIZE {
		return 0, errno.NoSpace
	}
	var total uint32
	for total < n {
		bn := (off + total) / BSIZE
		addr, err := t.bmap(cp, caller, ip, bn)
		if err != errno.Ok {
			break
		}
		b := t.cache.Read(cp, caller, addr)
		boff := (off + total) % BSIZE
		m := min32(n-total, BSIZE-boff)
		copy(b.Data[boff:boff+m], src[total:total+m])
		t.log.LogWrite(cp, caller, b)
		t.cache.Release(cp, b)
		total += m
	}
	if total > 0 && off+total > ip.Size {
		ip.Size = off + total
	}
	t.Iupdate(cp, caller, ip)
	return int(total), errno.Ok
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
