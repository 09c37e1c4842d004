// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"testing"

	"github.com/xv6go/kernel/internal/errno"
	"github.com/xv6go/kernel/internal/kernel"
)

// testFsLayout lays out a small, self-consistent superblock and backing
// memDevice for internal/fs tests that exercise inode.go directly: a
// data region at absolute blocks [0, nblocks) followed by disjoint
// inode, bitmap, and log regions, so balloc's scan (which starts at
// block 0) needs none of the bitmap pre-marking mkfs does for metadata
// blocks. Block 0 alone is pre-marked, because bmap treats a block
// address of 0 as "not allocated".
func testFsLayout(t *testing.T, nblocks, ninodes uint32) (*Superblock, *memDevice, *Cache, *Log, *InodeTable, *kernel.Cpu, *kernel.Proc) {
	t.Helper()
	inodeBlocks := (ninodes + IPB - 1) / IPB
	sb := &Superblock{
		Size:       nblocks,
		NBlocks:    nblocks,
		NInodes:    ninodes,
		InodeStart: nblocks,
		BmapStart:  nblocks + inodeBlocks,
		LogStart:   nblocks + inodeBlocks + 1,
		NLog:       LogSize,
	}
	dev := newMemDevice(int(sb.LogStart + sb.NLog))
	dev.blocks[sb.BmapStart][0] |= 1 // block 0 is never handed out
	c, p := newTestCpuProc(t)
	cache := NewCache(16, dev)
	log := NewLog(c, p, sb, cache)
	it := NewInodeTable(8, sb, cache, log)
	return sb, dev, cache, log, it, c, p
}

func TestIallocThenIgetReturnsSameSlot(t *testing.T) {
	_, _, _, log, it, c, p := testFsLayout(t, 8, 32)

	log.BeginOp(c, p)
	ip, err := it.Ialloc(c, p, TypeFile)
	log.EndOp(c, p)
	if err != errno.Ok {
		t.Fatalf("Ialloc: %s", err)
	}

	again := it.Iget(c, ip.Inum)
	if again != ip {
		t.Fatalf("Iget(%d) returned a different slot than Ialloc's own reference", ip.Inum)
	}
	if again.ref != 2 {
		t.Fatalf("ref = %d after a second Iget, want 2", again.ref)
	}
}

func TestIallocAssignsDistinctInodeNumbers(t *testing.T) {
	_, _, _, log, it, c, p := testFsLayout(t, 8, 32)

	log.BeginOp(c, p)
	a, _ := it.Ialloc(c, p, TypeFile)
	b, _ := it.Ialloc(c, p, TypeDir)
	log.EndOp(c, p)

	if a.Inum == b.Inum {
		t.Fatalf("two Ialloc calls returned the same inode number %d", a.Inum)
	}
}

func TestWriteiThenReadiRoundTrip(t *testing.T) {
	_, _, _, log, it, c, p := testFsLayout(t, 8, 32)

	log.BeginOp(c, p)
	ip, _ := it.Ialloc(c, p, TypeFile)
	it.Ilock(c, p, ip)
	want := []byte("hello, xv6go")
	n, err := it.Writei(c, p, ip, want, 0)
	it.Iunlock(c, ip)
	log.EndOp(c, p)
	if err != errno.Ok || n != len(want) {
		t.Fatalf("Writei = (%d, %s), want (%d, Ok)", n, err, len(want))
	}

	it.Ilock(c, p, ip)
	got := make([]byte, len(want))
	n, err = it.Readi(c, p, ip, got, 0)
	it.Iunlock(c, ip)
	if err != errno.Ok || n != len(want) {
		t.Fatalf("Readi = (%d, %s), want (%d, Ok)", n, err, len(want))
	}
	if string(got) != string(want) {
		t.Fatalf("Readi returned %q, want %q", got, want)
	}
}

func TestWriteiSpanningMultipleBlocks(t *testing.T) {
	_, _, _, log, it, c, p := testFsLayout(t, 40, 32)

	log.BeginOp(c, p)
	ip, _ := it.Ialloc(c, p, TypeFile)
	it.Ilock(c, p, ip)
	data := make([]byte, BSIZE*3+17)
	for i := range data {
		data[i] = byte(i)
	}
	n, err := it.Writei(c, p, ip, data, 0)
	it.Iunlock(c, ip)
	log.EndOp(c, p)
	if err != errno.Ok || n != len(data) {
		t.Fatalf("Writei = (%d, %s), want (%d, Ok)", n, err, len(data))
	}

	it.Ilock(c, p, ip)
	got := make([]byte, len(data))
	n, err = it.Readi(c, p, ip, got, 0)
	it.Iunlock(c, ip)
	if err != errno.Ok || n != len(data) {
		t.Fatalf("Readi = (%d, %s), want (%d, Ok)", n, err, len(data))
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], data[i])
		}
	}
}

func TestIputFreesInodeWhenNlinkReachesZero(t *testing.T) {
	sb, dev, _, log, it, c, p := testFsLayout(t, 8, 32)

	log.BeginOp(c, p)
	ip, _ := it.Ialloc(c, p, TypeFile)
	it.Ilock(c, p, ip)
	ip.Nlink = 0 // as if the last directory link to it was just removed
	it.Iupdate(c, p, ip)
	it.IunlockPut(c, p, ip) // ref drops 1->0 with Nlink 0: frees the inode
	log.EndOp(c, p)

	inum := ip.Inum
	off := (inum % IPB) * DInodeSize
	blk := IBlock(inum, sb)
	if dev.blocks[blk][off] != TypeFree {
		t.Fatalf("on-disk inode %d type = %d, want TypeFree after ref drops to 0 with Nlink 0", inum, dev.blocks[blk][off])
	}
}
