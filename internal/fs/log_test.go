// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import "testing"

// testLogLayout returns a Superblock describing a log region big
// enough for LogSize blocks starting right after a handful of
// unrelated blocks, backed by a memDevice with a little headroom for
// "home" data blocks beyond the log region.
func testLogLayout() (*Superblock, *memDevice) {
	const logStart = 2
	sb := &Superblock{LogStart: logStart, NLog: LogSize}
	dev := newMemDevice(int(logStart + LogSize + 8))
	return sb, dev
}

func TestLogCommitInstallsToHomeBlock(t *testing.T) {
	c, p := newTestCpuProc(t)
	sb, dev := testLogLayout()
	cache := NewCache(8, dev)
	log := NewLog(c, p, sb, cache)

	const home = LogSize + 5 // a data block well outside the log region
	log.BeginOp(c, p)
	b := cache.Read(c, p, home)
	b.Data[0] = 0x42
	log.LogWrite(c, p, b)
	cache.Release(c, b)
	log.EndOp(c, p)

	if dev.blocks[home][0] != 0x42 {
		t.Fatalf("home block[0] = %x, want 0x42 after commit", dev.blocks[home][0])
	}
	if log.lh.n != 0 {
		t.Fatalf("log header n = %d after commit, want 0 (installed)", log.lh.n)
	}
}

func TestLogWriteAbsorbsRepeatedWritesToSameBlock(t *testing.T) {
	c, p := newTestCpuProc(t)
	sb, dev := testLogLayout()
	cache := NewCache(8, dev)
	log := NewLog(c, p, sb, cache)

	const home = LogSize + 1
	log.BeginOp(c, p)
	b := cache.Read(c, p, home)
	b.Data[0] = 1
	log.LogWrite(c, p, b)
	b.Data[0] = 2
	log.LogWrite(c, p, b) // same block again within one transaction
	cache.Release(c, b)

	if log.lh.n != 1 {
		t.Fatalf("log header n = %d after two writes to one block, want 1 (absorbed)", log.lh.n)
	}
	log.EndOp(c, p)

	if dev.blocks[home][0] != 2 {
		t.Fatalf("home block[0] = %x, want 2 (last value before commit)", dev.blocks[home][0])
	}
}

func TestLogRecoverReplaysCommittedTransaction(t *testing.T) {
	sb, dev := testLogLayout()
	const home = LogSize + 2

	// Hand-craft the on-disk state a crash right after the commit point
	// (writeHead) but before installTrans would leave behind: a log
	// header claiming one logged block, that block's new value already
	// in the log region, and the home block still holding its old
	// value.
	dev.blocks[home][0] = 0xAA // stale home value, pre-crash
	putLe32(dev.blocks[sb.LogStart][0:4], 1)
	putLe32(dev.blocks[sb.LogStart][4:8], home)
	dev.blocks[sb.LogStart+1][0] = 0xBB // the logged new value

	c, p := newTestCpuProc(t)
	cache := NewCache(8, dev)
	NewLog(c, p, sb, cache) // recovery runs inside NewLog

	if dev.blocks[home][0] != 0xBB {
		t.Fatalf("home block[0] = %x after recovery, want 0xBB (replayed)", dev.blocks[home][0])
	}
	if n := le32(dev.blocks[sb.LogStart][0:4]); n != 0 {
		t.Fatalf("on-disk header n = %d after recovery, want 0 (cleared)", n)
	}
}

func TestLogRecoverNoOpWhenHeaderEmpty(t *testing.T) {
	sb, dev := testLogLayout()
	const untouched = LogSize + 3
	dev.blocks[untouched][0] = 0x77 // header n=0 already (zero value); nothing to replay

	c, p := newTestCpuProc(t)
	cache := NewCache(8, dev)
	NewLog(c, p, sb, cache)

	if dev.blocks[untouched][0] != 0x77 {
		t.Fatalf("unrelated block mutated by a no-op recovery: got %x", dev.blocks[untouched][0])
	}
}
