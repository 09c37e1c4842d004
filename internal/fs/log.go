// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"github.com/xv6go/kernel/internal/kernel"
	"github.com/xv6go/kernel/internal/klog"
)

// LogSize is the fixed count of blocks in the log region, header
// included (spec §4.8 "a header block followed by LOGSIZE-1 scratch
// blocks").
const LogSize = 1 + LogMaxOpBlocks*3

// logHeader is the on-disk and in-memory mirror of spec §3 "Log
// header": a count of logged blocks and their home addresses.
// Invariant: n > 0 on disk iff a committed, not-yet-installed
// transaction exists.
type logHeader struct {
	n     int
	block [LogSize - 1]uint32
}

// Log is the write-ahead log (spec §4.8): a dedicated disk region plus
// in-memory bookkeeping making a group of block writes atomic across
// crashes. Exactly one Log exists per mounted file system.
type Log struct {
	lock  *kernel.SpinLock
	start uint32
	size  uint32

	outstanding int
	committing  bool

	cache *Cache
	lh    logHeader
}

// NewLog constructs the Log over the region described by sb and runs
// crash recovery (spec §4.8 "Recovery on boot") before returning, so a
// freshly mounted file system is always consistent.
func NewLog(cp *kernel.Cpu, caller *kernel.Proc, sb *Superblock, cache *Cache) *Log {
	l := &Log{
		lock:  kernel.NewSpinLock("log"),
		start: sb.LogStart,
		size:  sb.NLog,
		cache: cache,
	}
	l.recover(cp, caller)
	return l
}

func (l *Log) readHead(cp *kernel.Cpu, caller *kernel.Proc) {
	b := l.cache.Read(cp, caller, l.start)
	var n uint32
	n = le32(b.Data[0:4])
	l.lh.n = int(n)
	for i := 0; i < l.lh.n; i++ {
		l.lh.block[i] = le32(b.Data[4+4*i:])
	}
	l.cache.Release(cp, b)
}

func (l *Log) writeHead(cp *kernel.Cpu, caller *kernel.Proc) {
	b := l.cache.Get(cp, caller, l.start)
	putLe32(b.Data[0:4], uint32(l.lh.n))
	for i := 0; i < l.lh.n; i++ {
		putLe32(b.Data[4+4*i:], l.lh.block[i])
	}
	l.cache.Write(cp, caller, b)
	l.cache.Release(cp, b)
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLe32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// installTrans copies every logged block from the log region to its
// home location (spec §4.8 commit steps 3-4, reused verbatim by
// recovery).
func (l *Log) installTrans(cp *kernel.Cpu, caller *kernel.Proc, recovering bool) {
	for tail := 0; tail < l.lh.n; tail++ {
		lbuf := l.cache.Read(cp, caller, l.start+1+uint32(tail))
		dbuf := l.cache.Read(cp, caller, l.lh.block[tail])
		dbuf.Data = lbuf.Data
		l.cache.Write(cp, caller, dbuf)
		if !recovering {
			l.cache.Unpin(cp, dbuf)
		}
		l.cache.Release(cp, lbuf)
		l.cache.Release(cp, dbuf)
	}
}

// recover replays an installable transaction found at boot, then
// clears the header (spec §4.8 "Recovery on boot"; idempotent by
// construction since clearing count to 0 makes a second replay a
// no-op).
func (l *Log) recover(cp *kernel.Cpu, caller *kernel.Proc) {
	l.readHead(cp, caller)
	if l.lh.n > 0 {
		l.installTrans(cp, caller, true)
		l.lh.n = 0
		l.writeHead(cp, caller)
	}
}

// BeginOp implements spec §4.8 begin_op(): block while a commit is in
// progress or while this transaction's reservation would overflow the
// log, then register as an outstanding writer.
func (l *Log) BeginOp(cp *kernel.Cpu, caller *kernel.Proc) {
	l.lock.Acquire(cp)
	for {
		if l.committing {
			kernel.Sleep(cp, caller, l, l.lock)
			continue
		}
		if l.lh.n+(l.outstanding+1)*LogMaxOpBlocks > int(l.size)-1 {
			kernel.Sleep(cp, caller, l, l.lock)
			continue
		}
		l.outstanding++
		l.lock.Release(cp)
		return
	}
}

// LogWrite implements spec §4.8 log_write(): record b's home block
// number in the log-slot table (absorbing repeat writes to the same
// block within one transaction) and pin b so the cache cannot evict
// it before commit.
func (l *Log) LogWrite(cp *kernel.Cpu, caller *kernel.Proc, b *Buf) {
	l.lock.Acquire(cp)
	defer l.lock.Release(cp)

	if l.lh.n >= len(l.lh.block) {
		klog.Panic("log: transaction too big")
	}
	for i := 0; i < l.lh.n; i++ {
		if l.lh.block[i] == b.Blk {
			return // absorption: already logged this commit
		}
	}
	l.lh.block[l.lh.n] = b.Blk
	l.lh.n++
	l.cache.Pin(cp, b)
}

// EndOp implements spec §4.8 end_op(): decrement outstanding; the
// writer that brings it to zero performs the commit, entirely outside
// the log lock so concurrent begin_op calls for the *next*
// transaction can still be evaluated once committing clears.
func (l *Log) EndOp(cp *kernel.Cpu, caller *kernel.Proc) {
	l.lock.Acquire(cp)
	l.outstanding--
	doCommit := false
	if l.committing {
		klog.Panic("log: EndOp found committing set")
	}
	if l.outstanding == 0 {
		doCommit = true
		l.committing = true
	} else {
		kernel.Wakeup(cp, l)
	}
	l.lock.Release(cp)

	if doCommit {
		l.commit(cp, caller)
		l.lock.Acquire(cp)
		l.committing = false
		kernel.Wakeup(cp, l)
		l.lock.Release(cp)
	}
}

// commit is the crash-safe protocol of spec §4.8: copy dirty blocks
// to the log region, write the header (the commit point), install to
// home locations, clear the header, unpin.
func (l *Log) commit(cp *kernel.Cpu, caller *kernel.Proc) {
	if l.lh.n == 0 {
		return
	}
	for tail := 0; tail < l.lh.n; tail++ {
		from := l.cache.Read(cp, caller, l.lh.block[tail])
		to := l.cache.Get(cp, caller, l.start+1+uint32(tail))
		to.Data = from.Data
		l.cache.Write(cp, caller, to)
		l.cache.Release(cp, to)
		l.cache.Release(cp, from)
	}
	l.writeHead(cp, caller) // commit point
	l.installTrans(cp, caller, false)
	l.lh.n = 0
	l.writeHead(cp, caller) // declares the transaction installed
}
