// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"github.com/xv6go/kernel/internal/errno"
	"github.com/xv6go/kernel/internal/kernel"
)

// PipeSize is the fixed capacity of a pipe's ring buffer (SPEC_FULL
// §4 supplement: spec.md names the pipe open-file variant but not its
// operations).
const PipeSize = 512

// Pipe is a fixed-size ring buffer with blocking read/write, built on
// SleepQueue the same way every other blocking primitive in this
// kernel is (spec §4.3): readers sleep on &p.nread while empty,
// writers sleep on &p.nwrite while full, exactly mirroring xv6's
// pipe.c rendezvous.
type Pipe struct {
	lock             *kernel.SpinLock
	data             [PipeSize]byte
	nread, nwrite    uint32 // total bytes read/written, mod PipeSize for indexing
	readOpen, writeOpen bool
}

// NewPipe returns an open pipe with both ends live.
func NewPipe() *Pipe {
	return &Pipe{lock: kernel.NewSpinLock("pipe"), readOpen: true, writeOpen: true}
}

// Write implements the producer side of scenario 1 (spec §8): block
// while the ring is full and the read end is still open; a closed
// read end makes further writes fail rather than block forever.
func (p *Pipe) Write(cp *kernel.Cpu, caller *kernel.Proc, src []byte) (int, errno.Errno) {
	p.lock.Acquire(cp)
	defer p.lock.Release(cp)

	n := 0
	for n < len(src) {
		if !p.readOpen || caller.Killed() {
			return n, errno.BadFileDescriptor
		}
		if p.nwrite-p.nread == PipeSize {
			kernel.Wakeup(cp, &p.nread)
			kernel.Sleep(cp, caller, &p.nwrite, p.lock)
			continue
		}
		p.data[p.nwrite%PipeSize] = src[n]
		p.nwrite++
		n++
	}
	kernel.Wakeup(cp, &p.nread)
	return n, errno.Ok
}

// Read implements the consumer side of scenario 1: block while the
// ring is empty and the write end is still open; once the write end
// has closed, drain whatever remains and then return 0 (EOF), never
// blocking again.
func (p *Pipe) Read(cp *kernel.Cpu, caller *kernel.Proc, dst []byte) (int, errno.Errno) {
	p.lock.Acquire(cp)
	defer p.lock.Release(cp)

	for p.nread == p.nwrite && p.writeOpen {
		if caller.Killed() {
			return 0, errno.Killed
		}
		kernel.Sleep(cp, caller, &p.nread, p.lock)
	}
	n := 0
	for n < len(dst) && p.nread != p.nwrite {
		dst[n] = p.data[p.nread%PipeSize]
		p.nread++
		n++
	}
	kernel.Wakeup(cp, &p.nwrite)
	return n, errno.Ok
}

// CloseRead and CloseWrite mark an end of the pipe closed and wake
// the other side so it observes end-of-pipe instead of blocking
// forever.
func (p *Pipe) CloseRead(cp *kernel.Cpu) {
	p.lock.Acquire(cp)
	p.readOpen = false
	kernel.Wakeup(cp, &p.nwrite)
	p.lock.Release(cp)
}

func (p *Pipe) CloseWrite(cp *kernel.Cpu) {
	p.lock.Acquire(cp)
	p.writeOpen = false
	kernel.Wakeup(cp, &p.nread)
	p.lock.Release(cp)
}
