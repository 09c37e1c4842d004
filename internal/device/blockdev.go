// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package device holds the two device contracts spec §6 leaves to
// external collaborators that this repository does provide a
// reference implementation of: a single block device and a console.
package device

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/semaphore"

	"github.com/xv6go/kernel/internal/kernel"
)

// BlockSize is the fixed unit of disk transfer (spec §3, §6).
const BlockSize = 1024

// BlockDevice is the synchronous read(buf)/write(buf) contract of
// spec §6: only the buffer cache and the log call this interface.
// Completion is delivered by waking the caller on a channel tied to
// the request, the Go analogue of a disk-controller interrupt.
type BlockDevice interface {
	NumBlocks() uint32
	Read(c *kernel.Cpu, caller *kernel.Proc, blk uint32, dst *[BlockSize]byte)
	Write(c *kernel.Cpu, caller *kernel.Proc, blk uint32, src *[BlockSize]byte)
}

// ioReq is the sleep-channel token for one in-flight request; the
// caller sleeps on its own address exactly as spec §6 describes.
type ioReq struct {
	done bool
}

// FileBlockDevice backs BlockDevice with a single regular file,
// opened for unbuffered synchronous I/O where the platform supports
// it (see blockdev_linux.go / blockdev_other.go), so write reordering
// by the host page cache cannot mask the crash-safety properties the
// log depends on (spec §8 "Log crash-safety").
//
// A semaphore bounds how many simulated completions run at once,
// standing in for the teacher's MaxBackground/_DEFAULT_BACKGROUND_TASKS
// throttle on concurrent FUSE requests (fuse/mountstate.go).
type FileBlockDevice struct {
	f       *os.File
	nblocks uint32
	sem     *semaphore.Weighted
	lock    *kernel.SpinLock
	irqCpu  *kernel.Cpu
	done    chan *ioReq
}

// OpenFileBlockDevice opens (creating if needed) a disk image at
// path sized to hold nblocks blocks, and returns a BlockDevice backed
// by it. procs is the process table completions will wake waiters
// in; completions are delivered by a single dedicated goroutine (see
// runCompletions) holding its own synthetic Cpu, never one of the
// real scheduling harts, so concurrent completions can never race on
// a hart's interrupt-nesting bookkeeping the way spec §4.1 requires
// for a genuine single-owner spin lock.
func OpenFileBlockDevice(path string, nblocks uint32, procs *kernel.ProcTable) (*FileBlockDevice, error) {
	f, err := openBlockFile(path)
	if err != nil {
		return nil, fmt.Errorf("open block device %q: %w", path, err)
	}
	size := int64(nblocks) * BlockSize
	if fi, err := f.Stat(); err == nil && fi.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("size block device %q: %w", path, err)
		}
	}
	d := &FileBlockDevice{
		f:       f,
		nblocks: nblocks,
		sem:     semaphore.NewWeighted(8),
		lock:    kernel.NewSpinLock("blockdev"),
		irqCpu:  kernel.NewCpu(-1, procs),
		done:    make(chan *ioReq, 64),
	}
	go d.runCompletions()
	return d, nil
}

// runCompletions is the device's single "interrupt handler" goroutine:
// it is the only caller that ever touches d.irqCpu, so d.irqCpu's
// interrupt-nesting state is only ever mutated sequentially.
func (d *FileBlockDevice) runCompletions() {
	for req := range d.done {
		d.lock.Acquire(d.irqCpu)
		req.done = true
		kernel.Wakeup(d.irqCpu, req)
		d.lock.Release(d.irqCpu)
	}
}

func (d *FileBlockDevice) NumBlocks() uint32 { return d.nblocks }

func (d *FileBlockDevice) Close() error { return d.f.Close() }

func (d *FileBlockDevice) Read(c *kernel.Cpu, caller *kernel.Proc, blk uint32, dst *[BlockSize]byte) {
	d.serve(c, caller, blk, func() {
		d.f.ReadAt(dst[:], int64(blk)*BlockSize)
	})
}

func (d *FileBlockDevice) Write(c *kernel.Cpu, caller *kernel.Proc, blk uint32, src *[BlockSize]byte) {
	d.serve(c, caller, blk, func() {
		d.f.WriteAt(src[:], int64(blk)*BlockSize)
		d.f.Sync()
	})
}

// serve issues fn on a worker goroutine bounded by d.sem and blocks
// the caller on a sleep channel until it completes, the way a real
// driver would issue the operation to hardware and sleep for the
// completion interrupt.
func (d *FileBlockDevice) serve(c *kernel.Cpu, caller *kernel.Proc, blk uint32, fn func()) {
	req := &ioReq{}
	go func() {
		ctx := context.Background()
		d.sem.Acquire(ctx, 1)
		defer d.sem.Release(1)
		fn()
		d.done <- req
	}()

	d.lock.Acquire(c)
	for !req.done {
		kernel.Sleep(c, caller, req, d.lock)
	}
	d.lock.Release(c)
}
