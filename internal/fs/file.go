// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"sync/atomic"

	"github.com/xv6go/kernel/internal/errno"
	"github.com/xv6go/kernel/internal/kernel"
	"github.com/xv6go/kernel/internal/klog"
)

// Kind is the open-file object's variant tag (spec §3 "Open-file
// object": {none, pipe, inode, device}).
type Kind int

const (
	KindNone Kind = iota
	KindPipe
	KindInode
	KindDevice
)

// File is the open-file object: a reference count, readable/writable
// flags, and the variant-specific fields spec §3 names (byte offset
// for inode files, device major for devices). It satisfies
// kernel.FileHandle structurally, so internal/kernel never imports
// this package.
type File struct {
	kind               Kind
	ref                int32 // atomic; an open file may be Dup'd into several fd slots
	readable, writable bool

	pipe  *Pipe
	ip    *Inode
	off   uint32
	major uint16

	fsys *FS // back-reference for Close's log transaction and device lookup
}

// Dup increments File's reference count and returns the same handle
// (spec §4.5 fork duplicates open-file references, not the objects).
func (f *File) Dup() kernel.FileHandle {
	atomic.AddInt32(&f.ref, 1)
	return f
}

// Close drops one reference; the last reference releases the
// underlying pipe end or inode (spec §3, §4.9 "iput must run inside a
// log transaction").
func (f *File) Close(c *kernel.Cpu, caller *kernel.Proc) {
	if atomic.AddInt32(&f.ref, -1) > 0 {
		return
	}
	switch f.kind {
	case KindPipe:
		if f.writable {
			f.pipe.CloseWrite(c)
		} else {
			f.pipe.CloseRead(c)
		}
	case KindInode, KindDevice:
		f.fsys.Log.BeginOp(c, caller)
		f.fsys.Inodes.Iput(c, caller, f.ip)
		f.fsys.Log.EndOp(c, caller)
	}
}

// Read implements the syscall-level read() for whichever variant f
// is.
func (f *File) Read(c *kernel.Cpu, caller *kernel.Proc, dst []byte) (int, errno.Errno) {
	if !f.readable {
		return 0, errno.BadFileDescriptor
	}
	switch f.kind {
	case KindPipe:
		return f.pipe.Read(c, caller, dst)
	case KindDevice:
		dev := f.fsys.Devices.Lookup(f.major)
		if dev == nil {
			return 0, errno.NoSuchFile
		}
		return dev.Read(c, caller, dst)
	case KindInode:
		f.fsys.Inodes.Ilock(c, caller, f.ip)
		n, err := f.fsys.Inodes.Readi(c, caller, f.ip, dst, f.off)
		if err == errno.Ok {
			f.off += uint32(n)
		}
		f.fsys.Inodes.Iunlock(c, f.ip)
		return n, err
	default:
		klog.Panic("file: read on KindNone")
		return 0, errno.Fault
	}
}

// Write implements the syscall-level write(), staging inode writes
// inside a log transaction (spec §4.8 "only file-system syscalls open
// transactions").
func (f *File) Write(c *kernel.Cpu, caller *kernel.Proc, src []byte) (int, errno.Errno) {
	if !f.writable {
		return 0, errno.BadFileDescriptor
	}
	switch f.kind {
	case KindPipe:
		return f.pipe.Write(c, caller, src)
	case KindDevice:
		dev := f.fsys.Devices.Lookup(f.major)
		if dev == nil {
			return 0, errno.NoSuchFile
		}
		return dev.Write(c, caller, src)
	case KindInode:
		// Bound each transaction to a fraction of LogMaxOpBlocks so a
		// large write doesn't overflow a single transaction's budget
		// (mirrors xv6's filewrite chunking writes across max-sized
		// log transactions).
		max := (LogMaxOpBlocks - 4) / 2 * BSIZE
		var total int
		for total < len(src) {
			n := len(src) - total
			if n > max {
				n = max
			}
			f.fsys.Log.BeginOp(c, caller)
			f.fsys.Inodes.Ilock(c, caller, f.ip)
			written, err := f.fsys.Inodes.Writei(c, caller, f.ip, src[total:total+n], f.off)
			f.fsys.Inodes.Iunlock(c, f.ip)
			f.fsys.Log.EndOp(c, caller)
			if err != errno.Ok {
				if total == 0 {
					return 0, err
				}
				break
			}
			f.off += uint32(written)
			total += written
			if written != n {
				break
			}
		}
		return total, errno.Ok
	default:
		klog.Panic("file: write on KindNone")
		return 0, errno.Fault
	}
}

// Stat returns the spec §6 fstat payload for an inode- or
// device-backed file.
func (f *File) Stat() (Stat, errno.Errno) {
	if f.kind != KindInode && f.kind != KindDevice {
		return Stat{}, errno.BadFileDescriptor
	}
	return Stat{Dev: 0, Ino: f.ip.Inum, Type: f.ip.Type, Nlink: f.ip.Nlink, Size: uint64(f.ip.Size)}, errno.Ok
}
