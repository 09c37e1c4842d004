// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package syscalls builds the syscall table spec §6 names (fork,
// exit, wait, pipe, read, write, close, kill, exec, open, mknod,
// unlink, fstat, link, mkdir, chdir, dup, getpid, sbrk, sleep,
// uptime), bridging internal/kernel and internal/fs — the seam
// kernel.FileHandle and Proc.cwd's opaque any exist to make possible
// without an import cycle.
package syscalls

import (
	"github.com/xv6go/kernel/internal/errno"
	"github.com/xv6go/kernel/internal/fs"
	"github.com/xv6go/kernel/internal/kernel"
)

// MaxPath bounds a fetched path string (spec §6 "pointer-typed
// arguments are validated by copying through the current page
// table").
const MaxPath = 128

// argInt returns trapframe register n (0-5) as a plain integer
// argument.
func argInt(p *kernel.Proc, n int) int64 {
	tf := p.TrapFrame()
	switch n {
	case 0:
		return tf.A0
	case 1:
		return tf.A1
	case 2:
		return tf.A2
	case 3:
		return tf.A3
	case 4:
		return tf.A4
	case 5:
		return tf.A5
	}
	return 0
}

// fetchStr copies a NUL-terminated string out of p's address space at
// virtual address addr, validated the way spec §6 requires pointer
// arguments to be (spec §7 Fault on a bad user pointer).
func fetchStr(p *kernel.Proc, addr uint64) (string, errno.Errno) {
	buf := make([]byte, MaxPath)
	if !p.Space().CopyIn(buf, addr) {
		return "", errno.Fault
	}
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), errno.Ok
		}
	}
	return "", errno.Fault
}

// fileArg resolves fd to an *fs.File on p, or (nil, BadFileDescriptor).
func fileArg(p *kernel.Proc, fd int) (*fs.File, errno.Errno) {
	h := p.Ofile(fd)
	if h == nil {
		return nil, errno.BadFileDescriptor
	}
	f, ok := h.(*fs.File)
	if !ok {
		return nil, errno.BadFileDescriptor
	}
	return f, errno.Ok
}
