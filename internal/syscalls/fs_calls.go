// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package syscalls

import (
	"encoding/binary"

	"github.com/xv6go/kernel/internal/errno"
	"github.com/xv6go/kernel/internal/fs"
	"github.com/xv6go/kernel/internal/kernel"
)

// maxIOChunk bounds one read/write's user-space copy, standing in for
// xv6's page-at-a-time copyin/copyout loop (spec §6 "validated by
// copying through the current page table in page-bounded chunks").
const maxIOChunk = 4096

func (t *Table) sysOpen(c *kernel.Cpu, p *kernel.Proc) int64 {
	path, ferr := fetchStr(p, uint64(argInt(p, 0)))
	if ferr != errno.Ok {
		return ferr.Ret()
	}
	flags := int(argInt(p, 1))
	f, err := t.FS.Open(c, p, path, flags)
	if err != errno.Ok {
		return err.Ret()
	}
	fd := p.AllocFd(f)
	if fd < 0 {
		f.Close(c, p)
		return errno.BadFileDescriptor.Ret()
	}
	return int64(fd)
}

func (t *Table) sysClose(c *kernel.Cpu, p *kernel.Proc) int64 {
	fd := int(argInt(p, 0))
	f, err := fileArg(p, fd)
	if err != errno.Ok {
		return err.Ret()
	}
	f.Close(c, p)
	p.SetOfile(fd, nil)
	return 0
}

func (t *Table) sysDup(c *kernel.Cpu, p *kernel.Proc) int64 {
	fd := int(argInt(p, 0))
	f, err := fileArg(p, fd)
	if err != errno.Ok {
		return err.Ret()
	}
	nfd := p.AllocFd(f.Dup())
	if nfd < 0 {
		return errno.BadFileDescriptor.Ret()
	}
	return int64(nfd)
}

func (t *Table) sysRead(c *kernel.Cpu, p *kernel.Proc) int64 {
	fd := int(argInt(p, 0))
	addr := uint64(argInt(p, 1))
	n := int(argInt(p, 2))
	f, err := fileArg(p, fd)
	if err != errno.Ok {
		return err.Ret()
	}
	if n > maxIOChunk {
		n = maxIOChunk
	}
	buf := make([]byte, n)
	got, rerr := f.Read(c, p, buf)
	if rerr != errno.Ok {
		return rerr.Ret()
	}
	if got > 0 && !p.Space().CopyOut(addr, buf[:got]) {
		return errno.Fault.Ret()
	}
	return int64(got)
}

func (t *Table) sysWrite(c *kernel.Cpu, p *kernel.Proc) int64 {
	fd := int(argInt(p, 0))
	addr := uint64(argInt(p, 1))
	n := int(argInt(p, 2))
	f, err := fileArg(p, fd)
	if err != errno.Ok {
		return err.Ret()
	}
	if n > maxIOChunk {
		n = maxIOChunk
	}
	buf := make([]byte, n)
	if n > 0 && !p.Space().CopyIn(buf, addr) {
		return errno.Fault.Ret()
	}
	wrote, werr := f.Write(c, p, buf)
	if werr != errno.Ok {
		return werr.Ret()
	}
	return int64(wrote)
}

func (t *Table) sysFstat(c *kernel.Cpu, p *kernel.Proc) int64 {
	fd := int(argInt(p, 0))
	addr := uint64(argInt(p, 1))
	f, err := fileArg(p, fd)
	if err != errno.Ok {
		return err.Ret()
	}
	st, serr := f.Stat()
	if serr != errno.Ok {
		return serr.Ret()
	}
	var buf [fs.StatSize]byte
	st.Marshal(buf[:])
	if !p.Space().CopyOut(addr, buf[:]) {
		return errno.Fault.Ret()
	}
	return 0
}

func (t *Table) sysLink(c *kernel.Cpu, p *kernel.Proc) int64 {
	oldp, err := fetchStr(p, uint64(argInt(p, 0)))
	if err != errno.Ok {
		return err.Ret()
	}
	newp, err := fetchStr(p, uint64(argInt(p, 1)))
	if err != errno.Ok {
		return err.Ret()
	}
	return t.FS.Link(c, p, oldp, newp).Ret()
}

func (t *Table) sysUnlink(c *kernel.Cpu, p *kernel.Proc) int64 {
	path, err := fetchStr(p, uint64(argInt(p, 0)))
	if err != errno.Ok {
		return err.Ret()
	}
	return t.FS.Unlink(c, p, path).Ret()
}

func (t *Table) sysMkdir(c *kernel.Cpu, p *kernel.Proc) int64 {
	path, err := fetchStr(p, uint64(argInt(p, 0)))
	if err != errno.Ok {
		return err.Ret()
	}
	return t.FS.Mkdir(c, p, path).Ret()
}

func (t *Table) sysMknod(c *kernel.Cpu, p *kernel.Proc) int64 {
	path, err := fetchStr(p, uint64(argInt(p, 0)))
	if err != errno.Ok {
		return err.Ret()
	}
	major := uint16(argInt(p, 1))
	minor := uint16(argInt(p, 2))
	return t.FS.Mknod(c, p, path, major, minor).Ret()
}

func (t *Table) sysChdir(c *kernel.Cpu, p *kernel.Proc) int64 {
	path, ferr := fetchStr(p, uint64(argInt(p, 0)))
	if ferr != errno.Ok {
		return ferr.Ret()
	}
	ip, err := t.FS.Chdir(c, p, path)
	if err != errno.Ok {
		return err.Ret()
	}
	old, _ := p.Cwd().(*fs.Inode)
	p.SetCwd(ip)
	if old != nil {
		t.FS.Log.BeginOp(c, p)
		t.FS.Inodes.Iput(c, p, old)
		t.FS.Log.EndOp(c, p)
	}
	return 0
}

// sysPipe implements spec §6 pipe(fdarray): install a connected
// read/write pair of Files into the caller's fd table and write their
// fd numbers back as two little-endian int32s at the user address
// (the xv6 int[2] convention).
func (t *Table) sysPipe(c *kernel.Cpu, p *kernel.Proc) int64 {
	addr := uint64(argInt(p, 0))
	rf, wf := t.FS.OpenPipe()
	rfd := p.AllocFd(rf)
	wfd := p.AllocFd(wf)
	if rfd < 0 || wfd < 0 {
		if rfd >= 0 {
			p.SetOfile(rfd, nil)
		}
		if wfd >= 0 {
			p.SetOfile(wfd, nil)
		}
		return errno.BadFileDescriptor.Ret()
	}
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:], uint32(rfd))
	binary.LittleEndian.PutUint32(buf[4:], uint32(wfd))
	if !p.Space().CopyOut(addr, buf[:]) {
		return errno.Fault.Ret()
	}
	return 0
}
