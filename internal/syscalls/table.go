// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package syscalls

import (
	"github.com/xv6go/kernel/internal/fs"
	"github.com/xv6go/kernel/internal/kernel"
)

// Syscall numbers, the fixed set of spec §6.
const (
	SysFork = iota + 1
	SysExit
	SysWait
	SysPipe
	SysRead
	SysWrite
	SysClose
	SysKill
	SysExec
	SysOpen
	SysMknod
	SysUnlink
	SysFstat
	SysLink
	SysMkdir
	SysChdir
	SysDup
	SysGetpid
	SysSbrk
	SysSleep
	SysUptime
)

// Table is the live state every handler closes over: the mounted file
// system, the process table (for fork/exit/wait/kill and reparenting
// to init), the fixed exec program registry, and the global clock.
type Table struct {
	FS       *fs.FS
	Procs    *kernel.ProcTable
	Progs    *kernel.Registry
	Clock    *kernel.Clock
	InitProc *kernel.Proc
}

// Build returns the syscall-number-to-handler map, ready for
// kernel.NewDispatcher.
func (t *Table) Build() map[int64]kernel.SyscallFunc {
	return map[int64]kernel.SyscallFunc{
		SysFork:   t.sysFork,
		SysExit:   t.sysExit,
		SysWait:   t.sysWait,
		SysPipe:   t.sysPipe,
		SysRead:   t.sysRead,
		SysWrite:  t.sysWrite,
		SysClose:  t.sysClose,
		SysKill:   t.sysKill,
		SysExec:   t.sysExec,
		SysOpen:   t.sysOpen,
		SysMknod:  t.sysMknod,
		SysUnlink: t.sysUnlink,
		SysFstat:  t.sysFstat,
		SysLink:   t.sysLink,
		SysMkdir:  t.sysMkdir,
		SysChdir:  t.sysChdir,
		SysDup:    t.sysDup,
		SysGetpid: t.sysGetpid,
		SysSbrk:   t.sysSbrk,
		SysSleep:  t.sysSleep,
		SysUptime: t.sysUptime,
	}
}

// releaseCwd is passed to Proc.Exit so it can drop the caller's
// working-directory inode reference inside a log transaction (spec
// §4.5 exit(): "decrements working-directory inode reference inside a
// log transaction") without internal/kernel importing internal/fs.
func (t *Table) releaseCwd(c *kernel.Cpu, p *kernel.Proc) func() {
	return func() {
		cwd, ok := p.Cwd().(*fs.Inode)
		if !ok || cwd == nil {
			return
		}
		t.FS.Log.BeginOp(c, p)
		t.FS.Inodes.Iput(c, p, cwd)
		t.FS.Log.EndOp(c, p)
	}
}
