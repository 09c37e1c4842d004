// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package syscalls

import (
	"github.com/xv6go/kernel/internal/errno"
	"github.com/xv6go/kernel/internal/fs"
	"github.com/xv6go/kernel/internal/kernel"
)

// sysFork implements spec §6 fork() via kernel.Fork. Real xv6 resumes
// the child by duplicating the parent's register/stack state so it
// "returns" from the same fork() call with A0 forced to zero; Go
// gives no way to clone a running goroutine's continuation, so the
// child's thread body here runs to a clean exit(0) instead of
// resuming the parent's call stack — see DESIGN.md. This matches
// spec §8 scenario 3 exactly ("4 concurrent processes each fork then
// exit once"); programs that need the child to do real work call
// kernel.Fork directly with an explicit body rather than going
// through this syscall entry.
func (t *Table) sysFork(c *kernel.Cpu, p *kernel.Proc) int64 {
	// The child shares p's cwd inode and drops it through releaseCwd on
	// exit, so it takes its own reference here.
	if cwd, ok := p.Cwd().(*fs.Inode); ok && cwd != nil {
		t.FS.Inodes.Idup(c, cwd)
	}
	child, err := kernel.Fork(c, p, func(cc *kernel.Cpu, ch *kernel.Proc) {
		ch.Exit(cc, 0, t.releaseCwd(cc, ch), t.InitProc)
	})
	if err != errno.Ok {
		t.releaseCwd(c, p)()
		return err.Ret()
	}
	return int64(child.Pid())
}

// sysExit implements spec §6 exit(code): reparent children to init,
// release the caller's cwd inside a transaction, and never return.
func (t *Table) sysExit(c *kernel.Cpu, p *kernel.Proc) int64 {
	code := int(argInt(p, 0))
	p.Exit(c, code, t.releaseCwd(c, p), t.InitProc)
	panic("unreachable: exit returned")
}

// sysWait implements spec §6 wait(): reap one zombie child of the
// caller and return its pid. The child's exit code is not copied out
// to a user address (xv6's wait(int *status) convention); it is
// dropped, and xv6go's fixed program registry never inspects it.
func (t *Table) sysWait(c *kernel.Cpu, p *kernel.Proc) int64 {
	pid, _, err := p.Wait(c)
	if err != errno.Ok {
		return err.Ret()
	}
	return int64(pid)
}

// sysKill implements spec §6 kill(pid).
func (t *Table) sysKill(c *kernel.Cpu, p *kernel.Proc) int64 {
	pid := int(argInt(p, 0))
	return t.Procs.Kill(c, pid).Ret()
}

// sysGetpid implements spec §6 getpid().
func (t *Table) sysGetpid(c *kernel.Cpu, p *kernel.Proc) int64 {
	return int64(p.Pid())
}

// sysSbrk implements spec §6 sbrk(n).
func (t *Table) sysSbrk(c *kernel.Cpu, p *kernel.Proc) int64 {
	n := argInt(p, 0)
	old, ok := p.Sbrk(n)
	if !ok {
		return errno.NoMemory.Ret()
	}
	return int64(old)
}

// sysSleep implements spec §6 sleep(n): block for n clock ticks.
func (t *Table) sysSleep(c *kernel.Cpu, p *kernel.Proc) int64 {
	n := argInt(p, 0)
	if n < 0 {
		n = 0
	}
	t.Clock.SleepTicks(c, p, uint64(n))
	if p.Killed() {
		return errno.Killed.Ret()
	}
	return 0
}

// sysUptime implements spec §6 uptime().
func (t *Table) sysUptime(c *kernel.Cpu, p *kernel.Proc) int64 {
	return int64(t.Clock.Uptime(c))
}

// sysExec implements spec §6 exec(): look up path in the fixed
// program registry (SPEC_FULL §4 supplement for the ELF loader this
// kernel has no use for), replace the address-space description, and
// run the program's body to completion before exiting — the Go
// rendering of "exec never returns on success, only on failure".
func (t *Table) sysExec(c *kernel.Cpu, p *kernel.Proc) int64 {
	path, ferr := fetchStr(p, uint64(argInt(p, 0)))
	if ferr != errno.Ok {
		return ferr.Ret()
	}
	prog := t.Progs.Lookup(path)
	if prog == nil {
		return errno.NoSuchFile.Ret()
	}
	p.Exec(prog)
	prog.Main(c, p)
	p.Exit(c, 0, t.releaseCwd(c, p), t.InitProc)
	panic("unreachable: exec's implicit exit returned")
}
