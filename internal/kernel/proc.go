// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"sync/atomic"

	"github.com/xv6go/kernel/internal/errno"
	"github.com/xv6go/kernel/internal/hal"
	"github.com/xv6go/kernel/internal/klog"
)

// State is a process slot's lifecycle state (spec §3, §4.5).
type State int

const (
	Unused State = iota
	Used
	Sleeping
	Runnable
	Running
	Zombie
)

func (s State) String() string {
	switch s {
	case Unused:
		return "unused"
	case Used:
		return "used"
	case Sleeping:
		return "sleeping"
	case Runnable:
		return "runnable"
	case Running:
		return "running"
	case Zombie:
		return "zombie"
	default:
		return "invalid"
	}
}

// NOFILE is the fixed capacity of a process's open-file table.
const NOFILE = 16

// FileHandle is the generic shape of an open-file object (spec §3
// "Open-file object"): every concrete variant — pipe, inode file,
// device — must support being duplicated and released. Defined here
// rather than in internal/fs so Proc can reference open files without
// internal/fs importing internal/kernel (fs already depends on
// kernel for SpinLock/SleepLock/Sleep/Wakeup; the dependency cannot
// run the other way without a cycle). *fs.File satisfies this
// structurally — no import needed on the fs side for that purpose.
type FileHandle interface {
	Dup() FileHandle
	Close(c *Cpu, caller *Proc)
}

// TrapFrame holds the saved user program counter and the integer
// registers the syscall ABI passes through. xv6go has no real
// trampoline, and the struct has no fields for what one would consume
// (kernel page-table root, kernel stack top, kernel-trap entry
// address, hart id). The dispatcher reads A7 and writes the return
// value to A0, syscall handlers read A0-A5, and nothing reads Epc.
type TrapFrame struct {
	Epc uint64 // saved user program counter

	// Syscall number and up to six arguments/return value, the
	// integer registers spec §6 says the ABI passes through.
	A0, A1, A2, A3, A4, A5, A7 int64
}

// Proc is one process-table slot (spec §3 "Process slot").
type Proc struct {
	lock *SpinLock // guards every field below and every state transition

	pid      int
	name     string
	parent   *Proc
	state    State
	chan_    Chan // wait channel; non-nil only while Sleeping
	killed   int32 // atomic: set by Kill, read by the trap dispatcher
	exitCode int

	space *hal.AddressSpace
	tf    *TrapFrame

	cwd   any // *fs.Inode, opaque here to avoid an import cycle
	ofile [NOFILE]FileHandle

	// Scheduling rendezvous (see sched.go): resumeCh wakes a parked
	// process goroutine, switchCh signals the scheduler that the
	// process has yielded control back.
	resumeCh chan struct{}
	switchCh chan struct{}
	started  bool
	runFn    func(c *Cpu) // the process's thread body; set by fork/userinit

	table *ProcTable
}

func (p *Proc) Pid() int       { return p.pid }
func (p *Proc) Name() string   { return p.name }
func (p *Proc) State() State   { return p.state }
func (p *Proc) Lock() *SpinLock { return p.lock }
func (p *Proc) Cwd() any       { return p.cwd }
func (p *Proc) SetCwd(ip any)  { p.cwd = ip }
func (p *Proc) Space() *hal.AddressSpace { return p.space }
func (p *Proc) TrapFrame() *TrapFrame    { return p.tf }
func (p *Proc) Killed() bool  { return atomic.LoadInt32(&p.killed) != 0 }
func (p *Proc) ExitCode() int { return p.exitCode }

// Ofile returns the open file at fd, or nil if fd is out of range or
// unopened.
func (p *Proc) Ofile(fd int) FileHandle {
	if fd < 0 || fd >= NOFILE {
		return nil
	}
	return p.ofile[fd]
}

// AllocFd installs f in the first free slot and returns its fd, or
// -1 if the table is full (errno.BadFileDescriptor at the syscall
// layer).
func (p *Proc) AllocFd(f FileHandle) int {
	for i := 0; i < NOFILE; i++ {
		if p.ofile[i] == nil {
			p.ofile[i] = f
			return i
		}
	}
	return -1
}

// SetOfile installs f directly at fd (used by internal/syscalls' close
// and by pipe's error cleanup).
func (p *Proc) SetOfile(fd int, f FileHandle) { p.ofile[fd] = f }

// ProcTable is the fixed array of process slots plus the locks that
// serialize cross-slot operations (spec §4.5, §5 "Ordering
// guarantees").
type ProcTable struct {
	slots    []*Proc
	waitLock *SpinLock // wait_lock: acquired before any slot->lock
	nextPid  int64
	log      klog.Logger
}

// NewProcTable allocates n Unused slots.
func NewProcTable(n int, log klog.Logger) *ProcTable {
	t := &ProcTable{
		slots:    make([]*Proc, n),
		waitLock: NewSpinLock("wait_lock"),
		nextPid:  1,
		log:      log,
	}
	for i := range t.slots {
		t.slots[i] = &Proc{
			lock:     NewSpinLock("proc"),
			state:    Unused,
			resumeCh: make(chan struct{}),
			switchCh: make(chan struct{}),
			table:    t,
		}
	}
	return t
}

// Slots exposes the table for the scheduler's linear scan.
func (t *ProcTable) Slots() []*Proc { return t.slots }

// logf reports a process-lifecycle transition if a Logger was
// supplied to NewProcTable; tests and other callers that pass nil get
// silent behavior, matching fs.Mount's one real log.Printf use.
func (t *ProcTable) logf(format string, args ...interface{}) {
	if t.log != nil {
		t.log.Printf(format, args...)
	}
}

func (t *ProcTable) allocPid() int {
	return int(atomic.AddInt64(&t.nextPid, 1) - 1)
}

// Alloc finds an Unused slot, assigns it a pid, and returns it locked
// (caller must Unlock). Returns nil if the table is full.
func (t *ProcTable) Alloc(c *Cpu) *Proc {
	for _, p := range t.slots {
		p.lock.Acquire(c)
		if p.state == Unused {
			p.pid = t.allocPid()
			p.state = Used
			p.space = &hal.AddressSpace{}
			p.tf = &TrapFrame{}
			p.exitCode = 0
			atomic.StoreInt32(&p.killed, 0)
			t.logf("kernel: alloc pid %d", p.pid)
			return p
		}
		p.lock.Release(c)
	}
	return nil
}

// free resets a slot to Unused. Caller must hold p.lock.
func (p *Proc) free() {
	p.pid = 0
	p.name = ""
	p.parent = nil
	p.chan_ = nil
	p.space = nil
	p.tf = nil
	p.cwd = nil
	p.ofile = [NOFILE]FileHandle{}
	p.started = false
	p.runFn = nil
	p.state = Unused
	atomic.StoreInt32(&p.killed, 0)
	p.exitCode = 0
}

// Init creates the init process from runFn, the thread body that
// will execute as pid 1. Every other process is reparented to it on
// exit (spec §4.5).
func (t *ProcTable) Init(c *Cpu, name string, runFn func(c *Cpu)) *Proc {
	p := t.Alloc(c)
	if p == nil {
		klog.Panic("proc table full during Init")
	}
	p.name = name
	p.runFn = func(cpu *Cpu) { initRet(cpu, p, runFn) }
	p.state = Runnable
	p.lock.Release(c)
	return p
}

// initRet mirrors forkRet for the init process: the scheduler's Run
// loop dispatches a never-before-started slot while still holding
// p.lock (it releases only after the dispatch rendezvous completes),
// so runFn must drop that lock itself before doing anything that
// re-acquires it (Yield, Exit, Sleep all do). Fork's children get this
// via forkRet; init needs the same treatment since it is also a
// never-before-started slot the scheduler dispatches the same way.
func initRet(c *Cpu, p *Proc, runFn func(c *Cpu)) {
	p.lock.Release(c)
	if runFn != nil {
		runFn(c)
	}
}

// Fork duplicates parent's address space, trapframe, and open files
// into a new Runnable slot, per spec §4.5. The child's saved context
// is arranged (via forkRet) so its first dispatch looks like a
// returning trap, never an entry the kernel actually took. The child
// gets parent's cwd value without a new reference being taken here;
// internal/syscalls' sysFork takes that reference.
func Fork(c *Cpu, parent *Proc, body func(c *Cpu, child *Proc)) (*Proc, errno.Errno) {
	child := parent.table.Alloc(c)
	if child == nil {
		return nil, errno.NoMemory
	}
	child.name = parent.name
	child.space = parent.space.Clone()
	tf := *parent.tf
	tf.A0 = 0 // child's fork() returns 0
	child.tf = &tf
	child.parent = parent
	for i, f := range parent.ofile {
		if f != nil {
			child.ofile[i] = f.Dup()
		}
	}
	child.cwd = parent.cwd
	child.runFn = func(cpu *Cpu) { forkRet(cpu, child, body) }
	child.state = Runnable
	child.lock.Release(c)
	return child, errno.Ok
}

// forkRet is the bootstrap xv6 calls "the first thing a newly minted
// thread runs": it releases the slot lock the scheduler is still
// holding across the first dispatch (see Scheduler.Run), then falls
// into body as if the child had just returned from the trap it never
// took. body typically drives the child's fixed program (exec.go).
func forkRet(c *Cpu, child *Proc, body func(c *Cpu, child *Proc)) {
	child.lock.Release(c)
	if body != nil {
		body(c, child)
	}
}

// Exit implements spec §4.5 exit(code): close files, drop cwd inside
// a caller-supplied transaction hook (so internal/fs need not be
// imported here), reparent children to init, wake the parent, become
// a Zombie, and never return.
func (p *Proc) Exit(c *Cpu, code int, releaseCwd func(), reparentTo *Proc) {
	for i, f := range p.ofile {
		if f != nil {
			f.Close(c, p)
			p.ofile[i] = nil
		}
	}
	if releaseCwd != nil {
		releaseCwd()
	}
	p.cwd = nil

	t := p.table
	t.waitLock.Acquire(c)
	// Reparent children to init (spec §4.5).
	if reparentTo != nil {
		for _, ch := range t.slots {
			ch.lock.Acquire(c)
			if ch.parent == p {
				ch.parent = reparentTo
				if ch.state == Zombie {
					Wakeup(c, reparentTo)
				}
			}
			ch.lock.Release(c)
		}
	}
	if p.parent != nil {
		Wakeup(c, p.parent)
	}

	p.lock.Acquire(c)
	t.waitLock.Release(c)

	p.exitCode = code
	p.state = Zombie
	t.logf("kernel: pid %d exited with code %d", p.pid, code)
	p.sched(c)
	klog.Panic("exit: returned from zombie process pid %d", p.pid)
}

// Wait implements spec §4.5 wait(): scan for a Zombie child of self
// under wait_lock, reap it, or sleep on self with wait_lock as the
// condition lock if children exist but none are Zombie yet.
func (self *Proc) Wait(c *Cpu) (pid int, code int, err errno.Errno) {
	t := self.table
	t.waitLock.Acquire(c)
	for {
		haveChildren := false
		for _, ch := range t.slots {
			ch.lock.Acquire(c)
			if ch.parent == self {
				haveChildren = true
				if ch.state == Zombie {
					pid = ch.pid
					code = ch.exitCode
					ch.free()
					ch.lock.Release(c)
					t.waitLock.Release(c)
					return pid, code, errno.Ok
				}
			}
			ch.lock.Release(c)
		}
		if !haveChildren || self.Killed() {
			t.waitLock.Release(c)
			return -1, 0, errno.NoChildren
		}
		Sleep(c, self, self, t.waitLock)
	}
}

// Kill implements spec §4.5 kill(pid): set the kill flag, and if the
// target is Sleeping, mark it Runnable so it observes the flag at its
// next check.
func (t *ProcTable) Kill(c *Cpu, pid int) errno.Errno {
	for _, p := range t.slots {
		p.lock.Acquire(c)
		if p.pid == pid && p.state != Unused {
			atomic.StoreInt32(&p.killed, 1)
			if p.state == Sleeping {
				p.state = Runnable
			}
			p.lock.Release(c)
			t.logf("kernel: pid %d killed", pid)
			return errno.Ok
		}
		p.lock.Release(c)
	}
	return errno.NoSuchFile
}
