// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import "github.com/xv6go/kernel/internal/errno"

// SyscallFunc is one entry in the syscall table (spec §4.6): it reads
// its arguments from p's trapframe and returns the ABI-level result
// (negative for error). The table itself is built outside this
// package (internal/syscalls) and injected via Dispatcher, because
// most handlers need internal/fs, which cannot import internal/kernel
// without a cycle (kernel.FileHandle is the seam — see proc.go).
type SyscallFunc func(c *Cpu, p *Proc) int64

// Dispatcher is the split trap entry of spec §4.6: user traps handle
// syscalls and unrecognized-cause kills; kernel traps only ever
// happen here on a timer tick, since xv6go has no device interrupts
// of its own (block device and console completions are simulated as
// direct Wakeup calls, not traps).
type Dispatcher struct {
	table map[int64]SyscallFunc
	clock *Clock
}

// NewDispatcher returns a Dispatcher using table to resolve syscall
// numbers and clock to drive the per-tick global counter.
func NewDispatcher(table map[int64]SyscallFunc, clock *Clock) *Dispatcher {
	return &Dispatcher{table: table, clock: clock}
}

// UserTrap is the entry spec §4.6 describes for a synchronous
// exception from user mode. In xv6go, "trapping from user mode" is a
// process calling this method with its own trapframe already loaded
// with a syscall number and arguments (there is no real ecall
// instruction to catch). It: checks the kill flag, enables
// interrupts, dispatches by A7, then re-checks the kill flag and
// exits if set.
func (d *Dispatcher) UserTrap(c *Cpu, p *Proc, exit func(code int)) {
	if p.Killed() {
		exit(-1)
		return
	}

	c.IntrOn()
	fn, ok := d.table[p.tf.A7]
	if !ok {
		p.tf.A0 = errno.NoSuchFile.Ret() // unrecognized syscall number
	} else {
		p.tf.A0 = fn(c, p)
	}

	if p.Killed() {
		exit(-1)
	}
}

// Tick is called once per timer interrupt observed on c (spec §4.2,
// §4.6): "a timer tick in either user or kernel mode calls yield,
// except that a timer tick whose victim is the scheduler itself (no
// current process) must return without yielding". Whether the tick
// is logically a "user" or "kernel" trap makes no difference to
// xv6go, since both entry points reduce to the same yield-or-not
// decision once devintr has classified the cause as a timer; the
// teacher-derived distinction the spec draws (separate user/kernel
// entry points sharing a devintr routine) exists to handle real
// trap-frame save/restore, which xv6go's channel-based switch makes
// unnecessary.
func (d *Dispatcher) Tick(c *Cpu) {
	if c.ID == 0 && d.clock != nil {
		d.clock.Tick(c)
	}
	if c.Proc == nil {
		return
	}
	Yield(c)
}
