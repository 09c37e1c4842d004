// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"sync/atomic"

	"github.com/xv6go/kernel/internal/klog"
)

// SpinLock is non-blocking mutual exclusion with interrupts disabled
// on the holder while held (spec §4.1). It is not reentrant: a second
// acquire by the same Cpu is a fatal bug, asserted rather than
// deadlocked so the bug surfaces immediately instead of wedging a
// hart.
type SpinLock struct {
	name   string
	locked int32
	cpu    atomic.Pointer[Cpu] // holder, for Holding and the re-entrance check
}

// NewSpinLock returns an unheld lock. name is used only in
// diagnostics, matching the teacher's convention of carrying a
// human-readable tag alongside each lock (fuse/lockingfs.go wraps
// whole filesystems the same way: a name plus the thing it guards).
func NewSpinLock(name string) *SpinLock {
	return &SpinLock{name: name}
}

// Acquire disables interrupts on c (via PushOff), then busy-waits
// for the 0->1 transition of locked.
func (l *SpinLock) Acquire(c *Cpu) {
	PushOff(c)
	if l.Holding(c) {
		klog.Panic("spinlock %q: recursive acquire on cpu %d", l.name, c.ID)
	}
	for !atomic.CompareAndSwapInt32(&l.locked, 0, 1) {
		// busy-wait; a real hart would spin on the cache line, Go
		// just spins on the CAS.
	}
	l.cpu.Store(c)
}

// Release clears locked and re-enables interrupts on c (via PopOff)
// if this was the outermost critical section.
func (l *SpinLock) Release(c *Cpu) {
	if !l.Holding(c) {
		klog.Panic("spinlock %q: release by non-holder cpu %d", l.name, c.ID)
	}
	l.cpu.Store(nil)
	atomic.StoreInt32(&l.locked, 0)
	PopOff(c)
}

// Holding reports whether c currently holds l.
func (l *SpinLock) Holding(c *Cpu) bool {
	return atomic.LoadInt32(&l.locked) == 1 && l.cpu.Load() == c
}

// PushOff and PopOff are the nesting counter spec §4.1 pairs with
// acquire/release; they are free functions on a Cpu, not methods on
// any one lock, because in xv6 they operate on mycpu() regardless of
// which lock is being taken. Holding any spin lock disables
// scheduling on that Cpu (spec §4.2): yielding or sleeping while
// holding any spin lock other than the process's own slot lock is a
// separate fatal bug, checked in Proc.sched (sched.go), which requires
// noff == 1.

// PushOff increments c's nesting depth, disabling interrupts on the
// 0->1 transition and remembering whether they were enabled before
// it.
func PushOff(c *Cpu) {
	enabled := c.IntrEnabled()
	c.IntrOff()
	if c.noff == 0 {
		c.intrEnaSav = enabled
	}
	c.noff++
}

// PopOff decrements c's nesting depth, restoring interrupts on the
// 1->0 transition iff they were enabled before the outermost
// PushOff.
func PopOff(c *Cpu) {
	if c.IntrEnabled() {
		klog.Panic("PopOff: interrupts enabled inside critical section on cpu %d", c.ID)
	}
	if c.noff < 1 {
		klog.Panic("PopOff: unbalanced pop_off on cpu %d", c.ID)
	}
	c.noff--
	if c.noff == 0 && c.intrEnaSav {
		c.IntrOn()
	}
}
