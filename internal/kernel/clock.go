// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

// Clock is the global tick counter spec §5 calls out as "guarded by
// its own lock": incremented once per timer interrupt, read by
// uptime(), and used as a sleep channel by sys_sleep(n).
type Clock struct {
	lock  *SpinLock
	ticks uint64
}

// NewClock returns a Clock starting at zero.
func NewClock() *Clock {
	return &Clock{lock: NewSpinLock("clock")}
}

// Tick advances the counter and wakes anything sleeping on it (every
// waiter re-checks its own deadline; spurious wakeups are fine, spec
// §4.3).
func (cl *Clock) Tick(c *Cpu) {
	cl.lock.Acquire(c)
	cl.ticks++
	Wakeup(c, cl)
	cl.lock.Release(c)
}

// Uptime returns the current tick count (spec §6 uptime()).
func (cl *Clock) Uptime(c *Cpu) uint64 {
	cl.lock.Acquire(c)
	defer cl.lock.Release(c)
	return cl.ticks
}

// SleepTicks blocks caller until at least n ticks have elapsed or it
// is killed (spec §6 sleep(n)).
func (cl *Clock) SleepTicks(c *Cpu, caller *Proc, n uint64) {
	cl.lock.Acquire(c)
	target := cl.ticks + n
	for cl.ticks < target {
		if caller.Killed() {
			break
		}
		Sleep(c, caller, cl, cl.lock)
	}
	cl.lock.Release(c)
}
