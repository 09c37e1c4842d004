// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import "github.com/xv6go/kernel/internal/klog"

// Chan is an opaque sleep-channel token (spec §9 "Opaque wait
// channels"): any comparable value identifying one waitable
// condition. xv6 uses the address of the data structure being waited
// on; since Go forbids taking a portable numeric address of an
// arbitrary value, a pointer to that same structure serves the
// identical role — it is only ever compared for equality, never
// dereferenced by the sleep queue.
type Chan = any

// Sleep is the atomic sleep/wakeup primitive (spec §4.3). The caller
// must hold lk, the condition lock protecting whatever predicate it
// is waiting on. Sleep acquires p's slot lock, releases lk, records
// chan and parks p, switches to the scheduler, and on resume
// reacquires lk after dropping its own slot lock — so a concurrent
// Wakeup(chan) can never run between "decide to sleep" and "actually
// asleep".
func Sleep(c *Cpu, p *Proc, chanTok Chan, lk *SpinLock) {
	if p != c.Proc {
		klog.Panic("sleep: proc %d is not running on cpu %d", p.pid, c.ID)
	}

	// Must acquire p.lock before releasing lk, so that no wakeup can
	// be issued between the release of lk and the state change below
	// (spec §4.3 correctness argument, relationship 1).
	if lk != p.lock {
		p.lock.Acquire(c)
		lk.Release(c)
	}

	p.chan_ = chanTok
	p.state = Sleeping
	p.sched(c)

	p.chan_ = nil
	if lk != p.lock {
		p.lock.Release(c)
		lk.Acquire(c)
	}
}

// Wakeup scans every process slot and transitions any Sleeping slot
// waiting on chanTok to Runnable (spec §4.3). Must be called with no
// process-slot lock held by the caller, and with the caller's
// condition lock (lk from the matching Sleep calls) held, so Wakeup
// and Sleep serialize on the slot lock without racing on chan_.
func Wakeup(c *Cpu, chanTok Chan) {
	for _, p := range c.procs.slots {
		if p == c.Proc {
			continue
		}
		p.lock.Acquire(c)
		if p.state == Sleeping && p.chan_ == chanTok {
			p.state = Runnable
		}
		p.lock.Release(c)
	}
}
