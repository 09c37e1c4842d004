// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import "github.com/xv6go/kernel/internal/klog"

// sched is spec §4.2's single entry point into the scheduler: it must
// be called with exactly one lock held, the caller's own slot lock,
// interrupts disabled, and the process state already moved off
// Running.
//
// There is no register file to save here, so the "context switch" is
// a channel rendezvous between this goroutine (the process's
// persistent kernel thread) and the hart's scheduler loop
// (Scheduler.Run, in this file): p.switchCh wakes the scheduler to say "I'm yielding",
// and <-p.resumeCh blocks this goroutine until the scheduler
// dispatches it again. Critically, intena is a local variable: it
// lives on this goroutine's own Go stack across the block exactly
// the way xv6's intena survives on the kernel thread's own stack
// across swtch — the mechanism spec §9 calls out as the reason the
// flag must travel with the thread, not the CPU.
func (p *Proc) sched(c *Cpu) {
	if !p.lock.Holding(c) {
		klog.Panic("sched: proc %d lock not held", p.pid)
	}
	if c.noff != 1 {
		klog.Panic("sched: cpu %d holds %d locks, want 1", c.ID, c.noff)
	}
	if p.state == Running {
		klog.Panic("sched: proc %d still running", p.pid)
	}
	if c.IntrEnabled() {
		klog.Panic("sched: interrupts enabled on cpu %d", c.ID)
	}

	intena := c.intrEnaSav
	p.switchCh <- struct{}{}
	<-p.resumeCh
	c.intrEnaSav = intena
}

// Yield implements spec §4.2 yield(): mark Runnable and hand control
// back to the scheduler.
func Yield(c *Cpu) {
	p := c.Proc
	if p == nil {
		klog.Panic("yield: no current process on cpu %d", c.ID)
	}
	p.lock.Acquire(c)
	p.state = Runnable
	p.sched(c)
	p.lock.Release(c)
}

// Scheduler is the per-CPU pick-and-dispatch loop (spec §4.2). One
// instance runs on a dedicated goroutine per hart, playing the role
// of the dedicated per-CPU scheduler stack: it owns no process of its
// own and only ever touches a slot while holding that slot's lock.
type Scheduler struct {
	cpu   *Cpu
	table *ProcTable
	idle  func() // called when a full scan finds nothing Runnable
}

// NewScheduler returns the scheduler loop for cpu.
func NewScheduler(cpu *Cpu, table *ProcTable, idle func()) *Scheduler {
	return &Scheduler{cpu: cpu, table: table, idle: idle}
}

// Run is the scheduler loop body (spec §4.2): enable interrupts, scan
// from slot zero every round (no fairness guarantee, by design), and
// context-switch into the first Runnable slot found. Run blocks until
// stop is closed.
func (s *Scheduler) Run(stop <-chan struct{}) {
	s.cpu.IntrOn()
	for {
		select {
		case <-stop:
			return
		default:
		}

		found := false
		for _, p := range s.table.slots {
			p.lock.Acquire(s.cpu)
			if p.state == Runnable {
				found = true
				p.state = Running
				s.cpu.Proc = p
				s.dispatch(p)
				s.cpu.Proc = nil
			}
			p.lock.Release(s.cpu)
		}
		if !found {
			if s.idle != nil {
				s.idle()
			}
		}
	}
}

// dispatch performs the context switch into p and blocks until p
// yields, sleeps, or exits. Caller must hold p.lock.
func (s *Scheduler) dispatch(p *Proc) {
	if !p.started {
		p.started = true
		go func() {
			if p.runFn != nil {
				p.runFn(s.cpu)
			}
		}()
	} else {
		p.resumeCh <- struct{}{}
	}
	<-p.switchCh
}
