// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

// Cpu is a per-hardware-thread record (spec §3 "CPU record"): the
// process it is currently running, if any, the nested-disable depth
// for push_off/pop_off, and whether interrupts were enabled before
// the outermost of those disables.
//
// Unlike xv6's mycpu(), which reads a per-hart register, xv6go has no
// per-goroutine register file to read. Every caller that needs "the
// current CPU" already has one in hand: a hart's scheduler loop owns
// one Cpu for its lifetime, and every kernel-thread goroutine it
// dispatches is handed that same *Cpu for the duration it runs on
// that hart. Passing it explicitly is the idiomatic Go rendering of
// mycpu(); it is never looked up ambiently.
type Cpu struct {
	ID    int
	Proc  *Proc
	procs *ProcTable // the one process table this hart schedules from

	noff       int  // push_off nesting depth
	intrOn     bool // this simulated hart's current interrupt-enable bit
	intrEnaSav bool // intrOn, as of the outermost push_off
}

// NewCpu returns a Cpu with interrupts initially enabled, the state
// every hart boots into after its scheduler loop starts.
func NewCpu(id int, procs *ProcTable) *Cpu {
	return &Cpu{ID: id, intrOn: true, procs: procs}
}

// IntrEnabled reports whether this simulated hart currently has
// interrupts enabled, the Go stand-in for reading sstatus.SIE.
func (c *Cpu) IntrEnabled() bool { return c.intrOn }

// IntrOn and IntrOff are the raw privileged operations spec §6 lists
// as hardware interfaces ("enable/disable interrupts"). They must
// only be called through push_off/pop_off or the trap dispatcher;
// calling them directly from anywhere else bypasses the nesting
// discipline spin locks rely on.
func (c *Cpu) IntrOn()  { c.intrOn = true }
func (c *Cpu) IntrOff() { c.intrOn = false }
