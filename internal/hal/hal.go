// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hal is the boundary to everything spec §1 calls "out of
// scope": the bootloader and mode-switch stub, the page-table walker,
// user/kernel copy helpers, the interrupt controller, and the timer.
// xv6go has no real RISC-V hart to run on, so Machine is an in-process
// simulation of that hardware rather than a driver for it; every
// caller in internal/kernel and internal/fs only ever sees this
// interface, exactly as the real kernel only ever sees the privileged
// instructions named in spec §6.
package hal

import "time"

// AddressSpace stands in for a page-table root plus the user pages
// mapped under it. xv6go never walks real page tables; it tracks a
// size in bytes and a copy-on-fork byte slice, which is enough to
// give fork/exec/sbrk/copyin/copyout real, testable semantics without
// paging.
type AddressSpace struct {
	Size  uint64
	Pages []byte
}

// NewAddressSpace returns a zeroed address space of size bytes.
func NewAddressSpace(size uint64) *AddressSpace {
	return &AddressSpace{Size: size, Pages: make([]byte, size)}
}

// Clone duplicates the address space the way fork duplicates a page
// table and every mapped page (spec §4.5): a private copy, no
// copy-on-write (explicit Non-goal).
func (a *AddressSpace) Clone() *AddressSpace {
	cp := make([]byte, len(a.Pages))
	copy(cp, a.Pages)
	return &AddressSpace{Size: a.Size, Pages: cp}
}

// Sbrk grows (n >= 0) or shrinks (n < 0) the address space by n
// bytes, returning the size before the change. It fails (ok=false)
// on an attempt to shrink below zero.
func (a *AddressSpace) Sbrk(n int64) (old uint64, ok bool) {
	old = a.Size
	if n >= 0 {
		a.Pages = append(a.Pages, make([]byte, n)...)
		a.Size += uint64(n)
		return old, true
	}
	shrink := uint64(-n)
	if shrink > a.Size {
		return old, false
	}
	a.Size -= shrink
	a.Pages = a.Pages[:a.Size]
	return old, true
}

// CopyOut validates and copies n bytes from src into the address
// space at virtual offset dst, standing in for the page-table walker
// plus copyout(). Returns false if the range is out of bounds (a
// Fault).
func (a *AddressSpace) CopyOut(dst uint64, src []byte) bool {
	if dst > a.Size || uint64(len(src)) > a.Size-dst {
		return false
	}
	copy(a.Pages[dst:], src)
	return true
}

// CopyIn is the read-side counterpart of CopyOut, standing in for
// copyin().
func (a *AddressSpace) CopyIn(dst []byte, src uint64) bool {
	if src > a.Size || uint64(len(dst)) > a.Size-src {
		return false
	}
	copy(dst, a.Pages[src:])
	return true
}

// Machine is the privileged-hardware contract of spec §6: install
// trap vectors, the current hart id, and per-hart timer arming. A
// Machine is shared by every simulated hart; HartID is supplied by
// the caller rather than read from a register, because Go has no
// per-goroutine register file — each hart's scheduler goroutine and
// every kernel-thread goroutine it dispatches already carries its own
// *kernel.Cpu, so the hart identity is explicit data, not ambient
// state.
type Machine interface {
	// ArmTimer schedules the next timer interrupt for hart id after d.
	ArmTimer(id int, d time.Duration)

	// Ticks returns a channel that receives the hart's id on every
	// timer interrupt. Delivery is unconditional: no interrupt-enable
	// state is consulted here, and cmd/xv6god's driveClock, the only
	// consumer, does not consult it either; it passes hart 0's ticks
	// to kernel.Dispatcher.Tick on a Cpu that never runs a process.
	Ticks() <-chan int

	// NumHarts reports how many hardware threads this machine
	// simulates.
	NumHarts() int
}

// NewMachine returns the in-process simulated Machine used by
// cmd/xv6god and by tests: a ticker per hart. Delivery is not gated on
// interrupt state — see Ticks.
func NewMachine(nHarts int, period time.Duration) *SimMachine {
	return &SimMachine{
		period: period,
		nHarts: nHarts,
		ticks:  make(chan int, nHarts),
		stop:   make(chan struct{}),
	}
}

// SimMachine is the only Machine implementation: a goroutine per hart
// that fires on period, unconditionally. hal cannot import kernel, so
// it never sees a kernel.Cpu's IntrEnabled(); see Ticks for how the
// ticks are consumed.
type SimMachine struct {
	period time.Duration
	nHarts int
	ticks  chan int
	stop   chan struct{}
}

func (m *SimMachine) NumHarts() int     { return m.nHarts }
func (m *SimMachine) Ticks() <-chan int { return m.ticks }
func (m *SimMachine) Stop()             { close(m.stop) }

// ArmTimer is a no-op for the periodic simulated timer: every hart
// ticks on the same period once Run starts. Kept as a method so a
// future variable-deadline Machine can replace SimMachine without
// touching callers.
func (m *SimMachine) ArmTimer(id int, d time.Duration) {}

// Run starts the per-hart ticker goroutines. Call once at boot.
func (m *SimMachine) Run() {
	for i := 0; i < m.nHarts; i++ {
		go m.tickLoop(i)
	}
}

func (m *SimMachine) tickLoop(id int) {
	t := time.NewTicker(m.period)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			select {
			case m.ticks <- id:
			case <-m.stop:
				return
			}
		}
	}
}
