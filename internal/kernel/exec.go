// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import "github.com/xv6go/kernel/internal/hal"

// Program is one entry of the fixed in-memory program registry that
// stands in for ELF loading (spec §6 exec; Non-goals exclude paging
// and copy-on-write, not a fixed binary set). Main is the program's
// body — the Go stand-in for "the user code this binary would run",
// invoked directly on the process's kernel-thread goroutine since
// xv6go never emulates real instructions.
type Program struct {
	Name      string
	InitSize  uint64
	Main      func(c *Cpu, p *Proc)
}

// Registry is a fixed table of Programs, looked up by name (spec's
// "path") from exec().
type Registry struct {
	progs map[string]*Program
}

// NewRegistry builds a Registry from progs.
func NewRegistry(progs ...*Program) *Registry {
	r := &Registry{progs: map[string]*Program{}}
	for _, pr := range progs {
		r.progs[pr.Name] = pr
	}
	return r
}

// Lookup returns the program named name, or nil.
func (r *Registry) Lookup(name string) *Program { return r.progs[name] }

// Exec replaces p's address space with a freshly sized one for prog
// (spec §6 exec semantics, as narrowed in SPEC_FULL §4): this is the
// kernel-side half only — resetting the address-space description
// and trapframe. The caller (internal/syscalls' exec handler) is
// responsible for then driving prog.Main, since only it has the
// registry and the running process's goroutine context.
func (p *Proc) Exec(prog *Program) {
	p.space = hal.NewAddressSpace(prog.InitSize)
	p.tf = &TrapFrame{}
}

// Sbrk implements spec §6 sbrk(n): grow or shrink the calling
// process's address space.
func (p *Proc) Sbrk(n int64) (old uint64, ok bool) {
	return p.space.Sbrk(n)
}
