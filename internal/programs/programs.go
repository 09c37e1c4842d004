// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package programs is the fixed in-memory program table cmd/xv6god
// registers with kernel.Registry (SPEC_FULL §4 "exec semantics"
// supplement): the ELF loader spec.md's Non-goals exclude is replaced
// by a small set of named Go functions, each playing the role of a
// binary exec() can load.
package programs

import (
	"strings"

	"github.com/xv6go/kernel/internal/errno"
	"github.com/xv6go/kernel/internal/fs"
	"github.com/xv6go/kernel/internal/kernel"
)

// consolePath is where cmd/xv6god mknods the console device before
// starting init (major fs.ConsoleMajor).
const consolePath = "/console"

// All returns the fixed program set exec() can resolve by name.
func All(fsys *fs.FS) []*kernel.Program {
	return []*kernel.Program{
		{Name: "shell", InitSize: 4096, Main: func(c *kernel.Cpu, p *kernel.Proc) {
			runShell(c, p, fsys)
		}},
	}
}

// runShell is a minimal read-eval-echo loop over the console device:
// each non-empty line forks a child that writes the echoed line back
// and exits, while the parent waits for it to become a zombie before
// reading the next line (spec §8 scenario 3's fork/exit/wait pattern,
// exercised live rather than only from a test harness).
func runShell(c *kernel.Cpu, p *kernel.Proc, fsys *fs.FS) {
	cf, err := fsys.Open(c, p, consolePath, fs.ORdWr)
	if err != errno.Ok {
		return
	}
	fd := p.AllocFd(cf)
	if fd < 0 {
		cf.Close(c, p)
		return
	}

	greet := []byte("xv6go shell ready\n")
	cf.Write(c, p, greet)

	buf := make([]byte, 128)
	for {
		if p.Killed() {
			return
		}
		n, rerr := cf.Read(c, p, buf)
		if rerr != errno.Ok {
			return
		}
		if n == 0 {
			continue
		}
		line := strings.TrimRight(string(buf[:n]), "\r\n")
		if line == "" {
			continue
		}
		if line == "exit" {
			return
		}
		runEchoChild(c, p, fd, line)
	}
}

// runEchoChild forks a child that echoes line back to the shell's
// console fd, then waits for it.
func runEchoChild(c *kernel.Cpu, p *kernel.Proc, consoleFd int, line string) {
	child, ferr := kernel.Fork(c, p, func(cc *kernel.Cpu, ch *kernel.Proc) {
		cf, _ := ch.Ofile(consoleFd).(*fs.File)
		if cf != nil {
			cf.Write(cc, ch, []byte("$ "+line+"\n"))
		}
		ch.Exit(cc, 0, nil, nil)
	})
	if ferr != errno.Ok {
		return
	}
	for {
		pid, _, werr := p.Wait(c)
		if werr != errno.Ok || pid == child.Pid() {
			return
		}
	}
}
