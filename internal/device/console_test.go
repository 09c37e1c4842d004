// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"testing"

	"github.com/xv6go/kernel/internal/kernel"
)

// newTestCpuProc mirrors internal/fs's test helper of the same name
// (DESIGN.md OQ-6): Console.Read/Write go through kernel.Sleep, which
// requires Cpu.Proc to identify the calling process even outside a
// scheduler's dispatch loop.
func newTestCpuProc(t *testing.T) (*kernel.Cpu, *kernel.Proc) {
	t.Helper()
	procs := kernel.NewProcTable(4, nil)
	c := kernel.NewCpu(0, procs)
	p := procs.Alloc(c)
	if p == nil {
		t.Fatal("process table exhausted")
	}
	c.Proc = p
	p.Lock().Release(c)
	return c, p
}

func deliver(c *Console, cp *kernel.Cpu, s string) {
	for i := 0; i < len(s); i++ {
		c.DeliverInput(cp, s[i])
	}
}

func TestConsoleReadReturnsOneLine(t *testing.T) {
	cp, p := newTestCpuProc(t)
	c := NewConsole()

	deliver(c, cp, "hi\n")
	buf := make([]byte, 16)
	n := c.Read(cp, p, buf)
	if string(buf[:n]) != "hi\n" {
		t.Fatalf("Read = %q, want %q", buf[:n], "hi\n")
	}
}

func TestConsoleBackspaceEditsPendingLine(t *testing.T) {
	cp, p := newTestCpuProc(t)
	c := NewConsole()

	deliver(c, cp, "hi")
	c.DeliverInput(cp, backspace)
	c.DeliverInput(cp, backspace)
	deliver(c, cp, "bye\n")

	buf := make([]byte, 16)
	n := c.Read(cp, p, buf)
	if string(buf[:n]) != "bye\n" {
		t.Fatalf("Read = %q, want %q (both backspaces should erase \"hi\")", buf[:n], "bye\n")
	}
}

func TestConsoleCtrlUKillsCurrentLineOnly(t *testing.T) {
	cp, p := newTestCpuProc(t)
	c := NewConsole()

	deliver(c, cp, "first\n")
	deliver(c, cp, "abc")
	c.DeliverInput(cp, ctrlU)
	deliver(c, cp, "x\n")

	buf := make([]byte, 16)
	n := c.Read(cp, p, buf)
	if string(buf[:n]) != "first\n" {
		t.Fatalf("first Read = %q, want %q", buf[:n], "first\n")
	}
	n = c.Read(cp, p, buf)
	if string(buf[:n]) != "x\n" {
		t.Fatalf("second Read = %q, want %q (ctrl-U must stop at the prior newline)", buf[:n], "x\n")
	}
}

func TestConsoleLoneCtrlDSignalsEOF(t *testing.T) {
	cp, p := newTestCpuProc(t)
	c := NewConsole()

	c.DeliverInput(cp, ctrlD)
	buf := make([]byte, 16)
	n := c.Read(cp, p, buf)
	if n != 0 {
		t.Fatalf("Read after lone ctrl-D = %d bytes, want 0 (EOF)", n)
	}
}

func TestConsoleWriteDrainsInOrder(t *testing.T) {
	cp, p := newTestCpuProc(t)
	c := NewConsole()

	var got []byte
	n := c.Write(cp, p, []byte("out"), func(b byte) { got = append(got, b) })
	if n != 3 || string(got) != "out" {
		t.Fatalf("Write drained %q (n=%d), want \"out\" (n=3)", got, n)
	}
}
