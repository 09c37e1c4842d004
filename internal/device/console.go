// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import "github.com/xv6go/kernel/internal/kernel"

const (
	inputBufSize = 128
	backspace    = 0x08
	ctrlU        = 0x15 // kill line
	ctrlD        = 0x04 // end of file
)

// Console is the serial-line contract of spec §6: read blocks until
// a newline or EOF marker, write passes each byte through a bounded
// output ring to a drain sink (see Write), and an input handler
// appends received bytes with line editing. There is no real UART here;
// DeliverInput plays the role of the interrupt handler, called once
// per received byte by whatever feeds the console (a test, or
// console_tty.go's real-terminal reader).
type Console struct {
	lock *kernel.SpinLock // condition lock for both rings

	in     [inputBufSize]byte
	inR, inW, inE uint32 // read/write/edit cursors, mod inputBufSize

	out     [inputBufSize]byte
	outR, outW uint32
	outWriting bool
}

// NewConsole returns an empty console.
func NewConsole() *Console {
	return &Console{lock: kernel.NewSpinLock("console")}
}

// DeliverInput is the console's interrupt handler for one received
// byte (spec §6): it applies backspace/kill-line/EOF editing to the
// pending line and only exposes it to Read once a full line (newline
// or EOF) has been accumulated, at which point it wakes any blocked
// reader.
func (c *Console) DeliverInput(cp *kernel.Cpu, ch byte) {
	c.lock.Acquire(cp)
	defer c.lock.Release(cp)

	switch ch {
	case ctrlU:
		for c.inE != c.inW && c.in[(c.inE-1)%inputBufSize] != '\n' {
			c.inE--
		}
	case backspace:
		if c.inE != c.inW {
			c.inE--
		}
	default:
		if c.inE-c.inR >= inputBufSize {
			return
		}
		c.in[c.inE%inputBufSize] = ch
		c.inE++
		if ch == '\n' || ch == ctrlD || c.inE == c.inR+inputBufSize {
			c.inW = c.inE
			kernel.Wakeup(cp, &c.inR)
		}
	}
}

// Read blocks (via Sleep) until a full line is available, then
// copies up to len(dst) bytes of it out, stopping at the first
// newline. Returns the number of bytes read; 0 signals end-of-file
// (a lone ctrl-D).
func (c *Console) Read(cp *kernel.Cpu, caller *kernel.Proc, dst []byte) int {
	c.lock.Acquire(cp)
	defer c.lock.Release(cp)

	n := 0
	for n < len(dst) {
		for c.inR == c.inW {
			if caller.Killed() {
				return n
			}
			kernel.Sleep(cp, caller, &c.inR, c.lock)
		}
		ch := c.in[c.inR%inputBufSize]
		c.inR++
		if ch == ctrlD {
			if n > 0 {
				c.inR--
			}
			break
		}
		dst[n] = ch
		n++
		if ch == '\n' {
			break
		}
	}
	return n
}

// Write enqueues src into the bounded output ring and hands each byte
// to drain, the console's real output sink (stdout, a pty, …), right
// after enqueuing it. Each byte is consumed before the next is
// enqueued, so the ring never fills and the full-ring wait never
// blocks.
func (c *Console) Write(cp *kernel.Cpu, caller *kernel.Proc, src []byte, drain func(byte)) int {
	c.lock.Acquire(cp)
	defer c.lock.Release(cp)

	for i, b := range src {
		for c.outW-c.outR >= inputBufSize {
			if caller.Killed() {
				return i
			}
			kernel.Sleep(cp, caller, &c.outW, c.lock)
		}
		c.out[c.outW%inputBufSize] = b
		c.outW++
		drain(b)
		c.outR++
		kernel.Wakeup(cp, &c.outW)
	}
	return len(src)
}
