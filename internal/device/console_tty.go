//go:build linux
// +build linux

// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"os"

	"golang.org/x/sys/unix"
)

// RawTerminal puts an open terminal fd into raw mode (no host-side
// line editing or echo) so Console.DeliverInput's own backspace/
// kill-line handling is the only line discipline in effect, and
// returns a restore func that puts the original mode back. Using a
// real terminal is optional (cmd/xv6god's default stdin relay works
// on any fd); callers that want line editing to happen inside the
// simulated console rather than the host tty driver call this first.
func RawTerminal(fd int) (restore func() error, err error) {
	saved, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}

	raw := *saved
	raw.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	raw.Oflag &^= unix.OPOST
	raw.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	raw.Cflag &^= unix.CSIZE | unix.PARENB
	raw.Cflag |= unix.CS8
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return nil, err
	}
	return func() error {
		return unix.IoctlSetTermios(fd, unix.TCSETS, saved)
	}, nil
}

// IsTerminal reports whether f looks like a real terminal, the way
// cmd/xv6god decides whether to call RawTerminal on stdin at all
// (piped/redirected input has no termios to put in raw mode).
func IsTerminal(f *os.File) bool {
	_, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	return err == nil
}
