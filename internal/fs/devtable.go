// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"github.com/xv6go/kernel/internal/device"
	"github.com/xv6go/kernel/internal/errno"
	"github.com/xv6go/kernel/internal/kernel"
)

// ConsoleMajor is the conventional major number the console device is
// registered under (SPEC_FULL §4 supplement: spec.md's on-disk inode
// carries major/minor for device inodes but never specifies what
// consumes them).
const ConsoleMajor = 1

// Device is what a device-type inode's major number dispatches to:
// read/write in terms of the syscall ABI's errno return convention,
// rather than device.Console's lower-level int/drain shape.
type Device interface {
	Read(cp *kernel.Cpu, caller *kernel.Proc, dst []byte) (int, errno.Errno)
	Write(cp *kernel.Cpu, caller *kernel.Proc, src []byte) (int, errno.Errno)
}

// DevTable is the fixed major-number dispatch table (SPEC_FULL §4).
type DevTable struct {
	devices map[uint16]Device
}

// NewDevTable returns an empty dispatch table.
func NewDevTable() *DevTable {
	return &DevTable{devices: map[uint16]Device{}}
}

// Register installs dev at major.
func (t *DevTable) Register(major uint16, dev Device) {
	t.devices[major] = dev
}

// Lookup returns the device registered at major, or nil.
func (t *DevTable) Lookup(major uint16) Device {
	return t.devices[major]
}

// ConsoleDevice adapts device.Console to the Device interface: a
// closed-over drain sink stands in for "the real output sink" that
// device.Console.Write otherwise takes per call.
type ConsoleDevice struct {
	Console *device.Console
	Drain   func(byte)
}

func (d *ConsoleDevice) Read(cp *kernel.Cpu, caller *kernel.Proc, dst []byte) (int, errno.Errno) {
	n := d.Console.Read(cp, caller, dst)
	return n, errno.Ok
}

func (d *ConsoleDevice) Write(cp *kernel.Cpu, caller *kernel.Proc, src []byte) (int, errno.Errno) {
	drain := d.Drain
	if drain == nil {
		drain = func(byte) {}
	}
	n := d.Console.Write(cp, caller, src, drain)
	return n, errno.Ok
}
