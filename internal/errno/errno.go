// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errno defines the small set of error kinds that cross the
// syscall ABI as negative integers (spec §7), in the spirit of the
// teacher's fuse.Status: a small integer-backed type, comparable with
// ==, rather than an errors.New string.
package errno

// Errno is a syscall-facing error kind. The zero value is Ok.
type Errno int32

const (
	Ok Errno = iota
	NoSuchFile
	NotADirectory
	Exists
	NoSpace
	NoMemory
	BadFileDescriptor
	Fault
	NoChildren
	Killed
)

var names = map[Errno]string{
	Ok:                "ok",
	NoSuchFile:        "no such file",
	NotADirectory:     "not a directory",
	Exists:            "already exists",
	NoSpace:           "no space left on device",
	NoMemory:          "out of memory",
	BadFileDescriptor: "bad file descriptor",
	Fault:             "bad address",
	NoChildren:        "no child processes",
	Killed:            "process was killed",
}

func (e Errno) Error() string {
	if s, ok := names[e]; ok {
		return s
	}
	return "unknown error"
}

func (e Errno) String() string { return e.Error() }

// Ret returns the ABI-level return value for this error: a negative
// count for anything but Ok, which returns 0.
func (e Errno) Ret() int64 {
	if e == Ok {
		return 0
	}
	return -int64(e)
}
