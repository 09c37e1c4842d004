// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package klog carries the kernel's injectable logger.
//
// Components take a Logger at construction time instead of calling the
// log package directly, so tests can capture kernel diagnostics and a
// future console-backed logger can replace stderr without touching
// callers.
package klog

import (
	"fmt"
	"log"
	"os"
)

// Logger is satisfied by *log.Logger.
type Logger interface {
	Println(v ...interface{})
	Printf(format string, v ...interface{})
}

// Default returns a Logger that writes to stderr with no timestamp
// prefix, matching the terse diagnostics style of kernel panics.
func Default() Logger {
	return log.New(os.Stderr, "xv6go: ", 0)
}

// Panic formats a message and panics with it. Every invariant violation
// in §7 (lock held by wrong CPU, sleep while holding a spin lock, walk
// of an invalid address, recursive acquire, superblock magic mismatch,
// freeing an already-free block) goes through here so the failure mode
// is uniform: a diagnostic followed by a halt.
func Panic(format string, args ...interface{}) {
	panic(fmt.Sprintf(format, args...))
}
