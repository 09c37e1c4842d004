// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xv6go is a small multiprocessor teaching kernel: a
// per-hart scheduler and trap/context-switch model, blocking
// primitives (sleep locks, condition channels, pipes), and a
// crash-consistent file system built on a buffer cache and a
// write-ahead log.
//
// See cmd/xv6god for the kernel binary and cmd/mkxv6fs for the disk
// image formatter.
package xv6go
