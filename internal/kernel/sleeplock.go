// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

// SleepLock is blocking mutual exclusion built on SleepQueue (spec
// §4.4). Unlike SpinLock, holding a SleepLock does not disable
// scheduling: the holder may block again on another sleep lock or a
// sleep queue while still holding this one. SleepLock must not be
// used from an interrupt handler.
type SleepLock struct {
	name   string
	inner  *SpinLock
	locked bool
	owner  int // pid, for Holding
}

// NewSleepLock returns an unlocked SleepLock tagged name.
func NewSleepLock(name string) *SleepLock {
	return &SleepLock{name: name, inner: NewSpinLock(name + ".inner")}
}

// Acquire waits, via Sleep, while the lock is held, then takes it.
func (l *SleepLock) Acquire(c *Cpu) {
	l.inner.Acquire(c)
	for l.locked {
		Sleep(c, c.Proc, l, l.inner)
	}
	l.locked = true
	if c.Proc != nil {
		l.owner = c.Proc.pid
	}
	l.inner.Release(c)
}

// Release clears the lock and wakes any waiters.
func (l *SleepLock) Release(c *Cpu) {
	l.inner.Acquire(c)
	l.locked = false
	l.owner = 0
	Wakeup(c, l)
	l.inner.Release(c)
}

// Holding reports whether c's current process holds l.
func (l *SleepLock) Holding(c *Cpu) bool {
	l.inner.Acquire(c)
	defer l.inner.Release(c)
	return l.locked && c.Proc != nil && l.owner == c.Proc.pid
}
