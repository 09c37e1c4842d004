// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"sync"
	"testing"
	"time"

	"github.com/xv6go/kernel/internal/errno"
)

// TestForkExitWait exercises spec §8 scenario 3: N concurrent
// processes each fork a child, the child exits immediately, and the
// parent reaps every child via wait() before exiting itself.
func TestForkExitWait(t *testing.T) {
	const nchildren = 4
	procs := NewProcTable(16, nil)
	cpu := NewCpu(0, procs)
	sched := NewScheduler(cpu, procs, nil)

	stop := make(chan struct{})
	done := make(chan struct{})

	var parent *Proc
	parent = procs.Init(NewCpu(-1, procs), "parent", func(c *Cpu) {
		reaped := map[int]bool{}
		for i := 0; i < nchildren; i++ {
			child, err := Fork(c, parent, func(cc *Cpu, ch *Proc) {
				ch.Exit(cc, 7, nil, nil)
			})
			if err != errno.Ok {
				t.Errorf("fork %d: %v", i, err)
			}
			_ = child
		}
		for len(reaped) < nchildren {
			pid, code, werr := parent.Wait(c)
			if werr != errno.Ok {
				t.Errorf("wait: %v", werr)
				break
			}
			if code != 7 {
				t.Errorf("child %d exit code = %d, want 7", pid, code)
			}
			reaped[pid] = true
		}
		close(done)
		parent.Exit(c, 0, nil, nil)
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(stop)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("fork/exit/wait scenario did not complete")
	}
	close(stop)
	wg.Wait()
}

// TestWaitNoChildrenReturnsErr confirms wait() on a proc with no
// children returns errno.NoChildren rather than blocking forever.
func TestWaitNoChildrenReturnsErr(t *testing.T) {
	procs := NewProcTable(4, nil)
	c := NewCpu(0, procs)

	p := procs.Alloc(c)
	p.lock.Release(c)

	if _, _, err := p.Wait(c); err != errno.NoChildren {
		t.Fatalf("Wait with no children = %v, want NoChildren", err)
	}
}

// TestKillWakesSleepingProc confirms Kill transitions a Sleeping
// process to Runnable so it observes the kill flag.
func TestKillWakesSleepingProc(t *testing.T) {
	procs := NewProcTable(4, nil)
	cpu := NewCpu(0, procs)
	sched := NewScheduler(cpu, procs, nil)

	stop := make(chan struct{})
	woke := make(chan struct{})
	lk := NewSpinLock("cond")

	var target *Proc
	target = procs.Init(NewCpu(-1, procs), "sleeper", func(c *Cpu) {
		lk.Acquire(c)
		Sleep(c, target, "chan", lk)
		lk.Release(c)
		if !target.Killed() {
			t.Errorf("expected Killed() true after wakeup by Kill")
		}
		close(woke)
		target.Exit(c, 0, nil, nil)
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(stop)
	}()

	// driverCpu is dedicated to this test goroutine's own lock
	// traffic, never the scheduler's own cpu: two goroutines mutating
	// one Cpu's interrupt-nesting state concurrently would race.
	driverCpu := NewCpu(99, procs)

	// Give the sleeper a moment to actually reach Sleep before killing it.
	deadline := time.After(2 * time.Second)
	for {
		target.lock.Acquire(driverCpu)
		st := target.state
		target.lock.Release(driverCpu)
		if st == Sleeping {
			break
		}
		select {
		case <-deadline:
			t.Fatal("sleeper never reached Sleeping state")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if err := procs.Kill(driverCpu, target.Pid()); err != errno.Ok {
		t.Fatalf("Kill: %v", err)
	}

	select {
	case <-woke:
	case <-time.After(2 * time.Second):
		t.Fatal("killed sleeper never woke")
	}
	close(stop)
	wg.Wait()
}
