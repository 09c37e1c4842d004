// Copyright 2024 the xv6go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command xv6god boots the simulated multiprocessor kernel (spec §2):
// it mounts a disk image formatted by cmd/mkxv6fs, starts one
// scheduler goroutine per simulated hart, and runs the init process,
// which in turn spawns the fixed shell program from internal/programs
// via the kernel's program registry.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/xv6go/kernel/internal/device"
	"github.com/xv6go/kernel/internal/errno"
	"github.com/xv6go/kernel/internal/fs"
	"github.com/xv6go/kernel/internal/hal"
	"github.com/xv6go/kernel/internal/kernel"
	"github.com/xv6go/kernel/internal/klog"
	"github.com/xv6go/kernel/internal/programs"
	"github.com/xv6go/kernel/internal/syscalls"
)

func main() {
	var (
		image    = pflag.StringP("image", "i", "xv6go.img", "disk image formatted by mkxv6fs")
		nharts   = pflag.IntP("harts", "j", 2, "number of simulated hardware threads (spec §3 \"CPU record\")")
		nprocs   = pflag.IntP("nproc", "p", 64, "process table capacity (spec §3 \"Process slot\")")
		ncache   = pflag.Int("bufcache", 30, "buffer cache capacity (spec §4.7)")
		ninode   = pflag.Int("icache", 50, "in-memory inode table capacity (spec §4.9)")
		tick     = pflag.Duration("tick", 10*time.Millisecond, "simulated timer period (spec §4.2)")
		initProg = pflag.String("init", "shell", "program run by the init process (spec §4.5)")
	)
	pflag.Parse()

	log := klog.Default()
	if err := run(*image, *nharts, *nprocs, *ncache, *ninode, *tick, *initProg, log); err != nil {
		fmt.Fprintf(os.Stderr, "xv6god: %v\n", err)
		os.Exit(1)
	}
}

func run(image string, nharts, nprocs, ncache, ninode int, tick time.Duration, initProg string, log klog.Logger) error {
	procs := kernel.NewProcTable(nprocs, log)

	st, err := os.Stat(image)
	if err != nil {
		return fmt.Errorf("stat %s: %w", image, err)
	}
	dev, err := device.OpenFileBlockDevice(image, uint32(st.Size()/fs.BSIZE), procs)
	if err != nil {
		return fmt.Errorf("open block device: %w", err)
	}
	defer dev.Close()

	// Mount needs a Cpu/Proc pair to drive the buffer cache's sleep
	// locks during log recovery, before any scheduler loop exists to
	// hand out a real one. bootProc is allocated (Used) but never
	// made Runnable, so it never reaches a scheduler's scan and
	// permanently occupies one process-table slot.
	bootCpu := kernel.NewCpu(-1, procs)
	bootProc := procs.Alloc(bootCpu)
	if bootProc == nil {
		return fmt.Errorf("process table exhausted before boot")
	}
	// SleepLock ownership and Sleep's "p is not running on c" check
	// both key off Cpu.Proc; outside a scheduler's dispatch loop
	// nothing else sets it, so it must be assigned by hand here to
	// attribute bootCpu's lock traffic to bootProc.
	bootCpu.Proc = bootProc
	bootProc.Lock().Release(bootCpu)

	fsys, err := fs.Mount(bootCpu, bootProc, dev, ncache, ninode, log)
	if err != nil {
		return fmt.Errorf("mount %s: %w", image, err)
	}
	con := device.NewConsole()
	fsys.Devices.Register(fs.ConsoleMajor, &fs.ConsoleDevice{Console: con, Drain: func(b byte) { os.Stdout.Write([]byte{b}) }})

	if merr := fsys.Mknod(bootCpu, bootProc, "/console", fs.ConsoleMajor, 0); merr != errno.Ok && merr != errno.Exists {
		return fmt.Errorf("mknod /console: %s", merr)
	}

	clock := kernel.NewClock()
	registry := kernel.NewRegistry(programs.All(fsys)...)

	var initProc *kernel.Proc
	initProc = procs.Init(kernel.NewCpu(-1, procs), "init", func(c *kernel.Cpu) {
		runInit(c, initProc, fsys, registry, initProg)
	})

	table := syscalls.Table{FS: fsys, Procs: procs, Progs: registry, Clock: clock, InitProc: initProc}
	dispatcher := kernel.NewDispatcher(table.Build(), clock)

	machine := hal.NewMachine(nharts, tick)
	machine.Run()
	defer machine.Stop()

	cpus := make([]*kernel.Cpu, nharts)
	schedulers := make([]*kernel.Scheduler, nharts)
	for i := 0; i < nharts; i++ {
		cpus[i] = kernel.NewCpu(i, procs)
		schedulers[i] = kernel.NewScheduler(cpus[i], procs, nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stopCh := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stopCh)
	}()

	var g errgroup.Group
	for i := 0; i < nharts; i++ {
		s := schedulers[i]
		g.Go(func() error {
			s.Run(stopCh)
			return nil
		})
	}

	// Put a real terminal into raw mode so DeliverInput's own
	// backspace/kill-line handling is the only line discipline in
	// effect, rather than double-editing under the host tty driver's.
	// Piped/redirected stdin (not a terminal) is left alone.
	if device.IsTerminal(os.Stdin) {
		if restore, rerr := device.RawTerminal(int(os.Stdin.Fd())); rerr == nil {
			defer restore()
		}
	}

	// A dedicated synthetic Cpu, never one of the scheduler harts in
	// cpus: two goroutines mutating one Cpu's interrupt-nesting state
	// concurrently would race, the same reasoning device.FileBlockDevice
	// applies to its own completion goroutine's irqCpu.
	go readConsoleInput(kernel.NewCpu(-1, procs), con, stopCh)
	go driveClock(dispatcher, machine, procs, stopCh)

	log.Printf("xv6god: booted %d harts, init=%q, image=%s", nharts, initProg, image)
	return g.Wait()
}

// runInit implements the traditional xv6 init.c body: chdir to the
// root directory, then exec the configured program in a loop,
// reaping orphaned zombies between runs (spec §4.5 "init reaps
// reparented children").
func runInit(c *kernel.Cpu, p *kernel.Proc, fsys *fs.FS, registry *kernel.Registry, initProg string) {
	if ip, err := fsys.Chdir(c, p, "/"); err == errno.Ok {
		p.SetCwd(ip)
	}

	prog := registry.Lookup(initProg)
	for {
		if prog != nil {
			p.Exec(prog)
			prog.Main(c, p)
		}
		for {
			if _, _, err := p.Wait(c); err != errno.Ok {
				break
			}
		}
	}
}

// readConsoleInput relays host stdin bytes into the simulated
// console's input ring, the Go stand-in for a UART receive
// interrupt (spec §6 "console").
func readConsoleInput(c *kernel.Cpu, con *device.Console, stop <-chan struct{}) {
	buf := make([]byte, 1)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return
		}
		if n > 0 {
			con.DeliverInput(c, buf[0])
		}
	}
}

// driveClock advances the shared global clock once per timer period
// (spec §5 "guarded by its own lock"), the only part of timer-tick
// handling this boot loop delivers from outside a process's own
// goroutine. Dispatcher.Tick's other half — yielding whichever
// process is Running on the ticked hart — needs to run on that
// process's own goroutine, the same one the scheduler's dispatch is
// blocked waiting on; calling it from here instead would mutate that
// hart's Cpu (lock nesting depth, interrupt-enable bit) concurrently
// with whatever the running process is doing, a data race Go gives no
// safe way around without real asynchronous preemption. clockCpu is a
// dedicated, never-shared Cpu whose ID is 0 and which never has a
// live Proc, so Dispatcher.Tick's yield branch is provably never
// reached through it — only its clock-advance branch is exercised
// live; the full per-hart yield-on-timer path is what internal/kernel
// tests exercise directly, single-goroutine.
func driveClock(d *kernel.Dispatcher, machine *hal.SimMachine, procs *kernel.ProcTable, stop <-chan struct{}) {
	clockCpu := kernel.NewCpu(0, procs)
	for {
		select {
		case <-stop:
			return
		case id := <-machine.Ticks():
			if id == 0 {
				d.Tick(clockCpu)
			}
		}
	}
}
