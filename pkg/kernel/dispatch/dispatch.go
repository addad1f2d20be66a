// Package dispatch implements the single dispatcher loop: pick a runnable
// process, switch into it, decode whatever it trapped with, and hand the
// result to the matching syscall handler.
package dispatch

import (
	"context"
	"fmt"

	"github.com/jnwu/bkernel/pkg/kernel/ctxswitch"
	"github.com/jnwu/bkernel/pkg/kernel/hal"
	"github.com/jnwu/bkernel/pkg/kernel/ipc"
	"github.com/jnwu/bkernel/pkg/kernel/klog"
	"github.com/jnwu/bkernel/pkg/kernel/ktime"
	"github.com/jnwu/bkernel/pkg/kernel/proc"
	"github.com/jnwu/bkernel/pkg/kernel/sleep"
	"github.com/jnwu/bkernel/pkg/kernel/sysno"
	"github.com/jnwu/bkernel/pkg/kernel/trapframe"
)

// Dispatcher owns every piece of live kernel state: the process table, the
// ready queue, the sleep device, the IPC facility and the clock. Kernel
// code is non-reentrant, protected by an implicit single-writer invariant —
// that writer is this struct's Run goroutine; nothing else touches this
// state concurrently.
type Dispatcher struct {
	table    *proc.Table
	factory  *trapframe.Factory
	sleepDev sleep.Device
	ipcF     *ipc.Facility
	console  hal.ConsoleSink
	clock    ktime.Clock
	ticks    <-chan struct{}

	ready proc.Queue
	idle  *proc.PCB
}

// New wires a Dispatcher against the supplied hardware boundary: the
// allocator, tick source, and console sink collaborators.
func New(maxProc int, alloc hal.Allocator, ticks hal.TickSource, console hal.ConsoleSink) *Dispatcher {
	table := proc.NewTable(maxProc, alloc)
	d := &Dispatcher{
		table:   table,
		factory: trapframe.New(table),
		ipcF:    ipc.New(table, maxProc),
		console: console,
		ticks:   ticks.C(),
	}
	d.idle = proc.NewIdle(idleEntry)
	return d
}

// idleEntry is the idle process's body, required so the dispatcher always
// has a runnable target. The original idleproc is a bare `for(;;);` that
// never traps at all, relying on the timer interrupt
// to yank the CPU away; a goroutine can't be preempted that way without
// real OS threads, so this one yields every iteration instead, handing
// control back to the dispatcher loop so it can drain ticks and service
// anything that became Ready.
func idleEntry(t proc.Trap) {
	for {
		t.Syscall(sysno.Yield)
	}
}

// Create is exposed so the host program (or a test) can seed the system
// with its first process or two before calling Run, the same way the
// original kernel's root() calls syscreate for producer/consumer.
func (d *Dispatcher) Create(entry proc.Entry, stackBytes int) (*proc.PCB, error) {
	p, err := d.factory.Create(entry, stackBytes)
	if err != nil {
		return nil, err
	}
	d.ready.Append(p)
	return p, nil
}

// Run drives the dispatch loop until ctx is cancelled. It does not return
// on its own when the ready queue and sleep list are empty; with only the
// idle process left runnable it keeps stepping the idle process — callers
// that want a bounded run (e.g. a scenario driver) should cancel ctx
// themselves once they've observed what they're waiting for.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.Step()
	}
}

// Step runs exactly one iteration of the dispatch loop: drain pending
// ticks, switch into the next runnable process, and dispatch whatever it
// trapped with. It is the unit Run repeats, exported so a scenario driver
// or test can advance the kernel deterministically from its own goroutine
// instead of racing a background Run against its own assertions — the
// single-writer invariant otherwise has exactly one writer, and a second
// goroutine reading Dispatcher state concurrently would violate it.
func (d *Dispatcher) Step() {
	d.drainTicks()

	p := d.ready.Pop()
	if p == nil {
		p = d.idle
	}
	p.State = proc.Running

	req := ctxswitch.Switch(p)

	if p.State == proc.Running {
		p.State = proc.Ready
	}
	d.dispatch(p, req)

	if p.State == proc.Ready && p != d.idle {
		d.ready.Append(p)
	}
}

// drainTicks services every timer interrupt that arrived while some other
// process was running, in order, before picking the next process to run.
// The timer interrupt is routed through the same trap path with a
// dedicated request code; draining it here against a synthetic sysno.Timer
// request reuses dispatch's normal handler switch instead of a separate
// code path.
func (d *Dispatcher) drainTicks() {
	for {
		select {
		case <-d.ticks:
			d.dispatch(nil, proc.TrapRequest{Req: sysno.Timer})
		default:
			return
		}
	}
}

// dispatch decodes req and runs the matching syscall handler. p is nil for
// a timer tick, which has no associated process.
func (d *Dispatcher) dispatch(p *proc.PCB, req proc.TrapRequest) {
	switch req.Req {
	case sysno.Timer:
		d.handleTimer()
	case sysno.Stop:
		d.handleStop(p)
	case sysno.Yield:
		p.ReturnCode = 0
	case sysno.Create:
		d.handleCreate(p, req.Args)
	case sysno.Getpid:
		p.ReturnCode = int(p.PID)
	case sysno.Puts:
		d.handlePuts(p, req.Args)
	case sysno.Sleep:
		d.handleSleep(p, req.Args)
	case sysno.Send:
		d.handleSend(p, req.Args)
	case sysno.Recv:
		d.handleRecv(p, req.Args)
	case sysno.SigHandler, sysno.SigKill, sysno.SigWait, sysno.SigReturn:
		p.ReturnCode = sysno.ErrNotImplemented
	default:
		klog.Warnf("dispatch: unrecognized request code %d from pid %d", int(req.Req), p.PID)
		p.ReturnCode = sysno.ErrNotImplemented
	}
}

func (d *Dispatcher) handleTimer() {
	d.clock.Advance()
	if !d.sleepDev.Tick() {
		return
	}
	for _, woken := range d.sleepDev.Wake() {
		d.ready.Append(woken)
	}
}

// handleStop implements sysstop: free the stack and slot, then release
// every peer still blocked waiting on this PID specifically.
func (d *Dispatcher) handleStop(p *proc.PCB) {
	released := d.ipcF.ReleasePeers(p)
	d.table.Stop(p)
	for _, r := range released {
		d.ready.Append(r)
	}
	// Let the process's own goroutine finish unwinding out of its final
	// Syscall(Stop) call. Without this it stays parked on ResumeCh
	// forever; STOP "does not return", which on a goroutine means
	// "nothing further runs", not "the goroutine is killed" — there is no
	// such primitive in Go, so we simply let it return from Syscall and
	// fall out of run().
	p.ResumeCh <- struct{}{}
}

func (d *Dispatcher) handleCreate(p *proc.PCB, args []any) {
	entry, _ := args[0].(proc.Entry)
	stackBytes, _ := args[1].(int)
	child, err := d.factory.Create(entry, stackBytes)
	if err != nil {
		p.ReturnCode = sysno.ErrNoSlot
		return
	}
	d.ready.Append(child)
	p.ReturnCode = int(child.PID)
}

func (d *Dispatcher) handlePuts(p *proc.PCB, args []any) {
	s, _ := args[0].(string)
	d.console.Print(s)
	p.ReturnCode = 0
}

func (d *Dispatcher) handleSleep(p *proc.PCB, args []any) {
	ms, _ := args[0].(uint)
	p.DeltaSlice = ktime.MSToSlices(ms)
	p.State = proc.Sleeping
	d.sleepDev.Sleep(p)
}

// handleSend implements syssend. Send already leaves
// p.ReturnCode set to the transferred count or the appropriate error code;
// a true blocked result just means p.State is now BlockedOnSend and p
// stays off the ready queue. A successful rendezvous releases the
// receiver it matched, which Facility can't put back on Ready itself, and
// fills that receiver's &from_pid out-parameter with p's PID.
func (d *Dispatcher) handleSend(p *proc.PCB, args []any) {
	destPID, _ := args[0].(uint32)
	buf, _ := args[1].([]byte)
	_, woken, _ := d.ipcF.Send(p, destPID, buf)
	if woken != nil {
		if len(woken.SyscallArgs) > 2 {
			if out, ok := woken.SyscallArgs[2].(*uint32); ok {
				*out = p.PID
			}
		}
		d.ready.Append(woken)
	}
}

// handleRecv implements sysrecv. The caller's &from_pid out-parameter is
// the optional third syscall argument.
func (d *Dispatcher) handleRecv(p *proc.PCB, args []any) {
	fromPID, _ := args[0].(uint32)
	buf, _ := args[1].([]byte)
	_, fromActual, woken, blocked := d.ipcF.Recv(p, fromPID, buf)
	if woken != nil {
		d.ready.Append(woken)
	}
	if blocked {
		return
	}
	if len(args) > 2 {
		if out, ok := args[2].(*uint32); ok {
			*out = fromActual
		}
	}
}

// Lookup exposes the process table's Lookup for scenario drivers and tests
// that need to inspect a PCB's state or return code directly, the way a
// debugger would, without going through the syscall interface.
func (d *Dispatcher) Lookup(pid uint32) *proc.PCB {
	return d.table.Lookup(pid)
}

// ReadyLen reports how many processes are currently on the ready queue.
func (d *Dispatcher) ReadyLen() int {
	return d.ready.Len()
}

// SleepLen reports how many processes are currently sleeping.
func (d *Dispatcher) SleepLen() int {
	return d.sleepDev.Len()
}

// WakeEarly implements the scheduler side of wake_early: cancel p's sleep
// prematurely, crediting its residual delay as its return code, and make
// it runnable again.
func (d *Dispatcher) WakeEarly(p *proc.PCB) bool {
	if !d.sleepDev.WakeEarly(p) {
		return false
	}
	d.ready.Append(p)
	return true
}

// Kill terminates p from outside the syscall interface entirely — the
// "300 ms later P1 is terminated" case, where nothing P1 itself did caused
// the stop. p must currently be Sleeping, blocked on
// IPC, or already Ready; killing the Running process makes no sense since
// nothing but p's own goroutine can observe it mid-switch.
//
// Unlike handleStop, there is no Syscall(Stop) call in flight to unblock
// here, so p's goroutine is left parked on ResumeCh permanently — the
// same way a real process's context ceases to exist the instant its stack
// is freed out from under it.
func (d *Dispatcher) Kill(p *proc.PCB) {
	switch p.State {
	case proc.Sleeping:
		d.sleepDev.WakeEarly(p)
	case proc.BlockedOnSend:
		if p.BlockedPeer != nil {
			p.BlockedPeer.BlockedSenders.Remove(p)
		}
	case proc.BlockedOnRecv:
		if p.BlockedPeer != nil {
			p.BlockedPeer.BlockedReceivers.Remove(p)
		}
	case proc.Ready:
		d.ready.Remove(p)
	}

	released := d.ipcF.ReleasePeers(p)
	d.table.Stop(p)
	for _, r := range released {
		d.ready.Append(r)
	}
}

// String renders a one-line snapshot of the dispatcher's queues, handy for
// scenario-driver logging and tests; it mirrors the original kernel's
// puts_sleep_q/puts_ready_q diagnostic helpers.
func (d *Dispatcher) String() string {
	return fmt.Sprintf("ready: %d proc(s), %s", d.ready.Len(), d.sleepDev.String())
}
