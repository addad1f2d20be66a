// Package ctxswitch simulates a hardware trap gate. There is no assembly
// and no real interrupt: a process is a goroutine, and "the CPU" moving
// between kernel and user mode is a synchronous handoff over a pair of
// per-PCB channels.
//
// The rendezvous shape — a channel a caller blocks on until a worker
// signals it, servicing exactly one request at a time — is grounded on
// gVisor's subprocess request-channel pattern (pkg/sentry/platform/
// systrap/subprocess.go: subprocess.requests, the single goroutine reading
// it in subprocess.handle). That original pools many OS threads behind one
// request channel; here each PCB gets its own trap/resume pair instead,
// because a bkernel process is never handed back to a free list mid-run
// the way a ptrace thread is — it is either Running or it isn't.
package ctxswitch

import (
	"github.com/jnwu/bkernel/pkg/kernel/proc"
	"github.com/jnwu/bkernel/pkg/kernel/sysno"
)

// Switch is this kernel's context_switch(p): it grants p the CPU until p
// next traps into the kernel, then returns the trap it made. The
// first call for a given PCB starts its entry function on a new goroutine;
// every subsequent call resumes it from wherever it last trapped.
func Switch(p *proc.PCB) proc.TrapRequest {
	if !p.Started {
		p.Started = true
		go run(p)
	} else {
		p.ResumeCh <- struct{}{}
	}
	req := <-p.TrapCh
	p.SyscallArgs = req.Args
	return req
}

// run is a process's goroutine body. It never returns control to the
// dispatcher directly; every exit from user code, including falling off
// the end of Entry, happens by trapping.
func run(p *proc.PCB) {
	t := &trap{pcb: p}
	p.EntryFn(t)
	// Entry returned instead of calling sysstop. The process factory's
	// sentinel return address stands in for this: falling off the end of
	// a process's top-level function is equivalent to calling sysstop.
	t.Syscall(sysno.Stop)
}

// trap is the concrete proc.Trap a running process's entry function calls
// into. It is unexported: code outside a process's own goroutine has no
// business issuing syscalls on its behalf.
type trap struct {
	pcb *proc.PCB
}

// Syscall sends req across the PCB's TrapCh, blocks until the dispatcher
// resumes it, and returns whatever return code the dispatch handler left
// in ReturnCode. This call does not return until the kernel has fully
// processed the request and scheduled this process to run again — exactly
// the synchronous int $0x30-then-iret shape a real trap gate has.
func (t *trap) Syscall(req sysno.Request, args ...any) int {
	p := t.pcb
	p.TrapCh <- proc.TrapRequest{Req: req, Args: args}
	<-p.ResumeCh
	return p.ReturnCode
}
