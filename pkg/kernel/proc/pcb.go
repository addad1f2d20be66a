// Package proc holds the kernel's static process table, the fixed-layout
// process control block, and the FIFO queues PCBs travel through on their
// way between Running, Ready, Sleep, the two IPC blocked states, and
// Stopped.
package proc

import (
	"fmt"

	"github.com/jnwu/bkernel/pkg/kernel/sysno"
)

// State is one of the six process states a PCB may be in. Exactly one
// process is Running at any time; every other live PCB is in exactly one
// queue, and a Stopped PCB sits on the free list.
type State int

const (
	// Unused marks a table slot with no live process; it is never a
	// state a caller observes on a PCB returned from the table.
	Unused State = iota
	Running
	Ready
	Sleeping
	BlockedOnSend
	BlockedOnRecv
	Stopped
)

func (s State) String() string {
	switch s {
	case Unused:
		return "unused"
	case Running:
		return "running"
	case Ready:
		return "ready"
	case Sleeping:
		return "sleep"
	case BlockedOnSend:
		return "blocked-on-send"
	case BlockedOnRecv:
		return "blocked-on-recv"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Trap is the user-mode side of the context-switch rendezvous: the only
// thing a process entry function may do to affect kernel state is issue a
// syscall through it. Concrete implementations live in package ctxswitch;
// Trap is declared here (not there) so the PCB can hold an Entry without
// proc importing ctxswitch.
type Trap interface {
	Syscall(req sysno.Request, args ...any) int
}

// Entry is a process's top-level function, analogous to the "entry" and
// "user process" arguments of create(). A process that returns from Entry
// is equivalent to falling off the end of main(): ctxswitch.run traps
// sysstop on its behalf, in place of a sentinel return address.
type Entry func(t Trap)

// PCB is the fixed-layout process control block. The trailing "switch
// plumbing" fields are this Go kernel's replacement for the per-CPU
// register globals a real trap gate would use (saved stack pointer,
// return code, argument pointer) — a per-PCB channel pair takes the place
// of a single "current PCB" pointer, since this kernel has no literal trap
// gate to store one in.
type PCB struct {
	PID   uint32
	State State

	// StackBase is the owning allocation backing this process's stack,
	// obtained from the injected hal.Allocator at create() time and
	// released back to it exactly once, when the process stops.
	StackBase []byte

	// SyscallArgs is captured at trap time from the calling process's
	// argument list.
	SyscallArgs []any

	// ReturnCode is the value returned to user mode on the process's
	// next resume.
	ReturnCode int

	// DeltaSlice is meaningful only while State == Sleeping.
	DeltaSlice uint

	// IPCBuffer/IPCBufferLen are meaningful only while State is
	// BlockedOnSend or BlockedOnRecv.
	IPCBuffer    []byte
	IPCBufferLen int

	// BlockedSenders/BlockedReceivers are FIFO queues of peers waiting
	// to rendezvous with this PCB specifically: a PCB in BlockedSenders
	// has state BlockedOnSend and a destination equal to this PCB's PID,
	// symmetrically for BlockedReceivers.
	BlockedSenders   Queue
	BlockedReceivers Queue

	// BlockedPeer is the specific PCB this process is waiting on while
	// BlockedOnSend or BlockedOnRecv — the destination for a blocked
	// sender, or the source for a blocked receiver that named one. It is
	// nil for a "receive from any" wait, and is exactly the edge deadlock
	// detection walks.
	BlockedPeer *PCB

	// Next links this PCB into whichever single queue currently owns
	// it (Ready, the sleep delta list, or a BlockedSenders/
	// BlockedReceivers queue). A PCB is a member of at most one such
	// queue at a time.
	Next *PCB

	// EntryFn is the process's top-level function, run on its own
	// goroutine once the dispatcher first switches into it.
	EntryFn Entry

	// TrapCh/ResumeCh are the context-switch rendezvous channels
	// described above. Package ctxswitch drives them, apart from the
	// dispatcher's stop handler sending the final resume; they are
	// exported rather than hidden behind accessors because this
	// kernel's packages are one closed subsystem, touched directly from
	// the sleep device, the IPC facility and the dispatcher alike, the
	// same way a real kernel's pcb_t fields are shared across its
	// subsystems. Switch only ever waits on its own TrapCh (never racing
	// the timer source against it), so there is exactly one outstanding
	// Resume/Trap pair at a time and no separate "pending trap" flag is
	// needed.
	TrapCh   chan TrapRequest
	ResumeCh chan struct{}
	Started  bool
}

// TrapRequest is what a process sends across TrapCh when it traps: the
// request code and the captured argument list.
type TrapRequest struct {
	Req  sysno.Request
	Args []any
}

// NewIdle builds the idle process's PCB directly, bypassing the table's
// slot/PID allocation: the idle process needs a fixed sentinel PID
// (IdleProcPID) and a static stack, neither of which comes from the normal
// create() path. It is created once, at dispatcher startup, and never
// stopped or reused.
func NewIdle(entry Entry) *PCB {
	p := newPCB()
	p.PID = IdleProcPID
	p.State = Ready
	p.EntryFn = entry
	return p
}

// newPCB allocates the channel plumbing for a fresh slot. Table.Create
// calls this only the first time a slot is used; later reuses of the slot
// go through reset.
func newPCB() *PCB {
	return &PCB{
		TrapCh:   make(chan TrapRequest),
		ResumeCh: make(chan struct{}),
	}
}

// reset clears a PCB for reuse by a new process, after its previous
// occupant has been fully stopped and unlinked from every queue.
func (p *PCB) reset(pid uint32, stack []byte, entry Entry) {
	p.PID = pid
	p.State = Ready
	p.StackBase = stack
	p.SyscallArgs = nil
	p.ReturnCode = 0
	p.DeltaSlice = 0
	p.IPCBuffer = nil
	p.IPCBufferLen = 0
	p.BlockedSenders = Queue{}
	p.BlockedReceivers = Queue{}
	p.BlockedPeer = nil
	p.Next = nil
	p.EntryFn = entry
	p.Started = false
	// Fresh channels, so a previous occupant's goroutine that was killed
	// while parked on the old ResumeCh can never be woken by this one.
	p.TrapCh = make(chan TrapRequest)
	p.ResumeCh = make(chan struct{})
}
