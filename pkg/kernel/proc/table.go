package proc

import (
	"sync"

	"github.com/pkg/errors"
	"gvisor.dev/gvisor/pkg/pool"

	"github.com/jnwu/bkernel/pkg/kernel/hal"
)

// Default table sizing, carried over from xeroskernel.h's MAX_PROC/MIN_PID/
// MAX_PID/IDLE_PROC_PID.
const (
	DefaultMaxProc = 32
	MinPID         = 1
	MaxPID         = 1 << 16
	IdleProcPID    = MaxPID
)

// ErrNoFreeSlot is returned by Table.Create when the process table is at
// capacity.
var ErrNoFreeSlot = errors.New("proc: no free process table slot")

// Table is the fixed-capacity process table: a static array of slots, a
// free-slot allocator, and the PID-assignment counter.
//
// Slot *reuse* is handled by gvisor.dev/gvisor/pkg/pool.Pool, the same
// free-list/bitmap allocator gVisor uses to hand out sysmsgStackIDs to
// reused ptrace threads (subprocess.initSyscallThread). A bkernel PCB slot
// is a closer match for that allocator than a hand-rolled free list: both
// are "a fixed number of reusable numbered resources checked out and
// returned", acquired and released in no particular order.
type Table struct {
	mu    sync.Mutex
	slots pool.Pool
	procs []*PCB

	nextPID uint32
	alloc   hal.Allocator
}

// NewTable constructs a table with capacity maxProc, backed by alloc for
// stack allocation.
func NewTable(maxProc int, alloc hal.Allocator) *Table {
	if maxProc <= 0 {
		maxProc = DefaultMaxProc
	}
	return &Table{
		slots:   pool.Pool{Start: 0, Limit: uint64(maxProc)},
		procs:   make([]*PCB, maxProc),
		nextPID: MinPID,
		alloc:   alloc,
	}
}

func (t *Table) pidInUseLocked(pid uint32) bool {
	for _, p := range t.procs {
		if p != nil && p.PID == pid {
			return true
		}
	}
	return false
}

// allocPID draws the next PID from the monotonically advancing counter,
// skipping occupied slots and wrapping once the counter reaches MaxPID.
// Callers must hold t.mu and must already know a slot is available, so this
// always terminates within len(t.procs)+1 iterations.
func (t *Table) allocPIDLocked() uint32 {
	for i := 0; i <= len(t.procs); i++ {
		pid := t.nextPID
		t.nextPID++
		if t.nextPID >= MaxPID {
			t.nextPID = MinPID
		}
		if !t.pidInUseLocked(pid) {
			return pid
		}
	}
	// Unreachable: the caller only calls this after confirming a slot
	// is free, and there are strictly fewer live PIDs than the PID
	// space (MaxPID >> len(t.procs)).
	panic("proc: PID space exhausted despite free slot")
}

// Create allocates a stack via the table's allocator, assigns a PID, and
// returns a new PCB in the Ready state running entry. It does not enqueue
// the PCB onto Ready; callers (normally the create() syscall handler) do
// that once they've finished constructing the process's trap frame.
func (t *Table) Create(entry Entry, stackBytes int) (*PCB, error) {
	t.mu.Lock()
	id, ok := t.slots.Get()
	if !ok {
		t.mu.Unlock()
		return nil, ErrNoFreeSlot
	}
	t.mu.Unlock()

	stack, err := t.alloc.Alloc(stackBytes)
	if err != nil {
		t.mu.Lock()
		t.slots.Put(id)
		t.mu.Unlock()
		return nil, errors.Wrap(err, "proc: stack allocation failed")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	pid := t.allocPIDLocked()
	p := t.procs[id]
	if p == nil {
		p = newPCB()
		t.procs[id] = p
	}
	p.reset(pid, stack, entry)
	return p, nil
}

// Stop releases p's stack back to the allocator and returns its slot to
// the free pool: once a process is destroyed, its stack is freed, its
// state becomes Stopped, and its PCB slot becomes reusable.
func (t *Table) Stop(p *PCB) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, slotP := range t.procs {
		if slotP == p {
			t.alloc.Free(p.StackBase)
			p.State = Stopped
			p.StackBase = nil
			t.slots.Put(uint64(i))
			return
		}
	}
}

// Lookup finds the live PCB with the given PID, or nil if none exists. A
// destination PID that does not identify a live process is exactly what
// Lookup returning nil represents, for IPC callers checking a send/receive
// target.
func (t *Table) Lookup(pid uint32) *PCB {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.procs {
		if p != nil && p.State != Unused && p.State != Stopped && p.PID == pid {
			return p
		}
	}
	return nil
}
