// Package trapframe is the process factory: create(entry, stack_bytes).
// On real hardware this writes an artificial
// interrupt frame at the top of a fresh stack so that the first context
// switch into a process "returns" into its entry point. This kernel has no
// literal stack-pointer/eip pair to forge — ctxswitch starts a goroutine
// instead — so the factory's job shrinks to what still matters
// operationally: obtaining the stack allocation, wiring the entry function,
// and leaving the PCB Ready.
package trapframe

import (
	"github.com/jnwu/bkernel/pkg/kernel/proc"
)

// DefaultStackBytes is used when a caller doesn't care about stack sizing,
// standing in for the original kernel's fixed per-process stack region.
const DefaultStackBytes = 4096

// Factory wraps a process table to build new processes.
type Factory struct {
	table *proc.Table
}

func New(table *proc.Table) *Factory {
	return &Factory{table: table}
}

// Create allocates a stack, assigns a PID, and returns a new PCB in the
// Ready state running entry. The sentinel return address the original
// kernel writes below entry — so that returning from
// the top-level function lands in sysstop — is played here by
// ctxswitch.run: a process whose Entry returns traps sysno.Stop on its
// behalf.
func (f *Factory) Create(entry proc.Entry, stackBytes int) (*proc.PCB, error) {
	if stackBytes <= 0 {
		stackBytes = DefaultStackBytes
	}
	return f.table.Create(entry, stackBytes)
}
