// Package hal declares the boundary between the kernel core and its
// external collaborators: the physical allocator, the raw interrupt-gate
// installer, the timer tick source, and the console sink. These are
// explicitly out of scope for the core — kmalloc/kfree, lidt/init8259, and
// kprintf are assumed to exist, not implemented here.
//
// The kernel core depends only on these four small interfaces, never on a
// concrete allocator or console. sim.go in this package supplies the
// default, in-memory implementations used by cmd/bkernel and by tests.
package hal

import "context"

// Allocator hands out owned, exclusively-held byte blocks, standing in for
// kmalloc/kfree. A block returned by Alloc must be passed back to Free
// exactly once, when (and only when) its owning process stops — stack
// ownership is exclusive.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free(block []byte)
}

// GateInstaller installs the single trap gate the context switcher uses as
// its sole kernel entry point. handler is invoked whenever the installed
// vector traps; a real installer would program the IDT and PIC, a
// simulated one just records the registration.
type GateInstaller interface {
	InstallGate(vector int, handler func())
}

// TickSource delivers timer interrupts. Each value received on C
// represents one hardware timer firing, quantized to one sleep slice.
type TickSource interface {
	C() <-chan struct{}
	Run(ctx context.Context)
}

// ConsoleSink is the "print string" boundary PUTS writes through, standing
// in for kprintf.
type ConsoleSink interface {
	Print(s string)
}
