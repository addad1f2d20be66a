// Package ktime holds the kernel's time-accounting primitives: the sleep
// quantum, millisecond-to-slice conversion, and the elapsed tick counter
// the dispatcher advances.
package ktime

import (
	"time"

	"gvisor.dev/gvisor/pkg/atomicbitops"
)

// Quantum is one sleep slice, CLOCK_DIVISOR/10 milliseconds with the
// original kernel's default CLOCK_DIVISOR of 100.
const Quantum = 10 * time.Millisecond

// MSToSlices converts a requested sleep duration to slices using ceiling
// division: (ms + 9) / 10, minimum 1.
func MSToSlices(ms uint) uint {
	slices := (ms + 9) / 10
	if slices < 1 {
		return 1
	}
	return slices
}

// Clock is the kernel's tick counter. The dispatcher increments it once
// per timer interrupt; the sleep device never reads it, since its wake
// logic is delta-based and does not consult Clock —
// the whole point of the delta list is avoiding an O(n) scan against a
// global clock.
//
// It uses atomicbitops.Int64 rather than a mutex-guarded int64, the same
// choice gVisor makes for its cross-goroutine numContexts counter
// (subprocess.numContexts), because this value is read far more
// often than it's written and the kernel already has exactly one writer
// (the dispatcher's timer path).
type Clock struct {
	ticks atomicbitops.Int64
}

func (c *Clock) Advance() int64 {
	return c.ticks.Add(1)
}

func (c *Clock) Ticks() int64 {
	return c.ticks.Load()
}
