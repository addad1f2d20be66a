package hal

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
)

// HeapAllocator is the simplest possible Allocator: it satisfies every
// request from the Go heap. It is the stand-in used by cmd/bkernel and by
// tests in place of a real kmalloc/kfree pair; the kernel core never
// assumes anything about the allocator beyond the Allocator interface.
type HeapAllocator struct {
	limit int
}

// NewHeapAllocator returns an allocator that fails any single allocation
// larger than limit bytes; it does not track how many bytes are
// outstanding. limit <= 0 means unlimited; a positive limit lets tests
// exercise the resource-exhaustion path.
func NewHeapAllocator(limit int) *HeapAllocator {
	return &HeapAllocator{limit: limit}
}

func (h *HeapAllocator) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.Errorf("hal: invalid allocation size %d", size)
	}
	if h.limit > 0 && size > h.limit {
		return nil, errors.Wrapf(errExhausted, "hal: requested %d bytes, limit %d", size, h.limit)
	}
	return make([]byte, size), nil
}

func (h *HeapAllocator) Free([]byte) {
	// The Go GC reclaims the block once the PCB drops its reference;
	// there is nothing else to release.
}

var errExhausted = errors.New("allocator exhausted")

// IsExhausted reports whether err is (or wraps) the allocator's
// resource-exhaustion sentinel, letting callers distinguish it from a bad
// argument before collapsing both to sysno.ErrNoSlot.
func IsExhausted(err error) bool {
	return errors.Cause(err) == errExhausted
}

// TickerSource drives a TickSource off a time.Ticker, simulating the
// 8259/APIC timer firing once per sleep quantum.
type TickerSource struct {
	period  time.Duration
	ticksCh chan struct{}
}

// NewTickerSource returns a TickSource that fires once every period. The
// dispatcher and sleep device both work in slices, not wall time; period
// is normally ktime.Quantum.
func NewTickerSource(period time.Duration) *TickerSource {
	return &TickerSource{period: period, ticksCh: make(chan struct{}, 1)}
}

func (t *TickerSource) C() <-chan struct{} { return t.ticksCh }

func (t *TickerSource) Run(ctx context.Context) {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case t.ticksCh <- struct{}{}:
			default:
				// A tick is still pending; the dispatcher has fallen
				// behind. Coalescing here matches real timer hardware,
				// which does not queue missed interrupts either.
			}
		}
	}
}

// ManualTickSource is a TickSource a test drives explicitly, one slice at
// a time, instead of racing against a wall-clock ticker.
type ManualTickSource struct {
	ticksCh chan struct{}
}

func NewManualTickSource() *ManualTickSource {
	return &ManualTickSource{ticksCh: make(chan struct{}, 1)}
}

func (m *ManualTickSource) C() <-chan struct{} { return m.ticksCh }

func (m *ManualTickSource) Run(ctx context.Context) { <-ctx.Done() }

// Tick queues a single timer interrupt for the dispatcher's next drain.
// The channel holds one pending tick, so Tick returns at once when none is
// pending and blocks only until the previous tick has been accepted.
func (m *ManualTickSource) Tick() {
	m.ticksCh <- struct{}{}
}

// WriterConsole writes PUTS output to an io.Writer, the simulated
// equivalent of kprintf writing to the VGA console.
type WriterConsole struct {
	w io.Writer
}

func NewWriterConsole(w io.Writer) *WriterConsole {
	return &WriterConsole{w: w}
}

func (c *WriterConsole) Print(s string) {
	fmt.Fprint(c.w, s)
}

// GateLog is a GateInstaller that only logs registrations; there is no
// real IDT to program in a simulated kernel.
type GateLog struct {
	Installed map[int]bool
}

func NewGateLog() *GateLog {
	return &GateLog{Installed: make(map[int]bool)}
}

func (g *GateLog) InstallGate(vector int, handler func()) {
	g.Installed[vector] = true
	_ = handler
}
