// Package sleep implements a delta-list sleep device: a list of sleeping
// PCBs ordered by absolute wake time, but storing each element's wait as a
// delta from the element before it, so that advancing time by one quantum
// only ever touches the head.
package sleep

import (
	"fmt"
	"strings"

	"github.com/jnwu/bkernel/pkg/kernel/klog"
	"github.com/jnwu/bkernel/pkg/kernel/proc"
)

// Device is the sleep delta list. The zero value is an empty device ready
// to use.
type Device struct {
	head *proc.PCB

	// elapsed counts slices since the current head's delta was last
	// "rebased" — either because it was just inserted as head, or
	// because the previous head fired and this one took over. It is
	// never subtracted back into head.DeltaSlice directly; Sleep and
	// WakeEarly both compute the head's effective remaining time on
	// the fly as head.DeltaSlice - elapsed, the same way Tick compares
	// elapsed against the raw stored value instead of maintaining a
	// live countdown.
	elapsed uint
}

// Sleep inserts p into the delta list according to p.DeltaSlice, which the
// caller must have already set to the requested number of slices. It
// returns the total number of slices from now until p will fire — the sum
// of every delta up to and including p's own. A nil p returns 0
// defensively, matching the original kernel's sleep(NULL) behavior.
//
// The insertion walk is grounded on the original kernel's sleep()
// (original_source/c/sleep.c: same head-special-case, same
// walk-and-decrement shape) but corrected to account for elapsed, slices
// already consumed against the current head since it was last rebased.
// The original C never does this (it compares against the raw stored head
// delta), which silently misplaces anything inserted after a partial tick
// has elapsed against the head.
func (d *Device) Sleep(p *proc.PCB) uint {
	if p == nil {
		return 0
	}

	if d.head == nil {
		d.head = p
		p.Next = nil
		d.elapsed = 0
		return p.DeltaSlice
	}

	headRemaining := d.head.DeltaSlice - d.elapsed

	if p.DeltaSlice < headRemaining {
		oldHead := d.head
		oldHead.DeltaSlice = headRemaining - p.DeltaSlice
		p.Next = oldHead
		d.head = p
		d.elapsed = 0
		return p.DeltaSlice
	}

	cnt := headRemaining
	remaining := p.DeltaSlice - headRemaining
	prev := d.head
	for cur := d.head.Next; cur != nil && cur.DeltaSlice <= remaining; cur = cur.Next {
		cnt += cur.DeltaSlice
		remaining -= cur.DeltaSlice
		prev = cur
	}

	if prev.Next != nil {
		prev.Next.DeltaSlice -= remaining
	}
	p.DeltaSlice = remaining
	p.Next = prev.Next
	prev.Next = p

	return cnt + remaining
}

// Tick advances the elapsed-slice counter and reports whether the head of
// the list has fired this slice. It does not itself wake anyone; the
// dispatcher calls Wake when Tick returns true.
func (d *Device) Tick() bool {
	if d.head == nil {
		return false
	}
	d.elapsed++
	if d.elapsed == d.head.DeltaSlice {
		d.elapsed = 0
		return true
	}
	return false
}

// Wake pops the head of the list, marks it Ready, and returns it along
// with every successor sharing the same wake moment (delta 0), in list
// order. The caller is responsible for enqueueing the returned PCBs onto
// Ready. A normal (non-early) wake always reports full completion:
// ReturnCode 0, "0 unslept ms".
func (d *Device) Wake() []*proc.PCB {
	if d.head == nil {
		return nil
	}
	woken := make([]*proc.PCB, 0, 1)

	p := d.head
	d.head = p.Next
	p.Next = nil
	p.State = proc.Ready
	p.ReturnCode = 0
	woken = append(woken, p)

	for d.head != nil && d.head.DeltaSlice == 0 {
		p = d.head
		d.head = p.Next
		p.Next = nil
		p.State = proc.Ready
		p.ReturnCode = 0
		woken = append(woken, p)
	}

	klog.Debugf("sleep: woke %d process(es)", len(woken))
	return woken
}

// WakeEarly removes p from the list before its turn, wherever it sits
// (head or interior), and reports the residual delay it would still have
// slept — the value that becomes p's return code, so the caller learns how
// much of the requested sleep was cancelled. The successor, if any,
// absorbs p's delta so every later element's absolute wake time is
// preserved.
//
// Open Question (a): the original wake_early assumes sleep_q is non-nil
// and dereferences sleep_q->pid before checking anything else, which
// crashes if called on an empty list. This implementation guards that
// case explicitly and returns false.
func (d *Device) WakeEarly(p *proc.PCB) bool {
	if p == nil || d.head == nil {
		return false
	}

	if d.head == p {
		residual := p.DeltaSlice - d.elapsed
		d.head = p.Next
		p.Next = nil
		d.elapsed = 0
		if d.head != nil {
			d.head.DeltaSlice += residual
		}
		p.ReturnCode = int(residual)
		p.State = proc.Ready
		return true
	}

	cnt := d.head.DeltaSlice - d.elapsed
	for cur := d.head; cur != nil && cur.Next != nil; cur = cur.Next {
		if cur.Next == p {
			cur.Next = p.Next
			p.Next = nil
			if cur.Next != nil {
				cur.Next.DeltaSlice += p.DeltaSlice
			}
			p.ReturnCode = int(cnt + p.DeltaSlice)
			p.State = proc.Ready
			return true
		}
		cnt += cur.Next.DeltaSlice
	}
	return false
}

// Len reports how many processes are currently sleeping. A direct port of
// the original kernel's sleeper() diagnostic accessor.
func (d *Device) Len() int {
	n := 0
	for cur := d.head; cur != nil; cur = cur.Next {
		n++
	}
	return n
}

// String dumps each sleeping PID and its delta slice, e.g. "sleep_q: 3(2)
// 7(3)". A direct port of the original kernel's puts_sleep_q diagnostic,
// returned as a string instead of printed through kprintf.
func (d *Device) String() string {
	var b strings.Builder
	b.WriteString("sleep_q: ")
	for cur := d.head; cur != nil; cur = cur.Next {
		fmt.Fprintf(&b, "%d(%d) ", cur.PID, cur.DeltaSlice)
	}
	return b.String()
}
