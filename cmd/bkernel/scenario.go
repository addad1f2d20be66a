package main

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/jnwu/bkernel/pkg/kernel/dispatch"
	"github.com/jnwu/bkernel/pkg/kernel/hal"
	"github.com/jnwu/bkernel/pkg/kernel/proc"
	"github.com/jnwu/bkernel/pkg/kernel/sysno"
)

// scenarios maps each scripted end-to-end scenario's name to its driver.
// These mirror this kernel's design documents' testable-properties section
// one for one.
var scenarios = map[string]func(io.Writer) error{
	"simple-sleep":     scenarioSimpleSleep,
	"interleaved-sleep": scenarioInterleavedSleep,
	"send-first":       scenarioSendFirst,
	"recv-first-short": scenarioRecvFirstShort,
	"deadlock":         scenarioDeadlock,
	"early-wake-kill":  scenarioEarlyWakeKill,
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newScenarioDispatcher() (*dispatch.Dispatcher, *hal.ManualTickSource) {
	ticks := hal.NewManualTickSource()
	d := dispatch.New(8, hal.NewHeapAllocator(0), ticks, hal.NewWriterConsole(io.Discard))
	return d, ticks
}

func scenarioSimpleSleep(w io.Writer) error {
	d, ticks := newScenarioDispatcher()
	p, err := d.Create(proc.Entry(func(t proc.Trap) {
		t.Syscall(sysno.Sleep, uint(100))
		t.Syscall(sysno.Stop)
	}), 0)
	if err != nil {
		return err
	}

	d.Step() // p traps SLEEP, becomes Sleeping
	for i := 0; i < 10; i++ {
		ticks.Tick()
		d.Step()
	}
	d.Step() // p already ran to STOP in the step that drained its waking tick; this one runs idle

	fmt.Fprintf(w, "simple-sleep: pid %d reclaimed=%v\n", p.PID, d.Lookup(p.PID) == nil)
	return nil
}

func scenarioInterleavedSleep(w io.Writer) error {
	d, ticks := newScenarioDispatcher()
	done := map[string]bool{}

	_, err := d.Create(proc.Entry(func(t proc.Trap) {
		t.Syscall(sysno.Sleep, uint(30))
		done["a"] = true
		t.Syscall(sysno.Stop)
	}), 0)
	if err != nil {
		return err
	}
	d.Step() // A traps SLEEP

	ticks.Tick()
	d.Step() // 1 tick consumed against A

	_, err = d.Create(proc.Entry(func(t proc.Trap) {
		t.Syscall(sysno.Sleep, uint(50))
		done["b"] = true
		t.Syscall(sysno.Stop)
	}), 0)
	if err != nil {
		return err
	}
	d.Step() // B traps SLEEP, inserted behind A

	for i := 0; i < 2; i++ {
		ticks.Tick()
		d.Step()
	}
	d.Step() // A woke and ran to STOP in the loop's last step; this one runs idle

	for i := 0; i < 3; i++ {
		ticks.Tick()
		d.Step()
	}
	d.Step() // B woke and ran to STOP in the loop's last step; this one runs idle

	fmt.Fprintf(w, "interleaved-sleep: a-woke=%v b-woke=%v\n", done["a"], done["b"])
	return nil
}

func scenarioSendFirst(w io.Writer) error {
	d, _ := newScenarioDispatcher()
	recvBuf := make([]byte, 10)
	var recvLen, sendLen int
	var fromPID, p2PID uint32

	// The sender is created first so it runs first and blocks.
	_, err := d.Create(proc.Entry(func(t proc.Trap) {
		sendLen = t.Syscall(sysno.Send, p2PID, []byte("abcd"))
	}), 0)
	if err != nil {
		return err
	}

	p2, err := d.Create(proc.Entry(func(t proc.Trap) {
		recvLen = t.Syscall(sysno.Recv, uint32(0), recvBuf, &fromPID)
	}), 0)
	if err != nil {
		return err
	}
	p2PID = p2.PID

	for i := 0; i < 4; i++ {
		d.Step()
	}

	fmt.Fprintf(w, "send-first: send=%d recv=%d buf=%q\n", sendLen, recvLen, bytes.TrimRight(recvBuf, "\x00"))
	return nil
}

func scenarioRecvFirstShort(w io.Writer) error {
	d, _ := newScenarioDispatcher()
	recvBuf := make([]byte, 2)
	var recvLen, sendLen int
	var fromPID uint32

	p2, err := d.Create(proc.Entry(func(t proc.Trap) {
		recvLen = t.Syscall(sysno.Recv, uint32(0), recvBuf, &fromPID)
	}), 0)
	if err != nil {
		return err
	}
	d.Step() // P2 blocks on recv-any

	_, err = d.Create(proc.Entry(func(t proc.Trap) {
		sendLen = t.Syscall(sysno.Send, p2.PID, []byte("abcd"))
	}), 0)
	if err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		d.Step()
	}

	fmt.Fprintf(w, "recv-first-short: send=%d recv=%d buf=%q\n", sendLen, recvLen, recvBuf)
	return nil
}

func scenarioDeadlock(w io.Writer) error {
	d, _ := newScenarioDispatcher()
	var p1Code, p2Code int
	var p2PID uint32

	p1, err := d.Create(proc.Entry(func(t proc.Trap) {
		p1Code = t.Syscall(sysno.Send, p2PID, []byte("x"))
	}), 0)
	if err != nil {
		return err
	}

	p2, err := d.Create(proc.Entry(func(t proc.Trap) {
		p2Code = t.Syscall(sysno.Send, p1.PID, []byte("y"))
	}), 0)
	if err != nil {
		return err
	}
	p2PID = p2.PID

	for i := 0; i < 4; i++ {
		d.Step()
	}

	fmt.Fprintf(w, "deadlock: p1-rc=%d p2-rc=%d (p2 gets ERR_IPC=%d on the cycle, then p1 gets it when p2 stops)\n", p1Code, p2Code, sysno.ErrIPC)
	return nil
}

func scenarioEarlyWakeKill(w io.Writer) error {
	d, ticks := newScenarioDispatcher()
	p, err := d.Create(proc.Entry(func(t proc.Trap) {
		t.Syscall(sysno.Sleep, uint(1000))
	}), 0)
	if err != nil {
		return err
	}
	d.Step() // p traps SLEEP

	for i := 0; i < 30; i++ {
		ticks.Tick()
		d.Step()
	}

	d.Kill(p)

	for i := 0; i < 70; i++ {
		ticks.Tick()
		d.Step()
	}

	fmt.Fprintf(w, "early-wake-kill: reclaimed=%v sleeping=%d\n", d.Lookup(p.PID) == nil, d.SleepLen())
	return nil
}
