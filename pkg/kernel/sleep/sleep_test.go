package sleep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnwu/bkernel/pkg/kernel/proc"
)

func mkSleeper(pid uint32, slices uint) *proc.PCB {
	return &proc.PCB{PID: pid, DeltaSlice: slices}
}

func TestSleepSingleEntry(t *testing.T) {
	var d Device
	p := mkSleeper(1, 5)
	require.EqualValues(t, 5, d.Sleep(p))
	require.Equal(t, 1, d.Len())
}

// TestSleepInterleaved reproduces the documented scenario: A sleeps 30ms (3
// slices) at time 0, one slice elapses, then B sleeps 50ms (5 slices) at
// time 10ms. A must still wake at slice 3 (2 slices after B's insertion)
// and B must wake 3 slices after that, at slice 6 overall — the elapsed
// tick already consumed against the head must not be double-counted
// against B's insertion point.
func TestSleepInterleaved(t *testing.T) {
	var d Device
	a := mkSleeper(1, 3)
	require.EqualValues(t, 3, d.Sleep(a))

	require.False(t, d.Tick()) // one slice elapses against A before B arrives

	b := mkSleeper(2, 5)
	total := d.Sleep(b)
	require.EqualValues(t, 5, total, "total slices from now until B fires")
	require.Equal(t, a, d.head)
	require.Equal(t, b, a.Next)

	assert.False(t, d.Tick())
	assert.True(t, d.Tick(), "A fires after 2 more ticks (3 since its own Sleep call)")
	woken := d.Wake()
	require.Len(t, woken, 1)
	assert.Equal(t, a, woken[0])

	assert.False(t, d.Tick())
	assert.False(t, d.Tick())
	assert.True(t, d.Tick(), "B fires 3 ticks after A")
	woken = d.Wake()
	require.Len(t, woken, 1)
	assert.Equal(t, b, woken[0])
}

func TestSleepInsertBeforeHead(t *testing.T) {
	var d Device
	long := mkSleeper(1, 10)
	d.Sleep(long)

	short := mkSleeper(2, 4)
	total := d.Sleep(short)
	assert.EqualValues(t, 4, total)
	assert.Equal(t, short, d.head)
	assert.Equal(t, uint(4), short.DeltaSlice)
	assert.Equal(t, uint(6), long.DeltaSlice)
}

func TestTickFiresAtHeadDelta(t *testing.T) {
	var d Device
	p := mkSleeper(1, 2)
	d.Sleep(p)

	assert.False(t, d.Tick())
	assert.True(t, d.Tick())
}

func TestWakePopsHeadAndZeroDeltaSuccessors(t *testing.T) {
	var d Device
	a := mkSleeper(1, 3)
	b := mkSleeper(2, 3)
	d.Sleep(a)
	d.Sleep(b) // same wake moment once a fires: b's stored delta becomes 0

	require.Equal(t, uint(0), b.DeltaSlice)

	woken := d.Wake()
	require.Len(t, woken, 2)
	assert.Equal(t, a, woken[0])
	assert.Equal(t, b, woken[1])
	assert.Equal(t, proc.Ready, a.State)
	assert.Equal(t, proc.Ready, b.State)
	assert.Equal(t, 0, a.ReturnCode)
	assert.Equal(t, 0, b.ReturnCode)
	assert.Nil(t, d.head)
}

func TestWakeEarlyHead(t *testing.T) {
	var d Device
	p := mkSleeper(1, 10)
	d.Sleep(p)
	d.Tick()
	d.Tick()
	d.Tick() // 3 slices elapsed against the head

	ok := d.WakeEarly(p)
	require.True(t, ok)
	assert.Equal(t, proc.Ready, p.State)
	assert.Equal(t, 7, p.ReturnCode, "residual slices still owed")
}

func TestWakeEarlyInterior(t *testing.T) {
	var d Device
	a := mkSleeper(1, 3)
	b := mkSleeper(2, 5)
	d.Sleep(a)
	d.Sleep(b)

	ok := d.WakeEarly(b)
	require.True(t, ok)
	assert.Equal(t, proc.Ready, b.State)
	assert.EqualValues(t, 5, b.ReturnCode, "b's absolute wake offset at the moment it was cancelled")
	assert.Equal(t, 1, d.Len())
	assert.Nil(t, a.Next)
}

func TestWakeEarlyOnEmptyListReturnsFalse(t *testing.T) {
	var d Device
	p := mkSleeper(1, 1)
	assert.False(t, d.WakeEarly(p))
	assert.False(t, d.WakeEarly(nil))
}

func TestSleepNilIsNoop(t *testing.T) {
	var d Device
	assert.EqualValues(t, 0, d.Sleep(nil))
	assert.Equal(t, 0, d.Len())
}
