package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnwu/bkernel/pkg/kernel/hal"
	"github.com/jnwu/bkernel/pkg/kernel/proc"
	"github.com/jnwu/bkernel/pkg/kernel/sysno"
)

func newTable(t *testing.T, n int) *proc.Table {
	t.Helper()
	return proc.NewTable(n, hal.NewHeapAllocator(0))
}

func create(t *testing.T, table *proc.Table) *proc.PCB {
	t.Helper()
	p, err := table.Create(func(proc.Trap) {}, 64)
	require.NoError(t, err)
	return p
}

func TestRecvBlocksThenSendRendezvous(t *testing.T) {
	table := newTable(t, 4)
	f := New(table, 4)

	r := create(t, table)
	s := create(t, table)

	rbuf := make([]byte, 10)
	n, from, woken, blocked := f.Recv(r, 0, rbuf)
	assert.True(t, blocked)
	assert.Nil(t, woken)
	assert.Zero(t, n)
	assert.Zero(t, from)
	assert.Equal(t, proc.BlockedOnRecv, r.State)

	n2, woken2, blocked2 := f.Send(s, r.PID, []byte("hi"))
	assert.False(t, blocked2)
	require.NotNil(t, woken2)
	assert.Equal(t, r, woken2)
	assert.Equal(t, 2, n2)
	assert.Equal(t, proc.Ready, r.State)
	assert.Equal(t, 2, r.IPCBufferLen)
	assert.Equal(t, "hi", string(rbuf[:2]))
	assert.Equal(t, 2, s.ReturnCode)
}

func TestSendBlocksThenRecvRendezvousShortBuffer(t *testing.T) {
	table := newTable(t, 4)
	f := New(table, 4)

	s := create(t, table)
	r := create(t, table)

	n, woken, blocked := f.Send(s, r.PID, []byte("abcd"))
	assert.True(t, blocked)
	assert.Nil(t, woken)
	assert.Zero(t, n)
	assert.Equal(t, proc.BlockedOnSend, s.State)
	assert.Equal(t, r, s.BlockedPeer)

	rbuf := make([]byte, 2)
	n2, from, woken2, blocked2 := f.Recv(r, 0, rbuf)
	assert.False(t, blocked2)
	require.NotNil(t, woken2)
	assert.Equal(t, s, woken2)
	assert.Equal(t, 2, n2)
	assert.Equal(t, s.PID, from)
	assert.Equal(t, "ab", string(rbuf))
	assert.Equal(t, 2, s.ReturnCode)
	assert.Equal(t, proc.Ready, s.State)
}

func TestSendToUnknownPIDErrors(t *testing.T) {
	table := newTable(t, 4)
	f := New(table, 4)
	s := create(t, table)

	n, woken, blocked := f.Send(s, 999, []byte("x"))
	assert.False(t, blocked)
	assert.Nil(t, woken)
	assert.Zero(t, n)
	assert.Equal(t, sysno.ErrDest, s.ReturnCode)
}

func TestSendToSelfIsLoopback(t *testing.T) {
	table := newTable(t, 4)
	f := New(table, 4)
	s := create(t, table)

	_, woken, blocked := f.Send(s, s.PID, []byte("x"))
	assert.False(t, blocked)
	assert.Nil(t, woken)
	assert.Equal(t, sysno.Loopback, s.ReturnCode)
}

func TestMutualSendDeadlockDetected(t *testing.T) {
	table := newTable(t, 4)
	f := New(table, 4)

	p1 := create(t, table)
	p2 := create(t, table)

	_, woken1, blocked1 := f.Send(p1, p2.PID, []byte("x"))
	require.True(t, blocked1)
	assert.Nil(t, woken1)
	assert.Equal(t, proc.BlockedOnSend, p1.State)

	_, woken2, blocked2 := f.Send(p2, p1.PID, []byte("y"))
	assert.False(t, blocked2, "p2 must detect the cycle rather than block")
	assert.Nil(t, woken2)
	assert.Equal(t, sysno.ErrIPC, p2.ReturnCode)
	assert.Equal(t, proc.BlockedOnSend, p1.State, "p1 remains blocked; the second caller fails instead")
}

func TestReleasePeersOnStop(t *testing.T) {
	table := newTable(t, 4)
	f := New(table, 4)

	dest := create(t, table)
	s1 := create(t, table)
	s2 := create(t, table)

	_, _, blocked := f.Send(s1, dest.PID, []byte("a"))
	require.True(t, blocked)
	_, _, blocked = f.Send(s2, dest.PID, []byte("b"))
	require.True(t, blocked)

	released := f.ReleasePeers(dest)
	require.Len(t, released, 2)
	for _, p := range released {
		assert.Equal(t, proc.Ready, p.State)
		assert.Equal(t, sysno.ErrIPC, p.ReturnCode)
		assert.Nil(t, p.BlockedPeer)
	}
}

func TestRecvFromSpecificSourceWaitsForThatSenderOnly(t *testing.T) {
	table := newTable(t, 4)
	f := New(table, 4)

	r := create(t, table)
	s1 := create(t, table)
	s2 := create(t, table)

	rbuf := make([]byte, 4)
	_, _, _, blocked := f.Recv(r, s2.PID, rbuf)
	require.True(t, blocked)

	// s1 sending doesn't satisfy a recv that named s2 specifically.
	_, woken, blocked := f.Send(s1, r.PID, []byte("no"))
	assert.True(t, blocked, "r is waiting on s2, not s1")
	assert.Nil(t, woken)

	_, woken2, blocked2 := f.Send(s2, r.PID, []byte("ok"))
	assert.False(t, blocked2)
	require.NotNil(t, woken2)
	assert.Equal(t, r, woken2)
	assert.Equal(t, "ok", string(rbuf[:2]))
}
