package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnwu/bkernel/pkg/kernel/hal"
)

func noopEntry(Trap) {}

func TestCreateAssignsDistinctPIDs(t *testing.T) {
	table := NewTable(4, hal.NewHeapAllocator(0))

	p1, err := table.Create(noopEntry, 64)
	require.NoError(t, err)
	p2, err := table.Create(noopEntry, 64)
	require.NoError(t, err)

	assert.NotEqual(t, p1.PID, p2.PID)
	assert.Equal(t, Ready, p1.State)
	assert.NotNil(t, p1.StackBase)
}

func TestCreateFailsWhenTableFull(t *testing.T) {
	table := NewTable(2, hal.NewHeapAllocator(0))

	_, err := table.Create(noopEntry, 64)
	require.NoError(t, err)
	_, err = table.Create(noopEntry, 64)
	require.NoError(t, err)

	_, err = table.Create(noopEntry, 64)
	assert.ErrorIs(t, err, ErrNoFreeSlot)
}

func TestStopReleasesSlotAndStack(t *testing.T) {
	table := NewTable(1, hal.NewHeapAllocator(0))

	p, err := table.Create(noopEntry, 64)
	require.NoError(t, err)
	pid := p.PID

	table.Stop(p)
	assert.Equal(t, Stopped, p.State)
	assert.Nil(t, p.StackBase)
	assert.Nil(t, table.Lookup(pid), "a stopped PCB is not a live lookup result")

	// The freed slot is reusable.
	p2, err := table.Create(noopEntry, 64)
	require.NoError(t, err)
	assert.NotNil(t, p2)
}

func TestLookupFindsOnlyLiveProcesses(t *testing.T) {
	table := NewTable(2, hal.NewHeapAllocator(0))
	p, err := table.Create(noopEntry, 64)
	require.NoError(t, err)

	assert.Equal(t, p, table.Lookup(p.PID))
	assert.Nil(t, table.Lookup(p.PID+1000))
}

func TestCreateFailsOnAllocatorExhaustion(t *testing.T) {
	table := NewTable(2, hal.NewHeapAllocator(8))

	_, err := table.Create(noopEntry, 1024)
	require.Error(t, err)
}
