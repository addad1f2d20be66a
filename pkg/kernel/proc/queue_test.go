package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFOOrder(t *testing.T) {
	var q Queue
	a, b, c := &PCB{PID: 1}, &PCB{PID: 2}, &PCB{PID: 3}
	q.Append(a)
	q.Append(b)
	q.Append(c)

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, a, q.Pop())
	assert.Equal(t, b, q.Pop())
	assert.Equal(t, c, q.Pop())
	assert.Nil(t, q.Pop())
	assert.True(t, q.Empty())
}

func TestQueueRemoveInterior(t *testing.T) {
	var q Queue
	a, b, c := &PCB{PID: 1}, &PCB{PID: 2}, &PCB{PID: 3}
	q.Append(a)
	q.Append(b)
	q.Append(c)

	require.True(t, q.Remove(b))
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, a, q.Pop())
	assert.Equal(t, c, q.Pop())
}

func TestQueueRemoveTailUpdatesTail(t *testing.T) {
	var q Queue
	a, b := &PCB{PID: 1}, &PCB{PID: 2}
	q.Append(a)
	q.Append(b)

	require.True(t, q.Remove(b))
	// Appending again must land after a, proving q.tail was fixed up.
	c := &PCB{PID: 3}
	q.Append(c)
	assert.Equal(t, a, q.Pop())
	assert.Equal(t, c, q.Pop())
}

func TestQueueRemoveMissingReturnsFalse(t *testing.T) {
	var q Queue
	a := &PCB{PID: 1}
	q.Append(a)
	assert.False(t, q.Remove(&PCB{PID: 99}))
	assert.Equal(t, 1, q.Len())
}
