package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	rq := NewRingQueue[int](3)
	require.True(t, rq.IsEmpty())

	require.NoError(t, rq.Enqueue(1))
	require.NoError(t, rq.Enqueue(2))
	require.NoError(t, rq.Enqueue(3))
	require.True(t, rq.IsFull())
	assert.Equal(t, 3, rq.Len())

	err := rq.Enqueue(4)
	require.Error(t, err)

	v, err := rq.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = rq.Peek()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, rq.Len())
}

func TestRingQueueWraps(t *testing.T) {
	rq := NewRingQueue[string](2)
	for i := 0; i < 5; i++ {
		require.NoError(t, rq.Enqueue("a"))
		require.NoError(t, rq.Enqueue("b"))

		v, err := rq.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, "a", v)
		v, err = rq.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, "b", v)
	}
	require.True(t, rq.IsEmpty())

	_, err := rq.Dequeue()
	require.Error(t, err)
}
