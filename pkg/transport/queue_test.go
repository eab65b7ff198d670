package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteQueue_FIFO(t *testing.T) {
	q := newWriteQueue()
	q.enqueue([]byte("one"))
	q.enqueue([]byte("two"))
	q.enqueue([]byte("three"))

	batch, ok := q.drain()
	require.True(t, ok)
	require.Len(t, batch, 3)
	assert.Equal(t, "one", string(batch[0]))
	assert.Equal(t, "two", string(batch[1]))
	assert.Equal(t, "three", string(batch[2]))
}

func TestWriteQueue_DrainBlocksUntilEnqueue(t *testing.T) {
	q := newWriteQueue()

	got := make(chan [][]byte, 1)
	go func() {
		batch, _ := q.drain()
		got <- batch
	}()

	time.Sleep(20 * time.Millisecond)
	q.enqueue([]byte("late"))

	select {
	case batch := <-got:
		require.Len(t, batch, 1)
		assert.Equal(t, "late", string(batch[0]))
	case <-time.After(time.Second):
		t.Fatal("drain did not wake on enqueue")
	}
}

func TestWriteQueue_CloseWakesDrain(t *testing.T) {
	q := newWriteQueue()

	done := make(chan bool, 1)
	go func() {
		_, ok := q.drain()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.close()

	select {
	case ok := <-done:
		assert.False(t, ok, "drain must report completion once closed and empty")
	case <-time.After(time.Second):
		t.Fatal("drain did not wake on close")
	}
}

func TestWriteQueue_DrainsRemainderAfterClose(t *testing.T) {
	q := newWriteQueue()
	q.enqueue([]byte("a"))
	q.enqueue([]byte("b"))
	q.close()

	batch, ok := q.drain()
	require.True(t, ok, "queued buffers must survive close")
	assert.Len(t, batch, 2)

	_, ok = q.drain()
	assert.False(t, ok)
}

func TestWriteQueue_EnqueueAfterCloseIsDropped(t *testing.T) {
	q := newWriteQueue()
	q.close()
	q.enqueue(make([]byte, 8))

	_, ok := q.drain()
	assert.False(t, ok)
}
