package transport

import (
	"sync"

	"github.com/gobwas/pool/pbytes"
)

// writeQueue is the outbound side of the transport: an unbounded
// multi-producer queue of pre-serialized frame buffers, drained by exactly
// one writer goroutine. Enqueue never blocks a producer; memory growth is
// the accepted trade-off.
type writeQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	bufs   [][]byte
	closed bool

	// done is closed by the writer loop once the queue is closed and
	// fully drained.
	done chan struct{}
}

func newWriteQueue() *writeQueue {
	q := &writeQueue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// enqueue appends buf in FIFO order. Ownership of buf transfers to the
// queue. After close, buf is returned to the shared pool and silently
// dropped.
func (q *writeQueue) enqueue(buf []byte) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		pbytes.Put(buf)
		return
	}
	q.bufs = append(q.bufs, buf)
	q.cond.Signal()
	q.mu.Unlock()
}

// drain removes and returns every queued buffer, blocking until at least
// one is available or the queue is closed. ok is false only once the queue
// is closed and empty, which is the writer loop's exit condition.
func (q *writeQueue) drain() (batch [][]byte, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.bufs) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.bufs) == 0 {
		return nil, false
	}
	batch = q.bufs
	q.bufs = nil
	return batch, true
}

// close marks the queue complete. No further buffers are accepted; the
// writer loop drains what remains and exits.
func (q *writeQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// wait blocks until the writer loop has exited.
func (q *writeQueue) wait() {
	<-q.done
}
