package dial

import (
	"errors"
	"net"
	"time"
)

// ErrTimeout is returned when a connection attempt does not settle within
// its deadline.
var ErrTimeout = errors.New("dial: connection attempt timed out")

type connResult struct {
	conn net.Conn
	err  error
}

// runWithTimeout runs op, giving up after d. When the deadline passes
// first, the attempt's eventual outcome is still collected in the
// background: a late-established connection is closed and its error
// discarded, so a timed-out attempt never leaks a socket or a stray fault.
// An op that settles in time has its own result returned undisturbed.
func runWithTimeout(d time.Duration, op func() (net.Conn, error)) (net.Conn, error) {
	if d <= 0 {
		return op()
	}

	ch := make(chan connResult, 1)
	go func() {
		conn, err := op()
		ch <- connResult{conn: conn, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.conn, res.err
	case <-timer.C:
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ErrTimeout
	}
}
