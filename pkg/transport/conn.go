package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/pool/pbytes"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/omochice/amqwire/internal/dial"
	"github.com/omochice/amqwire/pkg/protocol"
)

type connState int

const (
	stateConnected connState = iota
	stateClosed
)

// Conn is a single physical broker connection. It owns the socket, the
// buffered read and write streams over it, and the background writer
// goroutine draining the outbound queue.
//
// Write and WriteFrame are safe for concurrent use from any goroutine.
// ReadFrame expects a single dedicated reader. Close is safe to call
// concurrently and repeatedly.
type Conn struct {
	cfg Config
	log zerolog.Logger

	nc     net.Conn // raw socket
	stream net.Conn // nc, or its secured wrapper
	r      *bufio.Reader
	w      *bufio.Writer

	q *writeQueue

	// wmu serializes access to the buffered write stream between the
	// writer loop and SendProtocolHeader.
	wmu sync.Mutex

	readTimeout  atomic.Int64
	writeTimeout atomic.Int64

	mu    sync.Mutex // guards state
	state connState
}

// Dial resolves cfg.Host and establishes the connection, preferring IPv6
// and falling back to IPv4, then applies the optional secure-stream
// upgrade and installs the buffered streams. Any establishment fault is
// returned as a *ConnectionError; no partially-usable Conn is ever
// returned.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	cfg = cfg.withDefaults()

	d := &dial.Dialer{
		Resolver: cfg.Resolver,
		Timeout:  cfg.ConnectTimeout,
	}
	nc, err := d.Dial(ctx, cfg.Host, cfg.Port, dialFamily(cfg.Family))
	if err != nil {
		return nil, &ConnectionError{Host: cfg.Host, Port: cfg.Port, Err: err}
	}
	return newConn(nc, cfg)
}

// NewConn wraps an already-established stream, for example one produced by
// DialWebSocket or a test pipe. The secure-stream upgrade and buffered
// stream setup still apply.
func NewConn(nc net.Conn, cfg Config) (*Conn, error) {
	return newConn(nc, cfg.withDefaults())
}

func newConn(nc net.Conn, cfg Config) (*Conn, error) {
	stream := nc
	if up := cfg.upgrader(); up != nil {
		secured, err := up.Upgrade(nc)
		if err != nil {
			// No leaked socket on a failed upgrade.
			nc.Close()
			return nil, fmt.Errorf("failed to secure stream: %w", err)
		}
		stream = secured
	}

	readSize, writeSize := socketBufferSizes(nc)
	c := &Conn{
		cfg:    cfg,
		nc:     nc,
		stream: stream,
		r:      bufio.NewReaderSize(stream, readSize),
		w:      bufio.NewWriterSize(stream, writeSize),
		q:      newWriteQueue(),
	}
	c.readTimeout.Store(int64(cfg.ReadTimeout))
	c.writeTimeout.Store(int64(cfg.WriteTimeout))
	c.log = cfg.Logger.With().Str("conn_id", uuid.NewString()).Logger()

	go c.writeLoop()

	c.log.Debug().
		Stringer("local", nc.LocalAddr()).
		Stringer("remote", nc.RemoteAddr()).
		Msg("connected")
	return c, nil
}

// SendProtocolHeader writes the 8-byte protocol header directly to the
// buffered write stream and flushes immediately, bypassing the outbound
// queue. It is the one synchronous write, used once at connection start
// before any frame is enqueued.
func (c *Conn) SendProtocolHeader() error {
	header := c.cfg.Version.Header()

	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.applyWriteDeadline()
	if _, err := c.w.Write(header[:]); err != nil {
		return fmt.Errorf("failed to send protocol header: %w", err)
	}
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("failed to send protocol header: %w", err)
	}

	c.log.Debug().Stringer("version", c.cfg.Version).Msg("protocol header sent")
	return nil
}

// ReadFrame blocks until one complete frame arrives on the buffered read
// stream, bounded by the read timeout. Oversized or malformed frames fail
// with the protocol package's framing errors; the connection should be
// closed by the caller afterward.
func (c *Conn) ReadFrame() (*protocol.Frame, error) {
	c.applyReadDeadline()
	return protocol.ReadFrame(c.r, c.cfg.MaxFrameSize)
}

// Write enqueues a pre-serialized frame buffer for transmission and
// returns immediately. Ownership of buf transfers to the transport: it is
// returned to the shared buffer pool once written and must not be read or
// mutated by the caller afterward. After Close the buffer is silently
// dropped.
func (c *Conn) Write(buf []byte) {
	c.q.enqueue(buf)
}

// WriteFrame serializes f into a pooled buffer and enqueues it.
func (c *Conn) WriteFrame(f *protocol.Frame) error {
	buf := pbytes.GetLen(f.WireSize())
	if err := f.MarshalTo(buf); err != nil {
		pbytes.Put(buf)
		return err
	}
	c.q.enqueue(buf)
	return nil
}

// GetBuffer leases a buffer of length n from the shared pool, for callers
// serializing frames themselves before Write.
func GetBuffer(n int) []byte {
	return pbytes.GetLen(n)
}

// writeLoop is the single consumer of the outbound queue. Each cycle it
// writes every available buffer, flushes exactly once, and returns the
// buffers to the shared pool. It exits only when the queue is closed and
// fully drained. Once a write fails the remaining buffers are consumed
// without touching the broken stream; the failure surfaces to the caller
// through the read path, not from here.
func (c *Conn) writeLoop() {
	defer close(c.q.done)

	var failed bool
	for {
		batch, ok := c.q.drain()
		if !ok {
			return
		}

		c.wmu.Lock()
		var sent int
		for _, buf := range batch {
			if !failed {
				c.applyWriteDeadline()
				if _, err := c.w.Write(buf); err != nil {
					failed = true
					c.log.Debug().Err(err).Msg("outbound write failed")
				} else {
					sent += len(buf)
				}
			}
			pbytes.Put(buf)
		}
		if !failed {
			if err := c.w.Flush(); err != nil {
				failed = true
				c.log.Debug().Err(err).Msg("outbound flush failed")
			} else {
				c.log.Debug().Int("bytes", sent).Msg("bytes sent")
			}
		}
		c.wmu.Unlock()
	}
}

// Close tears the connection down: the outbound queue stops accepting
// buffers, the writer loop drains what remains and exits, and the socket
// is released. It runs to completion at most once; concurrent and repeated
// calls observe the closed state and return immediately. Teardown errors
// are deliberately discarded since the connection is going away regardless.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = stateClosed
	c.mu.Unlock()

	c.q.close()
	c.q.wait()

	if c.stream != c.nc {
		_ = c.stream.Close()
	}
	_ = c.nc.Close()

	c.log.Debug().Msg("closed")
	return nil
}

// SetReadTimeout adjusts the deadline applied to frame reads on the live
// socket. Zero disables the deadline. A failure to reposition the live
// deadline is swallowed only when the socket is already closed, a benign
// race with a concurrent Close; any other fault propagates.
func (c *Conn) SetReadTimeout(d time.Duration) error {
	c.readTimeout.Store(int64(d))
	if err := c.stream.SetReadDeadline(deadlineFor(d)); err != nil && !isClosedConn(err) {
		return err
	}
	return nil
}

// SetWriteTimeout adjusts the deadline applied to outbound writes on the
// live socket. Zero disables the deadline. Closed-socket faults are
// swallowed as in SetReadTimeout.
func (c *Conn) SetWriteTimeout(d time.Duration) error {
	c.writeTimeout.Store(int64(d))
	if err := c.stream.SetWriteDeadline(deadlineFor(d)); err != nil && !isClosedConn(err) {
		return err
	}
	return nil
}

// LocalAddr returns the socket's local address.
func (c *Conn) LocalAddr() net.Addr {
	return c.nc.LocalAddr()
}

// RemoteAddr returns the socket's remote address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// LocalPort returns the socket's local port, or zero when the address
// carries none.
func (c *Conn) LocalPort() int {
	return portOf(c.nc.LocalAddr())
}

// RemotePort returns the socket's remote port, or zero when the address
// carries none.
func (c *Conn) RemotePort() int {
	return portOf(c.nc.RemoteAddr())
}

func (c *Conn) applyReadDeadline() {
	// Errors here mean the socket is closing; the pending read reports it.
	_ = c.stream.SetReadDeadline(deadlineFor(time.Duration(c.readTimeout.Load())))
}

func (c *Conn) applyWriteDeadline() {
	_ = c.stream.SetWriteDeadline(deadlineFor(time.Duration(c.writeTimeout.Load())))
}

func deadlineFor(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}

func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

func portOf(addr net.Addr) int {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

func dialFamily(f AddressFamily) dial.Family {
	switch f {
	case AddressFamilyIPv4:
		return dial.FamilyIPv4
	case AddressFamilyIPv6:
		return dial.FamilyIPv6
	default:
		return dial.FamilyAny
	}
}
