package transport

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// DialWebSocket connects to a broker exposed behind a WebSocket endpoint
// and returns it as an ordinary byte stream: bytes written travel as
// binary messages and inbound binary messages surface as a contiguous
// stream. The result is passed to NewConn; deadlines, addresses, and Close
// operate on the underlying socket.
func DialWebSocket(ctx context.Context, url string) (net.Conn, error) {
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial websocket %s: %w", url, err)
	}

	// Data buffered during the handshake must not be lost.
	rw := io.ReadWriter(conn)
	if br != nil {
		rw = struct {
			io.Reader
			io.Writer
		}{br, conn}
	}
	return &wsStream{Conn: conn, rw: rw}, nil
}

// wsStream adapts a client-side websocket connection to byte-stream
// semantics. Read and Write each expect a single goroutine, which matches
// the transport's single writer loop and single reader.
type wsStream struct {
	net.Conn

	// rw is where websocket messages are read from and control replies
	// written to; reads may go through the handshake's buffered reader.
	rw io.ReadWriter

	// rest holds the unconsumed tail of the last binary message.
	rest []byte
}

// Read implements net.Conn.
func (s *wsStream) Read(p []byte) (int, error) {
	for len(s.rest) == 0 {
		data, err := wsutil.ReadServerBinary(s.rw)
		if err != nil {
			return 0, err
		}
		s.rest = data
	}
	n := copy(p, s.rest)
	s.rest = s.rest[n:]
	return n, nil
}

// Write implements net.Conn.
func (s *wsStream) Write(p []byte) (int, error) {
	if err := wsutil.WriteClientBinary(s.Conn, p); err != nil {
		return 0, err
	}
	return len(p), nil
}
