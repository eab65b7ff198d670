//go:build unix

package transport

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// socketBufferSizes reports the kernel receive and send buffer sizes for
// conn, so each buffered stream holds what the socket can. Connections
// that are not introspectable (pipes, in-memory test conns) get
// defaultBufferSize.
func socketBufferSizes(conn net.Conn) (read, write int) {
	read, write = defaultBufferSize, defaultBufferSize

	sc, ok := conn.(syscall.Conn)
	if !ok {
		return read, write
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return read, write
	}
	_ = raw.Control(func(fd uintptr) {
		if n, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF); err == nil && n > 0 {
			read = n
		}
		if n, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF); err == nil && n > 0 {
			write = n
		}
	})
	return read, write
}
