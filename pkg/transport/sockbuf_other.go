//go:build !unix

package transport

import "net"

// socketBufferSizes falls back to fixed sizes on platforms without
// SO_RCVBUF/SO_SNDBUF introspection.
func socketBufferSizes(conn net.Conn) (read, write int) {
	return defaultBufferSize, defaultBufferSize
}
