package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// StreamUpgrader wraps an established raw stream in transport security.
// The transport closes the raw connection itself when an upgrade fails, so
// implementations only need to report the error.
type StreamUpgrader interface {
	Upgrade(conn net.Conn) (net.Conn, error)
}

// TLSUpgrader performs a client-side TLS handshake over the raw stream.
// Certificate policy lives entirely in Config.
type TLSUpgrader struct {
	Config *tls.Config
	// HandshakeTimeout bounds the handshake; zero means no limit.
	HandshakeTimeout time.Duration
}

// Upgrade implements StreamUpgrader.
func (u *TLSUpgrader) Upgrade(conn net.Conn) (net.Conn, error) {
	tlsConn := tls.Client(conn, u.Config)

	ctx := context.Background()
	if u.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.HandshakeTimeout)
		defer cancel()
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to complete TLS handshake: %w", err)
	}
	return tlsConn, nil
}
