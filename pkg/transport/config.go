// Package transport implements the physical broker connection: dual-stack
// establishment with IPv6-to-IPv4 fallback, optional secure-stream upgrade,
// buffered framed I/O with a dedicated writer goroutine, and idempotent
// shutdown. One Conn represents exactly one connection for its lifetime;
// reconnection policy belongs to the layer above.
package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/omochice/amqwire/pkg/protocol"
)

// DefaultPort is the customary plain-text broker port.
const DefaultPort = 5672

// DefaultTLSPort is the customary TLS broker port.
const DefaultTLSPort = 5671

// DefaultConnectTimeout bounds connection establishment when the config
// does not say otherwise.
const DefaultConnectTimeout = 30 * time.Second

// defaultBufferSize sizes the buffered streams when the socket's kernel
// buffer sizes cannot be queried.
const defaultBufferSize = 64 * 1024

// AddressFamily selects which IP address families connection establishment
// may use.
type AddressFamily int

const (
	// AddressFamilyAny prefers IPv6 and falls back to IPv4.
	AddressFamilyAny AddressFamily = iota
	// AddressFamilyIPv4 restricts connection attempts to IPv4.
	AddressFamilyIPv4
	// AddressFamilyIPv6 restricts connection attempts to IPv6.
	AddressFamilyIPv6
)

// Resolver resolves a hostname to candidate IP addresses. *net.Resolver
// satisfies it; tests substitute their own.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Config describes the endpoint a Conn connects to. It is immutable after
// Dial; the timeout mutators on Conn adjust the live socket instead.
type Config struct {
	// Host is the broker hostname or address.
	Host string
	// Port is the broker port; zero means DefaultPort.
	Port int
	// Family restricts connection establishment to one address family.
	Family AddressFamily

	// ConnectTimeout bounds each connection attempt; zero means
	// DefaultConnectTimeout.
	ConnectTimeout time.Duration
	// ReadTimeout bounds each frame read; zero means no limit.
	ReadTimeout time.Duration
	// WriteTimeout bounds each outbound write batch; zero means no limit.
	WriteTimeout time.Duration

	// MaxFrameSize bounds the payload length accepted from the wire; zero
	// means protocol.DefaultMaxFrameSize.
	MaxFrameSize uint32

	// Version is the protocol revision announced by SendProtocolHeader.
	// The zero value means protocol.V091.
	Version protocol.Version

	// TLS enables the secure-stream upgrade when non-nil.
	TLS *tls.Config
	// Upgrader overrides the TLS-based upgrade with a custom one. When set,
	// it takes precedence over TLS.
	Upgrader StreamUpgrader

	// Resolver overrides hostname resolution; nil means the system resolver.
	Resolver Resolver

	// Logger receives transport events (connected, bytes flushed, closed).
	// The zero value discards them.
	Logger zerolog.Logger
}

// DefaultConfig returns a Config for host with the customary defaults.
func DefaultConfig(host string) Config {
	return Config{
		Host:           host,
		Port:           DefaultPort,
		ConnectTimeout: DefaultConnectTimeout,
		MaxFrameSize:   protocol.DefaultMaxFrameSize,
		Version:        protocol.V091,
	}
}

// withDefaults fills in zero-valued fields.
func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = protocol.DefaultMaxFrameSize
	}
	if c.Version == (protocol.Version{}) {
		c.Version = protocol.V091
	}
	return c
}

// upgrader returns the configured secure-stream upgrade, or nil when the
// connection stays plain.
func (c Config) upgrader() StreamUpgrader {
	if c.Upgrader != nil {
		return c.Upgrader
	}
	if c.TLS != nil {
		return &TLSUpgrader{Config: c.TLS, HandshakeTimeout: c.ConnectTimeout}
	}
	return nil
}
