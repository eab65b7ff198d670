// Package dial establishes the physical broker connection across dual
// IPv4/IPv6 stacks: IPv6 is attempted first when eligible, and any IPv6
// failure falls back to IPv4 rather than propagating.
package dial

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Family restricts which address families a connection attempt may use.
type Family int

const (
	// FamilyAny lets the dialer pick freely, preferring IPv6.
	FamilyAny Family = iota
	// FamilyIPv4 restricts connection attempts to IPv4 addresses.
	FamilyIPv4
	// FamilyIPv6 restricts connection attempts to IPv6 addresses.
	FamilyIPv6
)

// String returns the string representation of Family.
func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	default:
		return "any"
	}
}

// Resolver resolves a hostname to candidate IP addresses. *net.Resolver
// satisfies it.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Dialer connects to a broker endpoint. The zero value uses the system
// resolver and a plain TCP connector with no attempt deadline.
type Dialer struct {
	// Resolver resolves hostnames; nil means net.DefaultResolver.
	Resolver Resolver

	// Connect opens one transport connection; nil means a net.Dialer.
	// Tests substitute it.
	Connect func(ctx context.Context, network, address string) (net.Conn, error)

	// Timeout bounds each individual connection attempt.
	Timeout time.Duration
}

// Dial resolves host and connects to port, honoring family:
//
//  1. If no IPv6 candidate resolved and family is FamilyIPv6, fail.
//  2. If an IPv6 candidate resolved and family is not FamilyIPv4, attempt
//     it; any failure is discarded and IPv4 is tried instead.
//  3. Require an IPv4 candidate and attempt it; failure here is final.
//
// The sequence is strictly sequential, never a concurrent race.
func (d *Dialer) Dial(ctx context.Context, host string, port int, family Family) (net.Conn, error) {
	ips, err := d.resolver().LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", host, err)
	}

	v4, v6 := selectAddrs(ips)

	if v6 == nil && family == FamilyIPv6 {
		return nil, fmt.Errorf("no IPv6 address resolved for %s", host)
	}
	if v6 != nil && family != FamilyIPv4 {
		if conn, err := d.attempt(ctx, "tcp6", v6, port); err == nil {
			return conn, nil
		}
		// IPv6 failure of any kind falls back to IPv4.
	}

	if v4 == nil {
		return nil, fmt.Errorf("no IPv4 address resolved for %s", host)
	}
	conn, err := d.attempt(ctx, "tcp4", v4, port)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// attempt makes a single connection attempt under the configured deadline.
func (d *Dialer) attempt(ctx context.Context, network string, ip net.IP, port int) (net.Conn, error) {
	address := net.JoinHostPort(ip.String(), strconv.Itoa(port))
	conn, err := runWithTimeout(d.Timeout, func() (net.Conn, error) {
		return d.connect()(ctx, network, address)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return conn, nil
}

func (d *Dialer) resolver() Resolver {
	if d.Resolver != nil {
		return d.Resolver
	}
	return net.DefaultResolver
}

func (d *Dialer) connect() func(ctx context.Context, network, address string) (net.Conn, error) {
	if d.Connect != nil {
		return d.Connect
	}
	return (&net.Dialer{}).DialContext
}

// selectAddrs picks the first IPv4 and first IPv6 candidate from the
// resolved set, preserving resolver order.
func selectAddrs(ips []net.IP) (v4, v6 net.IP) {
	for _, ip := range ips {
		if ip.To4() != nil {
			if v4 == nil {
				v4 = ip
			}
		} else if v6 == nil {
			v6 = ip
		}
	}
	return v4, v6
}
