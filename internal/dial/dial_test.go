package dial

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	ips []net.IP
	err error
}

func (r *fakeResolver) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	return r.ips, r.err
}

// fakeConn is a net.Conn stub that only tracks Close.
type fakeConn struct {
	net.Conn
	network string
	address string
}

func (c *fakeConn) Close() error { return nil }

// recordingDialer builds a Dialer whose connect attempts are recorded and
// answered per network ("tcp4"/"tcp6").
func recordingDialer(ips []net.IP, fail map[string]error) (*Dialer, *[]string) {
	attempts := &[]string{}
	d := &Dialer{
		Resolver: &fakeResolver{ips: ips},
		Connect: func(ctx context.Context, network, address string) (net.Conn, error) {
			*attempts = append(*attempts, network)
			if err := fail[network]; err != nil {
				return nil, err
			}
			return &fakeConn{network: network, address: address}, nil
		},
	}
	return d, attempts
}

var (
	addrV4 = net.ParseIP("192.0.2.10")
	addrV6 = net.ParseIP("2001:db8::10")
)

func TestDial_IPv4Only(t *testing.T) {
	d, attempts := recordingDialer([]net.IP{addrV4}, nil)

	conn, err := d.Dial(context.Background(), "broker.example", 5672, FamilyAny)
	require.NoError(t, err)
	assert.Equal(t, []string{"tcp4"}, *attempts)
	assert.Equal(t, "tcp4", conn.(*fakeConn).network)
}

func TestDial_PrefersIPv6(t *testing.T) {
	d, attempts := recordingDialer([]net.IP{addrV4, addrV6}, nil)

	conn, err := d.Dial(context.Background(), "broker.example", 5672, FamilyAny)
	require.NoError(t, err)
	assert.Equal(t, []string{"tcp6"}, *attempts, "no IPv4 attempt when IPv6 works")
	assert.Equal(t, "tcp6", conn.(*fakeConn).network)
}

func TestDial_IPv6FailureFallsBackToIPv4(t *testing.T) {
	d, attempts := recordingDialer([]net.IP{addrV6, addrV4}, map[string]error{
		"tcp6": errors.New("connection refused"),
	})

	conn, err := d.Dial(context.Background(), "broker.example", 5672, FamilyAny)
	require.NoError(t, err)
	assert.Equal(t, []string{"tcp6", "tcp4"}, *attempts)
	assert.Equal(t, "tcp4", conn.(*fakeConn).network)
}

func TestDial_IPv4FailureIsFinal(t *testing.T) {
	cause := errors.New("connection refused")
	d, _ := recordingDialer([]net.IP{addrV6, addrV4}, map[string]error{
		"tcp6": errors.New("no route to host"),
		"tcp4": cause,
	})

	_, err := d.Dial(context.Background(), "broker.example", 5672, FamilyAny)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
}

func TestDial_ExplicitIPv6WithoutCandidate(t *testing.T) {
	d, attempts := recordingDialer([]net.IP{addrV4}, nil)

	_, err := d.Dial(context.Background(), "broker.example", 5672, FamilyIPv6)
	require.Error(t, err)
	assert.Empty(t, *attempts, "no connection attempt without an IPv6 candidate")
}

func TestDial_ExplicitIPv4SkipsIPv6(t *testing.T) {
	d, attempts := recordingDialer([]net.IP{addrV6, addrV4}, nil)

	conn, err := d.Dial(context.Background(), "broker.example", 5672, FamilyIPv4)
	require.NoError(t, err)
	assert.Equal(t, []string{"tcp4"}, *attempts)
	assert.Equal(t, "tcp4", conn.(*fakeConn).network)
}

func TestDial_IPv6OnlyHostWithIPv4Request(t *testing.T) {
	d, attempts := recordingDialer([]net.IP{addrV6}, nil)

	_, err := d.Dial(context.Background(), "broker.example", 5672, FamilyIPv4)
	require.Error(t, err)
	assert.Empty(t, *attempts)
}

func TestDial_ResolutionFailure(t *testing.T) {
	cause := errors.New("no such host")
	d := &Dialer{
		Resolver: &fakeResolver{err: cause},
		Connect: func(ctx context.Context, network, address string) (net.Conn, error) {
			t.Fatal("connect must not be called when resolution fails")
			return nil, nil
		},
	}

	_, err := d.Dial(context.Background(), "broker.example", 5672, FamilyAny)
	assert.ErrorIs(t, err, cause)
}

func TestSelectAddrs(t *testing.T) {
	v4, v6 := selectAddrs([]net.IP{addrV6, addrV4, net.ParseIP("198.51.100.1")})
	assert.True(t, addrV4.Equal(v4), "first IPv4 candidate wins")
	assert.True(t, addrV6.Equal(v6))

	v4, v6 = selectAddrs(nil)
	assert.Nil(t, v4)
	assert.Nil(t, v6)
}

func TestFamilyString(t *testing.T) {
	assert.Equal(t, "any", FamilyAny.String())
	assert.Equal(t, "ipv4", FamilyIPv4.String())
	assert.Equal(t, "ipv6", FamilyIPv6.String())
}
