package inet

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	loopback4 = netip.MustParseAddr("127.0.0.1")
	loopback6 = netip.MustParseAddr("::1")
)

func TestIPVersionMatches(t *testing.T) {
	assert.True(t, IPv4.matches(loopback4))
	assert.False(t, IPv4.matches(loopback6))
	assert.True(t, IPv6.matches(loopback6))
	assert.False(t, IPv6.matches(loopback4))

	// The zero Addr is the wildcard and matches either family.
	assert.True(t, IPv4.matches(netip.Addr{}))
	assert.True(t, IPv6.matches(netip.Addr{}))
}

func TestIPVersionNetworks(t *testing.T) {
	assert.Equal(t, "udp4", IPv4.udpNetwork())
	assert.Equal(t, "tcp6", IPv6.tcpNetwork())
	assert.Equal(t, "ip4:1", ICMPv4.rawNetwork(IPv4))
	assert.Equal(t, "ip6:58", ICMPv6.rawNetwork(IPv6))
}

func TestAddrPortString(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8080", addrPortString(loopback4, 8080))
	assert.Equal(t, "[::1]:53", addrPortString(loopback6, 53))
	assert.Equal(t, ":9", addrPortString(netip.Addr{}, 9))
}

func TestInterfaceIDByName(t *testing.T) {
	ifaces, err := net.Interfaces()
	require.NoError(t, err)
	if len(ifaces) == 0 {
		t.Skip("no network interfaces available")
	}

	want := ifaces[0]
	id, err := InterfaceIDByName(want.Name)
	require.NoError(t, err)
	assert.Equal(t, InterfaceID(want.Index), id)

	name, err := InterfaceNameByID(id)
	require.NoError(t, err)
	assert.Equal(t, want.Name, name)
}

func TestInterfaceIDByNameUnknown(t *testing.T) {
	_, err := InterfaceIDByName("no-such-interface-0")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestAddrFromNet(t *testing.T) {
	addr, port := addrFromNet(&net.UDPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 4242})
	assert.Equal(t, netip.MustParseAddr("192.0.2.1"), addr)
	assert.Equal(t, uint16(4242), port)

	addr, port = addrFromNet(&net.TCPAddr{IP: net.ParseIP("::1"), Port: 80})
	assert.Equal(t, loopback6, addr)
	assert.Equal(t, uint16(80), port)

	addr, port = addrFromNet(&net.IPAddr{IP: net.IPv4(10, 0, 0, 1)})
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), addr)
	assert.Equal(t, uint16(0), port)
}
