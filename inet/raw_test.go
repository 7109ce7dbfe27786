package inet

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlf-haier/openweave-core/buffer"
)

// icmpEcho4 builds a minimal IPv4 datagram carrying an ICMP header with the
// given type, the way a raw IPv4 socket delivers it: IP header in front.
func icmpEcho4(ihl int, icmpType uint8) []byte {
	hdrLen := ihl * 4
	datagram := make([]byte, hdrLen+8)
	datagram[0] = 0x40 | byte(ihl)
	datagram[hdrLen] = icmpType
	return datagram
}

func TestICMPTypeOfIPv4(t *testing.T) {
	// Standard 20-byte header.
	typ, ok := icmpTypeOf(icmpEcho4(5, 8), IPv4)
	require.True(t, ok)
	assert.Equal(t, uint8(8), typ)

	// Header with options (IHL 6 = 24 bytes).
	typ, ok = icmpTypeOf(icmpEcho4(6, 0), IPv4)
	require.True(t, ok)
	assert.Equal(t, uint8(0), typ)

	// Truncated: header length claims more than the datagram holds.
	short := icmpEcho4(5, 8)[:20]
	_, ok = icmpTypeOf(short, IPv4)
	assert.False(t, ok)

	// IHL below the legal minimum.
	bogus := icmpEcho4(5, 8)
	bogus[0] = 0x42
	_, ok = icmpTypeOf(bogus, IPv4)
	assert.False(t, ok)

	_, ok = icmpTypeOf(nil, IPv4)
	assert.False(t, ok)
}

func TestICMPTypeOfIPv6(t *testing.T) {
	// Raw ICMPv6 receives start at the ICMPv6 header.
	typ, ok := icmpTypeOf([]byte{128, 0, 0, 0}, IPv6)
	require.True(t, ok)
	assert.Equal(t, uint8(128), typ)

	_, ok = icmpTypeOf(nil, IPv6)
	assert.False(t, ok)
}

func TestRawAdmitFiltersByType(t *testing.T) {
	_, il := newTestLayer(t, nil)

	ep, err := il.NewRawEndpoint(IPv4, ICMPv4)
	require.NoError(t, err)
	defer ep.Free()

	// No filter set: everything passes.
	assert.True(t, ep.admit(icmpEcho4(5, 8)))
	assert.True(t, ep.admit(icmpEcho4(5, 0)))

	// Admit echo requests only.
	require.NoError(t, ep.SetICMPFilter([]uint8{8}))
	assert.True(t, ep.admit(icmpEcho4(5, 8)))
	assert.False(t, ep.admit(icmpEcho4(5, 0)))
	assert.False(t, ep.admit([]byte{0x45}), "unparseable datagrams are dropped while filtering")

	// Clearing the filter admits everything again.
	require.NoError(t, ep.SetICMPFilter(nil))
	assert.True(t, ep.admit(icmpEcho4(5, 0)))
}

func TestRawSetICMPFilterRequiresICMPProtocol(t *testing.T) {
	_, il := newTestLayer(t, nil)

	ep, err := il.NewRawEndpoint(IPv4, IPProtocol(17))
	require.NoError(t, err)
	defer ep.Free()

	assert.ErrorIs(t, ep.SetICMPFilter([]uint8{8}), ErrInvalidState)
}

func TestRawBindRejectsVersionMismatch(t *testing.T) {
	_, il := newTestLayer(t, nil)

	ep, err := il.NewRawEndpoint(IPv4, ICMPv4)
	require.NoError(t, err)
	defer ep.Free()

	assert.ErrorIs(t, ep.Bind(IPv6, loopback6), ErrConfiguration)
	assert.ErrorIs(t, ep.Bind(IPv4, loopback6), ErrConfiguration)
	assert.ErrorIs(t, ep.BindInterface(IPv6, 0), ErrConfiguration)
}

func TestRawListenRequiresBind(t *testing.T) {
	_, il := newTestLayer(t, nil)

	ep, err := il.NewRawEndpoint(IPv6, ICMPv6)
	require.NoError(t, err)
	defer ep.Free()

	assert.ErrorIs(t, ep.Listen(), ErrInvalidState)
}

func TestRawSendToValidation(t *testing.T) {
	_, il := newTestLayer(t, nil)

	ep, err := il.NewRawEndpoint(IPv4, ICMPv4)
	require.NoError(t, err)

	buf, err := buffer.New(8, 0)
	require.NoError(t, err)
	require.NoError(t, buf.SetDataLength(8))
	assert.ErrorIs(t, ep.SendTo(netip.Addr{}, buf), ErrInvalidArgument)

	buf, err = buffer.New(8, 0)
	require.NoError(t, err)
	require.NoError(t, buf.SetDataLength(8))
	assert.ErrorIs(t, ep.SendTo(loopback6, buf), ErrInvalidArgument)

	require.NoError(t, ep.Free())

	buf, err = buffer.New(8, 0)
	require.NoError(t, err)
	require.NoError(t, buf.SetDataLength(8))
	assert.ErrorIs(t, ep.SendTo(loopback4, buf), ErrEndpointReleased)
}

func TestRawEndpointCounters(t *testing.T) {
	_, il := newTestLayer(t, nil)

	ep, err := il.NewRawEndpoint(IPv4, ICMPv4)
	require.NoError(t, err)
	defer ep.Free()

	assert.Zero(t, ep.BytesSent())
	assert.Zero(t, ep.BytesReceived())
	assert.Zero(t, ep.FilteredMessages())
	assert.False(t, ep.LocalAddress().IsValid())
}
