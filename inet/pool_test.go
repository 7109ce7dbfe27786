package inet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlf-haier/openweave-core/system"
)

func newTestLayer(t *testing.T, opts *Options) (*system.Layer, *Layer) {
	t.Helper()
	sys := system.NewLayer()
	return sys, New(sys, opts)
}

func TestPoolExhaustionAndReuse(t *testing.T) {
	_, il := newTestLayer(t, &Options{EndpointPoolSize: 3})

	eps := make([]*UDPEndpoint, 0, 3)
	for i := 0; i < 3; i++ {
		ep, err := il.NewUDPEndpoint()
		require.NoError(t, err)
		eps = append(eps, ep)
	}

	_, err := il.NewUDPEndpoint()
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.Equal(t, uint64(1), il.PoolStats().Exhaustions)

	require.NoError(t, eps[1].Free())
	ep, err := il.NewUDPEndpoint()
	require.NoError(t, err, "a released slot must be acquirable again")
	require.NoError(t, ep.Free())
}

func TestPoolMixedKinds(t *testing.T) {
	_, il := newTestLayer(t, &Options{EndpointPoolSize: 3})

	raw, err := il.NewRawEndpoint(IPv6, ICMPv6)
	require.NoError(t, err)
	udp, err := il.NewUDPEndpoint()
	require.NoError(t, err)
	tcp, err := il.NewTCPEndpoint()
	require.NoError(t, err)

	assert.Equal(t, 3, il.PoolStats().InUse)

	require.NoError(t, raw.Free())
	require.NoError(t, udp.Free())
	require.NoError(t, tcp.Free())
	assert.Equal(t, 0, il.PoolStats().InUse)
}

func TestReleasedHandleIsRejected(t *testing.T) {
	_, il := newTestLayer(t, nil)

	ep, err := il.NewUDPEndpoint()
	require.NoError(t, err)
	require.NoError(t, ep.Free())

	assert.ErrorIs(t, ep.Free(), ErrEndpointReleased)
	assert.ErrorIs(t, ep.Listen(), ErrEndpointReleased)
	assert.ErrorIs(t, ep.Bind(IPv4, loopback4, 0), ErrEndpointReleased)
}

func TestStaleGenerationDoesNotAliasRecycledSlot(t *testing.T) {
	_, il := newTestLayer(t, &Options{EndpointPoolSize: 1})

	first, err := il.NewTCPEndpoint()
	require.NoError(t, err)
	require.NoError(t, first.Free())

	// The slot is recycled with a new generation; the stale handle must
	// keep failing rather than act on the new occupant.
	second, err := il.NewTCPEndpoint()
	require.NoError(t, err)
	assert.ErrorIs(t, first.Free(), ErrEndpointReleased)
	assert.True(t, second.alive())
	require.NoError(t, second.Free())
}

func TestPoolStatsCapacity(t *testing.T) {
	_, il := newTestLayer(t, &Options{EndpointPoolSize: 7})
	stats := il.PoolStats()
	assert.Equal(t, 7, stats.Capacity)
	assert.Equal(t, 0, stats.InUse)
	assert.Equal(t, uint64(0), stats.Exhaustions)
}
