package buffer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReservesHeadroom(t *testing.T) {
	b, err := New(128, 16)
	require.NoError(t, err)
	defer b.Release()

	assert.Equal(t, 0, b.DataLength())
	assert.Equal(t, 16, b.AvailableHead())
	assert.Equal(t, 128, b.Capacity())
}

func TestNewRejectsBadArguments(t *testing.T) {
	_, err := New(0, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(16, 32)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(16, -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestConsumeHeadComposes(t *testing.T) {
	payload := make([]byte, 60)
	for i := range payload {
		payload[i] = byte(i)
	}

	// Consuming n then m must equal consuming n+m in one step.
	split, err := New(128, 0)
	require.NoError(t, err)
	defer split.Release()
	require.NoError(t, split.Append(payload))

	whole, err := New(128, 0)
	require.NoError(t, err)
	defer whole.Release()
	require.NoError(t, whole.Append(payload))

	require.NoError(t, split.ConsumeHead(20))
	require.NoError(t, split.ConsumeHead(13))
	require.NoError(t, whole.ConsumeHead(33))

	assert.Equal(t, whole.Data(), split.Data())
	assert.Equal(t, 27, split.DataLength())
}

func TestConsumeHeadPastDataFails(t *testing.T) {
	b, err := New(64, 0)
	require.NoError(t, err)
	defer b.Release()
	require.NoError(t, b.Append(make([]byte, 10)))

	err = b.ConsumeHead(11)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, 10, b.DataLength(), "failed consume must not move the view")
}

func TestIPv4HeaderStrip(t *testing.T) {
	// A raw IPv4 receive carries the 20-byte IP header in front of the
	// payload; stripping it leaves total length shorter by exactly 20.
	const headerSize = 20
	b, err := New(256, 0)
	require.NoError(t, err)
	defer b.Release()

	datagram := make([]byte, headerSize+59)
	require.NoError(t, b.Append(datagram))
	before := b.TotalLength()

	require.NoError(t, b.ConsumeHead(headerSize))
	assert.Equal(t, before-headerSize, b.TotalLength())
}

func TestPrependHeadReclaimsHeadroom(t *testing.T) {
	b, err := New(64, 8)
	require.NoError(t, err)
	defer b.Release()
	require.NoError(t, b.Append([]byte{0xAA}))

	require.NoError(t, b.PrependHead(8))
	assert.Equal(t, 9, b.DataLength())
	assert.Equal(t, 0, b.AvailableHead())

	err = b.PrependHead(1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestChainTotalLength(t *testing.T) {
	head, err := New(64, 0)
	require.NoError(t, err)
	require.NoError(t, head.Append(make([]byte, 10)))

	mid, err := New(64, 0)
	require.NoError(t, err)
	require.NoError(t, mid.Append(make([]byte, 20)))

	tail, err := New(64, 0)
	require.NoError(t, err)
	require.NoError(t, tail.Append(make([]byte, 30)))

	head.AppendChain(mid)
	head.AppendChain(tail) // appends at the end of the chain

	assert.Equal(t, 60, head.TotalLength())
	assert.Equal(t, 10, head.DataLength())
	assert.Equal(t, mid, head.Next())
	assert.Equal(t, tail, mid.Next())

	head.Release()
}

func TestRetainDefersRelease(t *testing.T) {
	a := NewAllocator(0)
	b, err := a.New(64, 0)
	require.NoError(t, err)

	b.Retain()
	b.Release()
	assert.Equal(t, int64(1), a.Stats().InUse, "storage must survive while retained")

	b.Release()
	assert.Equal(t, int64(0), a.Stats().InUse)
	assert.Equal(t, int64(1), a.Stats().TotalFree)
}

func TestReleaseCascadesThroughChain(t *testing.T) {
	a := NewAllocator(0)
	head, err := a.New(64, 0)
	require.NoError(t, err)
	next, err := a.New(64, 0)
	require.NoError(t, err)
	head.AppendChain(next)

	head.Release()
	assert.Equal(t, int64(0), a.Stats().InUse)
}

func TestAllocatorQuota(t *testing.T) {
	a := NewAllocator(2)

	b1, err := a.New(32, 0)
	require.NoError(t, err)
	b2, err := a.New(32, 0)
	require.NoError(t, err)

	_, err = a.New(32, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResourceExhausted))

	b1.Release()
	b3, err := a.New(32, 0)
	require.NoError(t, err)

	b2.Release()
	b3.Release()
	assert.Equal(t, int64(0), a.Stats().InUse)
}

func TestDetachChain(t *testing.T) {
	head, err := New(64, 0)
	require.NoError(t, err)
	defer head.Release()
	next, err := New(64, 0)
	require.NoError(t, err)
	head.AppendChain(next)

	got := head.DetachChain()
	assert.Equal(t, next, got)
	assert.Nil(t, head.Next())
	got.Release()
}
