package inet

import (
	"github.com/sirupsen/logrus"

	"github.com/mlf-haier/openweave-core/buffer"
	"github.com/mlf-haier/openweave-core/system"
)

// Layer is the endpoint factory. It owns the endpoint pool and posts all
// transport readiness to the system layer that drives it.
type Layer struct {
	sys   *system.Layer
	pool  *endpointPool
	alloc *buffer.Allocator
	opts  Options
}

// New creates an endpoint layer driven by sys. A nil options selects
// defaults.
func New(sys *system.Layer, options *Options) *Layer {
	l := &Layer{
		sys:  sys,
		opts: options.withDefaults(),
	}
	l.pool = newEndpointPool(l.opts.EndpointPoolSize)
	l.alloc = l.opts.BufferAllocator

	logrus.WithFields(logrus.Fields{
		"component": "inet.Layer",
		"pool_size": l.opts.EndpointPoolSize,
		"rx_window": l.opts.TCPReceiveWindow,
	}).Info("Created inet layer")
	return l
}

// NewRawEndpoint allocates a raw IP endpoint for the given family and
// protocol from the pool.
func (l *Layer) NewRawEndpoint(version IPVersion, protocol IPProtocol) (*RawEndpoint, error) {
	if !version.valid() {
		return nil, newError("new raw endpoint", "", ErrInvalidArgument)
	}
	slot, gen, err := l.pool.acquire()
	if err != nil {
		return nil, err
	}
	e := &RawEndpoint{
		endpointBase: endpointBase{layer: l, slot: slot, gen: gen},
		version:      version,
		protocol:     protocol,
	}
	return e, nil
}

// NewUDPEndpoint allocates a UDP endpoint from the pool.
func (l *Layer) NewUDPEndpoint() (*UDPEndpoint, error) {
	slot, gen, err := l.pool.acquire()
	if err != nil {
		return nil, err
	}
	return &UDPEndpoint{
		endpointBase: endpointBase{layer: l, slot: slot, gen: gen},
	}, nil
}

// NewTCPEndpoint allocates a TCP endpoint from the pool in the Ready state.
func (l *Layer) NewTCPEndpoint() (*TCPEndpoint, error) {
	slot, gen, err := l.pool.acquire()
	if err != nil {
		return nil, err
	}
	return newTCPEndpoint(l, slot, gen), nil
}

// PoolStats returns endpoint pool occupancy and exhaustion counters.
func (l *Layer) PoolStats() PoolStats {
	return l.pool.stats()
}

// System returns the system layer driving this endpoint layer.
func (l *Layer) System() *system.Layer {
	return l.sys
}

// endpointBase ties an endpoint to its pool slot. Its generation-tagged
// handle makes use-after-release detectable.
type endpointBase struct {
	layer *Layer
	slot  int
	gen   uint32
}

func (b *endpointBase) alive() bool {
	return b.layer.pool.alive(b.slot, b.gen)
}

func (b *endpointBase) releaseSlot() error {
	return b.layer.pool.release(b.slot, b.gen)
}

func (b *endpointBase) post(ev system.Event) {
	b.layer.sys.PostEvent(ev)
}
