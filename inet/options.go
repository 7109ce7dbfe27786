package inet

import "github.com/mlf-haier/openweave-core/buffer"

// Defaults for Options fields left zero.
const (
	// DefaultEndpointPoolSize bounds how many endpoints may exist at once.
	DefaultEndpointPoolSize = 32

	// DefaultTCPReceiveWindow is the per-connection receive flow-control
	// budget in bytes.
	DefaultTCPReceiveWindow = 64 * 1024

	// DefaultReadChunk is the size of one transport read.
	DefaultReadChunk = 4096
)

// Options configures a Layer. The zero value of each field selects its
// default.
type Options struct {
	// EndpointPoolSize is the fixed endpoint pool capacity.
	EndpointPoolSize int

	// TCPReceiveWindow caps unacknowledged received bytes per TCP
	// endpoint; the reader stops until AckReceive returns credit.
	TCPReceiveWindow int

	// ReadChunk is the maximum bytes pulled from the transport per read.
	ReadChunk int

	// BufferAllocator supplies receive buffers; nil selects
	// buffer.Default.
	BufferAllocator *buffer.Allocator

	// StrictReceiveStates makes PutBackReceivedData fail with
	// ErrInvalidState outside data-bearing connection states instead of
	// quietly queueing.
	StrictReceiveStates bool
}

// NewOptions returns an Options with every field at its default.
func NewOptions() *Options {
	return &Options{
		EndpointPoolSize: DefaultEndpointPoolSize,
		TCPReceiveWindow: DefaultTCPReceiveWindow,
		ReadChunk:        DefaultReadChunk,
		BufferAllocator:  buffer.Default,
	}
}

func (o *Options) withDefaults() Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.EndpointPoolSize <= 0 {
		out.EndpointPoolSize = DefaultEndpointPoolSize
	}
	if out.TCPReceiveWindow <= 0 {
		out.TCPReceiveWindow = DefaultTCPReceiveWindow
	}
	if out.ReadChunk <= 0 {
		out.ReadChunk = DefaultReadChunk
	}
	if out.BufferAllocator == nil {
		out.BufferAllocator = buffer.Default
	}
	return out
}
