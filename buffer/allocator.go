package buffer

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Common errors for buffer management.
var (
	// ErrResourceExhausted indicates the allocator's outstanding-buffer
	// limit has been reached. Recoverable: release a buffer and retry.
	ErrResourceExhausted = errors.New("buffer allocator exhausted")

	// ErrInvalidArgument indicates a size or offset outside the buffer's
	// valid range.
	ErrInvalidArgument = errors.New("invalid buffer argument")
)

// Allocator issues buffers against a fixed outstanding-buffer quota.
// A limit of zero means unbounded. Safe for use from multiple goroutines.
type Allocator struct {
	limit       int64
	outstanding atomic.Int64
	totalAlloc  atomic.Int64
	totalFree   atomic.Int64
}

// Default is the process-wide allocator used by New and NewWithAvailable.
var Default = NewAllocator(0)

// NewAllocator creates an allocator permitting at most maxBuffers
// outstanding buffers; zero means no limit.
func NewAllocator(maxBuffers int) *Allocator {
	return &Allocator{limit: int64(maxBuffers)}
}

// New allocates a buffer with the given storage capacity and reserved
// headroom. The data view starts empty at the reserved offset. Fails with
// ErrResourceExhausted when the quota is spent and ErrInvalidArgument when
// the headroom does not fit the capacity.
func (a *Allocator) New(capacity, reservedHeader int) (*Buffer, error) {
	if capacity <= 0 || reservedHeader < 0 || reservedHeader > capacity {
		return nil, fmt.Errorf("%w: capacity %d, reserved header %d", ErrInvalidArgument, capacity, reservedHeader)
	}
	for {
		n := a.outstanding.Load()
		if a.limit > 0 && n >= a.limit {
			return nil, fmt.Errorf("%w: %d buffers outstanding", ErrResourceExhausted, n)
		}
		if a.outstanding.CompareAndSwap(n, n+1) {
			break
		}
	}
	a.totalAlloc.Add(1)
	b := &Buffer{
		alloc:   a,
		storage: make([]byte, capacity),
		start:   reservedHeader,
	}
	b.refs.Store(1)
	return b, nil
}

func (a *Allocator) free(*Buffer) {
	a.outstanding.Add(-1)
	a.totalFree.Add(1)
}

// Stats aggregates allocation counters for diagnostics.
type Stats struct {
	TotalAlloc int64
	TotalFree  int64
	InUse      int64
}

// Stats returns a snapshot of the allocator's counters.
func (a *Allocator) Stats() Stats {
	return Stats{
		TotalAlloc: a.totalAlloc.Load(),
		TotalFree:  a.totalFree.Load(),
		InUse:      a.outstanding.Load(),
	}
}
