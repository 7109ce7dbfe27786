package buffer

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultCapacity is the storage size used by NewWithAvailable. It is
	// sized to hold a full Ethernet-MTU datagram plus transport headers.
	DefaultCapacity = 1536

	// DefaultReservedHeader is the headroom reserved by NewWithAvailable,
	// enough for an IPv6 header plus a transport header.
	DefaultReservedHeader = 48
)

// Buffer is a reference-counted byte container with reserved headroom.
//
// The data view starts at the reserved offset and runs for DataLength bytes.
// ConsumeHead moves the view forward (stripping a header), PrependHead moves
// it backward into the reserved region (adding one). Buffers chain through
// AppendChain; releasing the head of a chain releases every segment it owns.
//
// Byte content must only be mutated by the single operation currently acting
// on the buffer; Retain shares ownership of storage, not of the data view.
type Buffer struct {
	alloc   *Allocator
	refs    atomic.Int32
	storage []byte
	start   int
	length  int
	next    *Buffer
}

// New allocates a buffer from the default allocator.
func New(capacity, reservedHeader int) (*Buffer, error) {
	return Default.New(capacity, reservedHeader)
}

// NewWithAvailable allocates a default-capacity buffer from the default
// allocator with the requested headroom reserved.
func NewWithAvailable(reservedHeader int) (*Buffer, error) {
	return Default.New(DefaultCapacity, reservedHeader)
}

// Data returns the current data view of this segment only.
func (b *Buffer) Data() []byte {
	return b.storage[b.start : b.start+b.length]
}

// DataLength returns the number of data bytes in this segment only.
func (b *Buffer) DataLength() int {
	return b.length
}

// TotalLength returns the number of data bytes across the whole chain
// starting at this segment.
func (b *Buffer) TotalLength() int {
	total := 0
	for s := b; s != nil; s = s.next {
		total += s.length
	}
	return total
}

// Capacity returns the total storage size of this segment.
func (b *Buffer) Capacity() int {
	return len(b.storage)
}

// AvailableHead returns the headroom currently reserved in front of the data
// view, i.e. how far PrependHead may extend it.
func (b *Buffer) AvailableHead() int {
	return b.start
}

// ConsumeHead shrinks the data view by n bytes from the front, growing the
// reserved region. It fails with ErrInvalidArgument when n exceeds the
// segment's data length.
func (b *Buffer) ConsumeHead(n int) error {
	if n < 0 || n > b.length {
		return fmt.Errorf("%w: consume %d of %d data bytes", ErrInvalidArgument, n, b.length)
	}
	b.start += n
	b.length -= n
	return nil
}

// PrependHead grows the data view by n bytes into the reserved region,
// exposing previously reserved storage at the front. It fails with
// ErrInvalidArgument when n exceeds the available headroom.
func (b *Buffer) PrependHead(n int) error {
	if n < 0 || n > b.start {
		return fmt.Errorf("%w: prepend %d with %d reserved bytes", ErrInvalidArgument, n, b.start)
	}
	b.start -= n
	b.length += n
	return nil
}

// SetDataLength sets the data length of this segment. The new view must fit
// within the storage remaining after the reserved offset.
func (b *Buffer) SetDataLength(n int) error {
	if n < 0 || b.start+n > len(b.storage) {
		return fmt.Errorf("%w: data length %d with offset %d in %d-byte storage",
			ErrInvalidArgument, n, b.start, len(b.storage))
	}
	b.length = n
	return nil
}

// Append copies data onto the tail of this segment's data view. It fails
// with ErrInvalidArgument when the segment lacks room.
func (b *Buffer) Append(data []byte) error {
	tail := b.start + b.length
	if tail+len(data) > len(b.storage) {
		return fmt.Errorf("%w: append %d bytes with %d free", ErrInvalidArgument, len(data), len(b.storage)-tail)
	}
	copy(b.storage[tail:], data)
	b.length += len(data)
	return nil
}

// AppendChain links next as the continuation of this chain, transferring
// ownership of next (and anything chained behind it) to the chain.
func (b *Buffer) AppendChain(next *Buffer) {
	tail := b
	for tail.next != nil {
		tail = tail.next
	}
	tail.next = next
}

// Next returns the following segment in the chain, or nil.
func (b *Buffer) Next() *Buffer {
	return b.next
}

// DetachChain unlinks and returns the continuation of this segment. The
// caller assumes ownership of the returned chain.
func (b *Buffer) DetachChain() *Buffer {
	next := b.next
	b.next = nil
	return next
}

// Retain adds an owner to this segment and returns it, so a buffer can be
// handed back or queued without copying. Each Retain must be balanced by a
// Release.
func (b *Buffer) Retain() *Buffer {
	b.refs.Add(1)
	return b
}

// Release drops one owner. When the last owner releases, the segment's
// storage is returned to its allocator and the release cascades down the
// chain it owns.
func (b *Buffer) Release() {
	for s := b; s != nil; {
		refs := s.refs.Add(-1)
		if refs > 0 {
			return
		}
		if refs < 0 {
			logrus.WithFields(logrus.Fields{
				"function":  "Release",
				"component": "buffer",
			}).Error("buffer released more times than retained")
			return
		}
		next := s.next
		s.next = nil
		s.alloc.free(s)
		s = next
	}
}
