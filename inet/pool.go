package inet

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// endpointPool is a fixed-capacity slab of endpoint slots. Each slot carries
// a generation counter bumped on release, so a stale handle (slot,
// generation) is detected instead of aliasing a recycled endpoint.
type endpointPool struct {
	mu        sync.Mutex
	slots     []poolSlot
	freeList  []int
	exhausted atomic.Uint64
}

type poolSlot struct {
	gen   uint32
	inUse bool
}

func newEndpointPool(capacity int) *endpointPool {
	p := &endpointPool{
		slots:    make([]poolSlot, capacity),
		freeList: make([]int, 0, capacity),
	}
	for i := capacity - 1; i >= 0; i-- {
		p.slots[i].gen = 1
		p.freeList = append(p.freeList, i)
	}
	return p
}

// acquire claims a free slot, or fails with ErrPoolExhausted. Exhaustion is
// a normal recoverable condition and is counted for diagnostics.
func (p *endpointPool) acquire() (slot int, gen uint32, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.freeList) == 0 {
		p.exhausted.Add(1)
		return 0, 0, fmt.Errorf("%w: all %d slots in use", ErrPoolExhausted, len(p.slots))
	}
	slot = p.freeList[len(p.freeList)-1]
	p.freeList = p.freeList[:len(p.freeList)-1]
	p.slots[slot].inUse = true
	return slot, p.slots[slot].gen, nil
}

// release returns a slot to the pool and invalidates every handle carrying
// the old generation. Releasing with a stale generation fails.
func (p *endpointPool) release(slot int, gen uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slot < 0 || slot >= len(p.slots) {
		return fmt.Errorf("%w: slot %d", ErrInvalidArgument, slot)
	}
	s := &p.slots[slot]
	if !s.inUse || s.gen != gen {
		return ErrEndpointReleased
	}
	s.inUse = false
	s.gen++
	p.freeList = append(p.freeList, slot)
	return nil
}

// alive reports whether the handle (slot, gen) still owns its slot.
func (p *endpointPool) alive(slot int, gen uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slot < 0 || slot >= len(p.slots) {
		return false
	}
	return p.slots[slot].inUse && p.slots[slot].gen == gen
}

func (p *endpointPool) inUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots) - len(p.freeList)
}

func (p *endpointPool) capacity() int {
	return len(p.slots)
}

// PoolStats reports endpoint pool occupancy for diagnostics. Exhaustions
// counts acquire attempts rejected for lack of a free slot.
type PoolStats struct {
	Capacity    int
	InUse       int
	Exhaustions uint64
}

func (p *endpointPool) stats() PoolStats {
	return PoolStats{
		Capacity:    p.capacity(),
		InUse:       p.inUse(),
		Exhaustions: p.exhausted.Load(),
	}
}
