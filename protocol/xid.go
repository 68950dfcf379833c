package protocol

import (
	"fmt"
	"math/bits"
)

// IDAllocator hands out resource ids from the space a server assigned to the
// connection: every bit outside mask equals base, bits inside mask are ours.
//
// A monotonically increasing counter is spread into the set bits of the mask,
// bit i of the counter landing on the i-th set bit counted from the low end.
// The counter starts at 1 so the bare base is never handed out.
//
// An IDAllocator is not safe for concurrent use. Use exactly one per
// connection, two allocators over the same space would hand out the same ids.
type IDAllocator struct {
	base  uint32
	mask  uint32
	width int
	next  uint64
}

func NewIDAllocator(base, mask uint32) *IDAllocator {
	return &IDAllocator{
		base:  base &^ mask,
		mask:  mask,
		width: bits.OnesCount32(mask),
		next:  1,
	}
}

// NewID returns the next unused id, or ErrIDSpaceExhausted once the counter
// needs more bits than the mask has.
func (a *IDAllocator) NewID() (ID, error) {
	if a.next >= uint64(1)<<uint(a.width) {
		return None, fmt.Errorf("%w: mask %#x allows %d ids", ErrIDSpaceExhausted, a.mask, a.Capacity())
	}

	id := spread(a.next, a.mask) | a.base
	a.next++

	return ID(id), nil
}

// Capacity returns how many ids the allocator can hand out in total.
func (a *IDAllocator) Capacity() uint64 {
	return (uint64(1) << uint(a.width)) - 1
}

// Remaining returns how many ids are left.
func (a *IDAllocator) Remaining() uint64 {
	return a.Capacity() - (a.next - 1)
}

// spread deposits the low bits of v into the set bits of mask.
func spread(v uint64, mask uint32) uint32 {
	var out uint32

	for m := mask; m != 0 && v != 0; m &= m - 1 {
		if v&1 != 0 {
			out |= m & -m
		}
		v >>= 1
	}

	return out
}
