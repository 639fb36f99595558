package allocator

import (
	"sync"

	"github.com/nightduck/rmw-hazcat/internal/domain"
	"github.com/nightduck/rmw-hazcat/internal/herrors"
)

// DefaultSlotSize and DefaultSlotCount are the dimensions the core supplies
// when an endpoint is registered with no allocator of its own (§6, §9):
// "a host ring allocator of 4096-byte slots x 200". They are exposed as
// defaults, not hardcoded constants -- internal/config overrides them.
const (
	DefaultSlotSize  = 4096
	DefaultSlotCount = 200
)

// CPURing is the default host-memory allocator: a fixed-slot ring over an
// anonymously mmap'd arena, with a per-slot share count so Allocate/Share/
// Deallocate can implement the reference-counted loan semantics §4.4's take
// path depends on. Slot reuse order is not FIFO -- freed slots go back onto
// a free stack for immediate reuse rather than waiting for a head index to
// rotate around, since payload lifetime here is driven by subscriber
// interest, not insertion order.
type CPURing struct {
	id        ID
	dom       domain.ID
	slotSize  uint32
	slotCount uint32

	arena []byte

	mu   sync.Mutex
	free []uint32 // free slot indices, stack order
	refs []int32  // per-slot share count; 0 = free
}

// NewCPURing creates a ring allocator of slotCount slots, each slotSize
// bytes, tagged with the CPU domain.
func NewCPURing(slotSize, slotCount uint32) (*CPURing, error) {
	return newRing(slotSize, slotCount, domain.CPU)
}

func newRing(slotSize, slotCount uint32, dom domain.ID) (*CPURing, error) {
	if slotSize == 0 || slotCount == 0 {
		return nil, herrors.New(herrors.AllocatorOutOfSpace, "", "ring allocator needs a positive slot size and count")
	}
	arena, err := mmapArena(int(slotSize) * int(slotCount))
	if err != nil {
		return nil, herrors.Wrap(herrors.AllocatorOutOfSpace, "", err, "allocating ring arena")
	}
	free := make([]uint32, slotCount)
	for i := range free {
		free[i] = slotCount - 1 - uint32(i)
	}
	return &CPURing{
		id:        newID(),
		dom:       dom,
		slotSize:  slotSize,
		slotCount: slotCount,
		arena:     arena,
		free:      free,
		refs:      make([]int32, slotCount),
	}, nil
}

func (r *CPURing) ID() ID            { return r.id }
func (r *CPURing) Domain() domain.ID { return r.dom }

// Allocate reserves one slot. Requested sizes larger than the slot size
// always fail; this mirrors the original's lack of any variable-size
// allocation strategy for the default allocator.
func (r *CPURing) Allocate(size uint32) (uint32, error) {
	if size > r.slotSize {
		return 0, herrors.New(herrors.AllocatorOutOfSpace, "", "requested %d bytes exceeds slot size %d", size, r.slotSize)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.free) == 0 {
		return 0, herrors.New(herrors.AllocatorOutOfSpace, "", "ring allocator exhausted (%d slots in use)", r.slotCount)
	}
	slot := r.free[len(r.free)-1]
	r.free = r.free[:len(r.free)-1]
	r.refs[slot] = 1
	return slot * r.slotSize, nil
}

func (r *CPURing) slotFor(offset uint32) (uint32, error) {
	slot := offset / r.slotSize
	if slot >= r.slotCount || offset%r.slotSize != 0 {
		return 0, herrors.New(herrors.AllocatorOutOfSpace, "", "offset %d does not name a slot", offset)
	}
	return slot, nil
}

// Deallocate drops one share of the block at offset, reclaiming the slot
// once the count reaches zero.
func (r *CPURing) Deallocate(offset uint32) error {
	slot, err := r.slotFor(offset)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs[slot] <= 0 {
		return herrors.New(herrors.AllocatorOutOfSpace, "", "double free of slot %d", slot)
	}
	r.refs[slot]--
	if r.refs[slot] == 0 {
		r.free = append(r.free, slot)
	}
	return nil
}

// Share increments the block's share count without allocating.
func (r *CPURing) Share(offset uint32) error {
	slot, err := r.slotFor(offset)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs[slot] <= 0 {
		return herrors.New(herrors.AllocatorOutOfSpace, "", "share of unallocated slot %d", slot)
	}
	r.refs[slot]++
	return nil
}

// Bytes returns a view over length bytes starting at offset.
func (r *CPURing) Bytes(offset, length uint32) []byte {
	return r.arena[offset : offset+length : offset+length]
}

// CopyTo copies host bytes into this ring's arena. Used when the source of
// a cross-domain copy is the CPU domain (§4.5).
func (r *CPURing) CopyTo(dstOffset uint32, src []byte) error {
	copy(r.Bytes(dstOffset, uint32(len(src))), src)
	return nil
}

// CopyFrom copies this ring's arena into dst. Used when the destination of
// a cross-domain copy is the CPU domain (§4.5).
func (r *CPURing) CopyFrom(srcOffset uint32, dst []byte) error {
	copy(dst, r.Bytes(srcOffset, uint32(len(dst))))
	return nil
}

// Copy is only reached when neither side of a cross-domain copy is the CPU
// domain. A ring built by NewCPURing is always CPU and never gets here;
// Device embeds CPURing and uses this method for its device-to-device
// copies, which are a plain byte copy out of src.
func (r *CPURing) Copy(dstOffset uint32, src Allocator, srcOffset uint32, n uint32) error {
	return r.CopyTo(dstOffset, src.Bytes(srcOffset, n))
}

// Close releases the backing arena.
func (r *CPURing) Close() error {
	return munmapArena(r.arena)
}
