package queue

import (
	"sync/atomic"

	"github.com/nightduck/rmw-hazcat/internal/herrors"
	"github.com/nightduck/rmw-hazcat/internal/topic"
)

// Publish implements §4.3. offset and length locate a payload the caller
// has already allocated inside pub.Alloc. The returned bool reports whether
// the claimed slot still held an undrained message that had to be swept
// free -- the bounded ring's "oldest wins" drop policy firing.
func Publish(pub *Publisher, offset, length uint32) (bool, error) {
	seg := pub.seg
	if err := seg.LockShared(); err != nil {
		return false, err
	}
	defer seg.Unlock()

	hdr := seg.Header()
	i := claimSlot(hdr)

	cell := seg.RefCell(i)
	topic.LockRow(cell)
	defer topic.UnlockRow(cell)

	overwrote := cell.InterestCount > 0
	if overwrote {
		if err := sweepFree(pub.ctx, seg, cell, i); err != nil {
			return false, err
		}
	}

	entry := seg.Entry(pub.ArrayNum, i)
	entry.AllocatorID = uint64(pub.Alloc.ID())
	entry.Offset = offset
	entry.Length = length

	cell.Availability = 1 << pub.ArrayNum
	cell.InterestCount = uint32(hdr.SubCount)

	return overwrote, nil
}

// claimSlot performs the fetch-add-then-wrap index claim of §4.3 step 2:
// "i = fetch_add(index, 1); then wrap: compare-and-swap i+1 -> (i+1) mod
// len on index until success."
func claimSlot(hdr *topic.Header) uint32 {
	length := hdr.Len
	raw := atomic.AddUint32(&hdr.Index, 1) - 1
	i := raw % length

	current := raw + 1
	for {
		wrapped := current % length
		if wrapped == current {
			break
		}
		if atomic.CompareAndSwapUint32(&hdr.Index, current, wrapped) {
			break
		}
		current = atomic.LoadUint32(&hdr.Index)
	}
	return i
}

// sweepFree implements §4.3 step 4: the slot was not fully drained by every
// subscriber, so every domain column that still holds a copy is freed
// before the new publication overwrites it. This is the bounded-ring
// "oldest wins" drop policy.
func sweepFree(ctx *Context, seg *topic.Segment, cell *topic.RefCell, i uint32) error {
	hdr := seg.Header()
	for d := uint32(0); d < hdr.NumDomains; d++ {
		if cell.Availability&(1<<d) == 0 {
			continue
		}
		e := seg.Entry(d, i)
		if e.IsNull() {
			continue
		}
		alloc, ok := ctx.Allocators.Lookup(allocIDFromWire(e.AllocatorID))
		if !ok {
			continue // allocator already gone from this process; nothing to free locally
		}
		if err := alloc.Deallocate(e.Offset); err != nil {
			return herrors.Wrap(herrors.AllocatorOutOfSpace, seg.Name, err, "freeing drained slot %d column %d", i, d)
		}
		*e = topic.Entry{}
	}
	cell.Availability = 0
	cell.InterestCount = 0
	return nil
}
