package queue

import (
	"sync/atomic"

	"github.com/nightduck/rmw-hazcat/internal/allocator"
	"github.com/nightduck/rmw-hazcat/internal/domain"
	"github.com/nightduck/rmw-hazcat/internal/herrors"
	"github.com/nightduck/rmw-hazcat/internal/topic"
)

// Take implements §4.4. It returns (nil, false, false, nil) on an empty ring
// -- per §7, Empty is deliberately not an error. missed reports whether the
// payload had to be materialized into sub's domain column rather than read
// from an already-resident copy.
func Take(sub *Subscriber) (data []byte, ok bool, missed bool, err error) {
	seg := sub.seg
	if err := seg.LockShared(); err != nil {
		return nil, false, false, err
	}
	defer seg.Unlock()

	hdr := seg.Header()
	length := hdr.Len
	index := atomic.LoadUint32(&hdr.Index)

	lag := (index + length - sub.NextIndex) % length
	i := sub.NextIndex
	if lag > sub.Depth {
		i = (index + length - sub.Depth) % length
	}
	if i == index {
		return nil, false, false, nil
	}

	cell := seg.RefCell(i)
	topic.LockRow(cell)
	defer topic.UnlockRow(cell)

	var result []byte
	if cell.Availability&(1<<sub.ArrayNum) != 0 {
		entry := seg.Entry(sub.ArrayNum, i)
		alloc, ok := sub.ctx.Allocators.Lookup(allocIDFromWire(entry.AllocatorID))
		if !ok {
			return nil, false, false, herrors.New(herrors.NotRegistered, seg.Name, "allocator for hit column %d not registered locally", sub.ArrayNum)
		}
		if err := alloc.Share(entry.Offset); err != nil {
			return nil, false, false, err
		}
		result = alloc.Bytes(entry.Offset, entry.Length)
	} else {
		var err error
		result, err = materialize(sub, seg, cell, i)
		if err != nil {
			return nil, false, false, err
		}
		missed = true
	}

	cell.InterestCount--
	if cell.InterestCount == 0 {
		if err := sweepFree(sub.ctx, seg, cell, i); err != nil {
			return nil, false, false, err
		}
	}

	sub.NextIndex = (i + 1) % length
	return result, true, missed, nil
}

// materialize implements §4.4's miss path: the subscriber's domain column
// has no copy of slot i's payload yet. The lowest-numbered available
// column is the source; a new copy is allocated in the subscriber's
// allocator and filled via the three-way copy rule of §4.5.
func materialize(sub *Subscriber, seg *topic.Segment, cell *topic.RefCell, i uint32) ([]byte, error) {
	srcCol, ok := lowestSetBit(cell.Availability)
	if !ok {
		return nil, herrors.New(herrors.AllocatorOutOfSpace, seg.Name, "slot %d has no available domain column", i)
	}
	srcEntry := seg.Entry(srcCol, i)
	srcAlloc, ok := sub.ctx.Allocators.Lookup(allocIDFromWire(srcEntry.AllocatorID))
	if !ok {
		return nil, herrors.New(herrors.NotRegistered, seg.Name, "source allocator for column %d not registered locally", srcCol)
	}

	dstOffset, err := sub.Alloc.Allocate(srcEntry.Length)
	if err != nil {
		return nil, err
	}
	if err := copyThreeWay(sub.Alloc, dstOffset, srcAlloc, srcEntry.Offset, srcEntry.Length); err != nil {
		return nil, err
	}

	dstEntry := seg.Entry(sub.ArrayNum, i)
	dstEntry.AllocatorID = uint64(sub.Alloc.ID())
	dstEntry.Offset = dstOffset
	dstEntry.Length = srcEntry.Length
	cell.Availability |= 1 << sub.ArrayNum

	return sub.Alloc.Bytes(dstOffset, srcEntry.Length), nil
}

// copyThreeWay implements the routing rule of §4.5: when one side is the
// CPU, the allocator of the other (non-CPU) side drives the copy, since host
// memory has no allocator methods of its own; when neither side is the CPU,
// the destination allocator drives it.
func copyThreeWay(dst allocator.Allocator, dstOffset uint32, src allocator.Allocator, srcOffset, n uint32) error {
	switch {
	case src.Domain() == domain.CPU:
		return dst.CopyTo(dstOffset, src.Bytes(srcOffset, n))
	case dst.Domain() == domain.CPU:
		return src.CopyFrom(srcOffset, dst.Bytes(dstOffset, n))
	default:
		return dst.Copy(dstOffset, src, srcOffset, n)
	}
}

// lowestSetBit returns the index of the lowest set bit in mask, favoring
// column 0 (CPU) per §4.4's tie-break rule.
func lowestSetBit(mask uint32) (uint32, bool) {
	if mask == 0 {
		return 0, false
	}
	for i := uint32(0); i < topic.DomainsPerTopic; i++ {
		if mask&(1<<i) != 0 {
			return i, true
		}
	}
	return 0, false
}
