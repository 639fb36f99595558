// Package allocator defines the capability contract the topic core uses to
// reserve, share and move payload bytes inside a memory domain, and ships
// two concrete implementations: a default host ring allocator and a
// simulated device allocator used to exercise the cross-domain copy path
// without real accelerator hardware.
package allocator

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/nightduck/rmw-hazcat/internal/domain"
)

// ID is the shared-memory identifier a topic segment stores in an Entry to
// name the allocator that owns the referenced bytes. It is resolved back to
// a mapped Allocator handle through the process-local allocator registry
// (internal/allocreg), never persisted as a raw pointer.
type ID uint64

// newID mints a collision-free allocator id without a coordinating
// authority: the C original hands out small integers from its own shared
// allocator machinery, but this reimplementation has no single process-wide
// authority to hand those out, so ids are derived from a random UUID.
func newID() ID {
	u := uuid.New()
	return ID(binary.BigEndian.Uint64(u[:8]))
}

// Allocator is the capability contract of the core specification's §4.5.
// Any allocator meeting it plugs into the topic core. offsets are relative
// to the allocator's own mapped base and are only ever resolved by the
// allocator itself -- the core never reads or writes raw addresses.
type Allocator interface {
	// ID returns this allocator's shared-memory identifier.
	ID() ID
	// Domain returns the memory domain this allocator serves.
	Domain() domain.ID

	// Allocate reserves size bytes and returns their offset, or an
	// AllocatorOutOfSpace error if no space is available.
	Allocate(size uint32) (offset uint32, err error)
	// Deallocate decrements the share count of the block at offset,
	// reclaiming it once the count reaches zero.
	Deallocate(offset uint32) error
	// Share increments the share count of the block at offset without
	// allocating.
	Share(offset uint32) error

	// Bytes returns a view of length bytes starting at offset. The slice
	// aliases the allocator's backing arena; callers must not retain it
	// past the block's lifetime.
	Bytes(offset, length uint32) []byte

	// CopyTo copies host bytes into this allocator's region at dstOffset.
	// Used when the copy source is the CPU domain.
	CopyTo(dstOffset uint32, src []byte) error
	// CopyFrom copies this allocator's region at srcOffset into dst.
	// Used when the copy destination is the CPU domain.
	CopyFrom(srcOffset uint32, dst []byte) error
	// Copy drives a direct transfer from src (at srcOffset, n bytes) into
	// this allocator's region at dstOffset. Used when neither side of the
	// copy is the CPU domain; the destination allocator owns the
	// transfer, per §4.5's three-way rule.
	Copy(dstOffset uint32, src Allocator, srcOffset uint32, n uint32) error

	// Close releases the allocator's backing arena.
	Close() error
}
