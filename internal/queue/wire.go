package queue

import "github.com/nightduck/rmw-hazcat/internal/allocator"

// allocIDFromWire converts an Entry's raw AllocatorID field (a plain uint64
// because it must have a fixed, process-independent width in shared
// memory) back into the typed allocator.ID used by allocreg lookups.
func allocIDFromWire(raw uint64) allocator.ID {
	return allocator.ID(raw)
}
