// Package allocreg is the process-local mapping from an allocator's
// shared-memory identifier to its mapped handle (core specification §4.2).
// It is never shared across processes -- each process builds its own by
// following ids it encounters on the take path.
package allocreg

import (
	"sync"

	"github.com/nightduck/rmw-hazcat/internal/allocator"
)

// Registry resolves allocator.ID to a live allocator.Allocator within this
// process. Entries are inserted whenever a publisher or subscriber whose
// alloc has that id registers for any topic, and removed on unregistration.
type Registry struct {
	mu    sync.RWMutex
	byID  map[allocator.ID]allocator.Allocator
	count map[allocator.ID]int // concurrent registrations sharing the same allocator
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byID:  make(map[allocator.ID]allocator.Allocator),
		count: make(map[allocator.ID]int),
	}
}

// Register records alloc under its id, ref-counting repeat registrations of
// the same allocator across multiple endpoints in this process.
func (r *Registry) Register(alloc allocator.Allocator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := alloc.ID()
	r.byID[id] = alloc
	r.count[id]++
}

// Unregister drops one reference to alloc's id, removing it from the
// registry once no endpoint in this process still uses it.
func (r *Registry) Unregister(alloc allocator.Allocator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := alloc.ID()
	r.count[id]--
	if r.count[id] <= 0 {
		delete(r.byID, id)
		delete(r.count, id)
	}
}

// Lookup resolves id to its mapped allocator, as used by the take path when
// a reader needs to consult a foreign allocator (§4.4).
func (r *Registry) Lookup(id allocator.ID) (allocator.Allocator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	return a, ok
}
