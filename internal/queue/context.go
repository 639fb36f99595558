// Package queue implements the publish and take paths over a topic
// segment (core specification §4.3, §4.4) plus endpoint registration and
// teardown (§4.6). It threads an explicit *Context through every entry
// point rather than holding file-scope singletons, per §9's recommended
// disposition of the "global mutable state" design note: tests can create
// as many independent contexts as they need without sharing process state.
package queue

import (
	"time"

	"github.com/nightduck/rmw-hazcat/internal/allocreg"
	"github.com/nightduck/rmw-hazcat/internal/topicreg"
)

// Context bundles the process-local registries an endpoint needs: the
// allocator registry (§4.2) and the topic registry (§2 item 4). Init in the
// old source's sense is just NewContext here; Context has no teardown call.
type Context struct {
	ShmDir     string
	Allocators *allocreg.Registry
	Topics     *topicreg.Registry

	// LockTimeout bounds how long a registered endpoint's segment waits on
	// LockShared/LockExclusive (internal/config's LockWaitTimeout). Zero
	// means block indefinitely. Applied to a segment as soon as this
	// Context acquires it (see registerEndpoint).
	LockTimeout time.Duration
}

// NewContext creates a fresh, empty context rooted at shmDir (the
// directory standing in for /dev/shm).
func NewContext(shmDir string) *Context {
	return &Context{
		ShmDir:     shmDir,
		Allocators: allocreg.New(),
		Topics:     topicreg.New(shmDir),
	}
}
