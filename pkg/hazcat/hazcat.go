// Package hazcat is the consumer-facing surface of the heterogeneous
// zero-copy message queue: the small set of calls an outer pub/sub
// middleware needs (§6 of the core design) to open a process-local
// context, register publishers and subscribers against named topics, move
// messages through them, and tear endpoints back down.
//
// Everything below this package -- segment layout, row locking, the
// allocator registry -- is an implementation detail; callers only ever see
// Context, Publisher, Subscriber, and the byte slices that cross domains.
package hazcat

import (
	"github.com/nightduck/rmw-hazcat/internal/allocator"
	"github.com/nightduck/rmw-hazcat/internal/config"
	"github.com/nightduck/rmw-hazcat/internal/herrors"
	"github.com/nightduck/rmw-hazcat/internal/metrics"
	"github.com/nightduck/rmw-hazcat/internal/queue"
	"github.com/nightduck/rmw-hazcat/internal/version"
)

// Context is a process-local instance of the core: its allocator registry
// and its open topic segments. Init/Fini from the original's global
// lifecycle return and release a Context value here, so a test -- or a process that
// wants two independent instances -- never shares state through a package
// singleton (§9's "global mutable state" disposition).
type Context struct {
	cfg config.Config
	q   *queue.Context
}

// Init creates a new Context from cfg, verifying cfg's configured minimum
// library version is satisfied by this build.
func Init(cfg config.Config) (*Context, error) {
	if err := version.CheckMinimum(cfg.MinSupportedVersion); err != nil {
		return nil, err
	}
	if cfg.MetricsListenAddr != "" {
		metrics.Register()
	}
	q := queue.NewContext(cfg.ShmDir)
	q.LockTimeout = cfg.LockWaitTimeout.Duration
	return &Context{cfg: cfg, q: q}, nil
}

// Fini is the outer middleware's call to release a Context. It does not
// unregister any endpoints still open against it -- callers must
// Unregister* each of their own handles first, exactly as the original
// requires unregistration before process exit.
func (c *Context) Fini() {}

// Publisher is a registered publish-side endpoint.
type Publisher struct {
	ctx *Context
	p   *queue.Publisher
}

// Subscriber is a registered take-side endpoint.
type Subscriber struct {
	ctx *Context
	s   *queue.Subscriber
}

// defaultAllocator builds the host ring allocator an endpoint gets when it
// supplies none of its own (§6, §9).
func (c *Context) defaultAllocator() (allocator.Allocator, error) {
	return allocator.NewCPURing(c.cfg.DefaultAllocatorSlotSize, c.cfg.DefaultAllocatorSlotCount)
}

// RegisterPublisher attaches alloc (or a default host allocator, if nil)
// to topicName as a publisher with the given history depth.
func (c *Context) RegisterPublisher(topicName string, alloc allocator.Allocator, depth uint32) (*Publisher, error) {
	if alloc == nil {
		var err error
		alloc, err = c.defaultAllocator()
		if err != nil {
			return nil, err
		}
	}
	p, err := queue.RegisterPublisher(c.q, topicName, alloc, depth)
	if err != nil {
		return nil, err
	}
	return &Publisher{ctx: c, p: p}, nil
}

// RegisterSubscription attaches alloc (or a default host allocator, if
// nil) to topicName as a subscriber with the given history depth.
func (c *Context) RegisterSubscription(topicName string, alloc allocator.Allocator, depth uint32) (*Subscriber, error) {
	if alloc == nil {
		var err error
		alloc, err = c.defaultAllocator()
		if err != nil {
			return nil, err
		}
	}
	s, err := queue.RegisterSubscription(c.q, topicName, alloc, depth)
	if err != nil {
		return nil, err
	}
	return &Subscriber{ctx: c, s: s}, nil
}

// Publish copies payload into pub's allocator and deposits a descriptor
// for it into the topic ring (§4.3).
func (p *Publisher) Publish(payload []byte) error {
	off, err := p.p.Alloc.Allocate(uint32(len(payload)))
	if err != nil {
		return err
	}
	if err := p.p.Alloc.CopyTo(off, payload); err != nil {
		return err
	}
	overwrote, err := queue.Publish(p.p, off, uint32(len(payload)))
	if err != nil {
		return err
	}
	if p.ctx.cfg.MetricsListenAddr != "" {
		metrics.ObservePublish(p.p.Topic, overwrote)
	}
	return nil
}

// Take fetches the next unread message for sub, per §4.4. ok is false (and
// data nil) when the ring has nothing new -- this is not an error, per §7.
func (s *Subscriber) Take() (data []byte, ok bool, err error) {
	data, ok, missed, err := queue.Take(s.s)
	if err == nil && s.ctx.cfg.MetricsListenAddr != "" {
		metrics.ObserveTake(s.s.Topic, ok)
		if missed {
			metrics.ObserveCrossDomainMiss(s.s.Topic, s.s.Alloc.Domain().String())
		}
	}
	return data, ok, err
}

// Unregister detaches pub from its topic, destroying the segment if pub
// was the last endpoint of either kind (§4.6).
func (p *Publisher) Unregister() error {
	if p == nil || p.p == nil {
		return herrors.New(herrors.NotRegistered, "", "unregister called on a nil publisher")
	}
	return queue.UnregisterPublisher(p.p)
}

// Unregister detaches sub from its topic.
func (s *Subscriber) Unregister() error {
	if s == nil || s.s == nil {
		return herrors.New(herrors.NotRegistered, "", "unregister called on a nil subscriber")
	}
	return queue.UnregisterSubscription(s.s)
}
