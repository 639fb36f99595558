package queue

import (
	"sync/atomic"

	"github.com/nightduck/rmw-hazcat/internal/allocator"
	"github.com/nightduck/rmw-hazcat/internal/domain"
	"github.com/nightduck/rmw-hazcat/internal/herrors"
	"github.com/nightduck/rmw-hazcat/internal/metrics"
	"github.com/nightduck/rmw-hazcat/internal/topic"
)

// Publisher is a registered publish-side endpoint (§4.3's "publisher
// handle"): its allocator, the topic node it writes into, and its fixed
// domain column.
type Publisher struct {
	Topic    string
	Alloc    allocator.Allocator
	ArrayNum uint32

	ctx *Context
	seg *topic.Segment
}

// Subscriber is a registered take-side endpoint (§4.4's "subscriber
// handle"). NextIndex advances on every successful Take.
type Subscriber struct {
	Topic     string
	Alloc     allocator.Allocator
	ArrayNum  uint32
	Depth     uint32
	NextIndex uint32

	ctx *Context
	seg *topic.Segment
}

// RegisterPublisher attaches alloc to topicName as a publisher, creating
// the segment if this is the first endpoint to touch it (§4.6). depth
// seeds the ring's initial length when the segment is newly created; it is
// ignored if the segment already exists (the segment keeps whatever depth
// the first registrant picked until a later endpoint asks for more, which
// triggers Grow).
func RegisterPublisher(ctx *Context, topicName string, alloc allocator.Allocator, depth uint32) (*Publisher, error) {
	seg, arrayNum, err := registerEndpoint(ctx, topicName, alloc, depth, true)
	if err != nil {
		return nil, err
	}
	return &Publisher{Topic: topicName, Alloc: alloc, ArrayNum: arrayNum, ctx: ctx, seg: seg}, nil
}

// RegisterSubscription attaches alloc to topicName as a subscriber. Its
// NextIndex is initialized to the segment's current Index so it ignores
// any backlog already present, per §4.6.
func RegisterSubscription(ctx *Context, topicName string, alloc allocator.Allocator, depth uint32) (*Subscriber, error) {
	seg, arrayNum, err := registerEndpoint(ctx, topicName, alloc, depth, false)
	if err != nil {
		return nil, err
	}
	next := atomic.LoadUint32(&seg.Header().Index)
	return &Subscriber{Topic: topicName, Alloc: alloc, ArrayNum: arrayNum, Depth: depth, NextIndex: next, ctx: ctx, seg: seg}, nil
}

// registerEndpoint implements the shared body of §4.6's registration
// algorithm for both publishers and subscribers, returning the segment and
// the caller's resolved domain column.
func registerEndpoint(ctx *Context, topicName string, alloc allocator.Allocator, depth uint32, isPub bool) (*topic.Segment, uint32, error) {
	ctx.Allocators.Register(alloc)

	initialLen := depth
	if initialLen == 0 {
		initialLen = 1
	}
	seg, err := ctx.Topics.Acquire(topicName, initialLen, 1)
	if err != nil {
		ctx.Allocators.Unregister(alloc)
		return nil, 0, err
	}
	seg.SetLockTimeout(ctx.LockTimeout)

	if err := seg.LockExclusive(); err != nil {
		ctx.Allocators.Unregister(alloc)
		return nil, 0, err
	}
	defer seg.Unlock()

	hdr := seg.Header()
	arrayNum, needGrow, err := appendOrFindDomain(hdr, alloc.Domain())
	if err != nil {
		ctx.Allocators.Unregister(alloc)
		ctx.Topics.Release(topicName)
		return nil, 0, err
	}

	needGrowLen := depth > hdr.Len
	if needGrow || needGrowLen {
		newLen := hdr.Len
		if needGrowLen {
			newLen = depth
		}
		if err := seg.Grow(newLen, hdr.NumDomains); err != nil {
			ctx.Allocators.Unregister(alloc)
			ctx.Topics.Release(topicName)
			return nil, 0, err
		}
		hdr = seg.Header()
	}

	if isPub {
		if hdr.PubCount == 0xFFFF {
			ctx.Allocators.Unregister(alloc)
			ctx.Topics.Release(topicName)
			return nil, 0, herrors.New(herrors.EndpointCountExceeded, topicName, "publisher count saturated at 65535")
		}
		hdr.PubCount++
	} else {
		if hdr.SubCount == 0xFFFF {
			ctx.Allocators.Unregister(alloc)
			ctx.Topics.Release(topicName)
			return nil, 0, herrors.New(herrors.EndpointCountExceeded, topicName, "subscriber count saturated at 65535")
		}
		hdr.SubCount++
	}

	metrics.SetActiveTopics(ctx.Topics.Count())
	metrics.SetActiveDomains(topicName, int(hdr.NumDomains))

	return seg, arrayNum, nil
}

// appendOrFindDomain locates dom among hdr.Domains[:hdr.NumDomains],
// appending it if absent. Domains itself is a fixed [32]uint32 in the
// header, but every Entry row is laid out numDomains-wide (layout.go's
// entryOffset), so appending a column always needs a Grow to extend the
// backing file to fit the new row before any Entry in it is addressed.
func appendOrFindDomain(hdr *topic.Header, dom domain.ID) (column uint32, needGrow bool, err error) {
	for i := uint32(0); i < hdr.NumDomains; i++ {
		if hdr.Domains[i] == uint32(dom) {
			return i, false, nil
		}
	}
	if hdr.NumDomains >= topic.DomainsPerTopic {
		return 0, false, herrors.New(herrors.DomainCapacityExceeded, "", "topic already binds %d domains", topic.DomainsPerTopic)
	}
	column = hdr.NumDomains
	hdr.Domains[column] = uint32(dom)
	hdr.NumDomains++
	return column, true, nil
}

// UnregisterPublisher removes pub from its topic per §4.6, unlinking the
// segment if it was the last endpoint of either kind.
func UnregisterPublisher(pub *Publisher) error {
	return unregisterEndpoint(pub.ctx, pub.Topic, pub.Alloc, pub.seg, true)
}

// UnregisterSubscription removes sub from its topic per §4.6.
func UnregisterSubscription(sub *Subscriber) error {
	return unregisterEndpoint(sub.ctx, sub.Topic, sub.Alloc, sub.seg, false)
}

func unregisterEndpoint(ctx *Context, topicName string, alloc allocator.Allocator, seg *topic.Segment, isPub bool) error {
	if seg == nil {
		return herrors.New(herrors.NotRegistered, topicName, "unregister called on an endpoint with no topic segment")
	}

	if err := seg.LockExclusive(); err != nil {
		return err
	}
	hdr := seg.Header()
	if isPub {
		if hdr.PubCount > 0 {
			hdr.PubCount--
		}
	} else {
		if hdr.SubCount > 0 {
			hdr.SubCount--
		}
	}
	empty := hdr.PubCount == 0 && hdr.SubCount == 0
	numDomains := hdr.NumDomains
	path := ctx.Topics.Path(topicName)
	if err := seg.Unlock(); err != nil {
		return err
	}

	ctx.Allocators.Unregister(alloc)
	if err := ctx.Topics.Release(topicName); err != nil {
		return err
	}
	metrics.SetActiveTopics(ctx.Topics.Count())
	metrics.SetActiveDomains(topicName, int(numDomains))
	if empty {
		if err := topic.Unlink(path); err != nil {
			return herrors.Wrap(herrors.TopicOpenFailed, topicName, err, "unlinking drained segment")
		}
	}
	return nil
}
