package queue

import (
	"bytes"
	"testing"

	"github.com/nightduck/rmw-hazcat/internal/allocator"
	"github.com/nightduck/rmw-hazcat/internal/domain"
)

// publishBytes is a test helper standing in for what pkg/hazcat.Publish
// does: allocate inside the publisher's allocator, copy the payload in,
// then hand the resulting (offset, length) to queue.Publish.
func publishBytes(t *testing.T, pub *Publisher, payload []byte) {
	t.Helper()
	off, err := pub.Alloc.Allocate(uint32(len(payload)))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := pub.Alloc.CopyTo(off, payload); err != nil {
		t.Fatalf("CopyTo: %v", err)
	}
	if _, err := Publish(pub, off, uint32(len(payload))); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestLonePublishTake(t *testing.T) {
	ctx := NewContext(t.TempDir())
	allocA, err := allocator.NewCPURing(64, 8)
	if err != nil {
		t.Fatalf("NewCPURing: %v", err)
	}
	pub, err := RegisterPublisher(ctx, "/T", allocA, 3)
	if err != nil {
		t.Fatalf("RegisterPublisher: %v", err)
	}
	sub, err := RegisterSubscription(ctx, "/T", allocA, 3)
	if err != nil {
		t.Fatalf("RegisterSubscription: %v", err)
	}

	publishBytes(t, pub, []byte{1, 2, 3, 4})

	got, ok, _, err := Take(sub)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if !ok {
		t.Fatal("expected a message")
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Fatalf("got %v, want [1 2 3 4]", got)
	}
	if sub.seg.RefCell(0).InterestCount != 0 {
		t.Fatalf("expected interest_count == 0 after the only subscriber took")
	}
}

func TestOverflowDropsOldest(t *testing.T) {
	// The ring is sized from the first registrant's depth (4), giving the
	// physical ring headroom beyond the subscriber's own catch-up window
	// (2) so the scenario exercises the depth contract's jump-on-lag path
	// rather than the ring's own slot-reuse overwrite path.
	ctx := NewContext(t.TempDir())
	allocA, err := allocator.NewCPURing(64, 8)
	if err != nil {
		t.Fatalf("NewCPURing: %v", err)
	}
	pub, err := RegisterPublisher(ctx, "/T", allocA, 4)
	if err != nil {
		t.Fatalf("RegisterPublisher: %v", err)
	}
	sub, err := RegisterSubscription(ctx, "/T", allocA, 2)
	if err != nil {
		t.Fatalf("RegisterSubscription: %v", err)
	}

	publishBytes(t, pub, []byte("m1"))
	publishBytes(t, pub, []byte("m2"))
	publishBytes(t, pub, []byte("m3"))

	got, ok, _, err := Take(sub)
	if err != nil || !ok {
		t.Fatalf("Take 1: ok=%v err=%v", ok, err)
	}
	if string(got) != "m2" {
		t.Fatalf("Take 1 = %q, want m2", got)
	}
	got, ok, _, err = Take(sub)
	if err != nil || !ok {
		t.Fatalf("Take 2: ok=%v err=%v", ok, err)
	}
	if string(got) != "m3" {
		t.Fatalf("Take 2 = %q, want m3", got)
	}
	_, ok, _, err = Take(sub)
	if err != nil {
		t.Fatalf("Take 3: %v", err)
	}
	if ok {
		t.Fatal("expected empty on third take")
	}
}

func TestLateSubscriberIgnoresBacklog(t *testing.T) {
	ctx := NewContext(t.TempDir())
	allocA, err := allocator.NewCPURing(64, 8)
	if err != nil {
		t.Fatalf("NewCPURing: %v", err)
	}
	pub, err := RegisterPublisher(ctx, "/T", allocA, 4)
	if err != nil {
		t.Fatalf("RegisterPublisher: %v", err)
	}
	publishBytes(t, pub, []byte("m1"))
	publishBytes(t, pub, []byte("m2"))

	sub, err := RegisterSubscription(ctx, "/T", allocA, 4)
	if err != nil {
		t.Fatalf("RegisterSubscription: %v", err)
	}
	_, ok, _, err := Take(sub)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if ok {
		t.Fatal("late subscriber should see empty before any post-registration publish")
	}

	publishBytes(t, pub, []byte("m3"))
	got, ok, _, err := Take(sub)
	if err != nil || !ok {
		t.Fatalf("Take after m3: ok=%v err=%v", ok, err)
	}
	if string(got) != "m3" {
		t.Fatalf("got %q, want m3", got)
	}
}

func TestCrossDomainMaterializationAndCaching(t *testing.T) {
	ctx := NewContext(t.TempDir())
	gpu, err := allocator.NewDevice(domain.New(domain.TypeCUDA, 0), 64, 8)
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	cpu, err := allocator.NewCPURing(64, 8)
	if err != nil {
		t.Fatalf("NewCPURing: %v", err)
	}

	pub, err := RegisterPublisher(ctx, "/T", gpu, 3)
	if err != nil {
		t.Fatalf("RegisterPublisher: %v", err)
	}
	subB, err := RegisterSubscription(ctx, "/T", cpu, 3)
	if err != nil {
		t.Fatalf("RegisterSubscription B: %v", err)
	}
	subC, err := RegisterSubscription(ctx, "/T", cpu, 3)
	if err != nil {
		t.Fatalf("RegisterSubscription C: %v", err)
	}

	publishBytes(t, pub, []byte("cross-domain payload"))

	got, ok, missed, err := Take(subB)
	if err != nil || !ok {
		t.Fatalf("Take B: ok=%v err=%v", ok, err)
	}
	if !missed {
		t.Fatal("subB should have missed and materialized a CPU copy")
	}
	if string(got) != "cross-domain payload" {
		t.Fatalf("Take B = %q", got)
	}
	cell := subB.seg.RefCell(0)
	if cell.Availability&(1<<subB.ArrayNum) == 0 {
		t.Fatal("CPU column bit not set after materialization")
	}

	got, ok, missed, err = Take(subC)
	if err != nil || !ok {
		t.Fatalf("Take C: ok=%v err=%v", ok, err)
	}
	if missed {
		t.Fatal("subC shares subB's CPU column and should hit the cached copy")
	}
	if string(got) != "cross-domain payload" {
		t.Fatalf("Take C = %q", got)
	}
}

func TestTwoSubscribersSameSlotFreesOnLastTake(t *testing.T) {
	ctx := NewContext(t.TempDir())
	allocA, err := allocator.NewCPURing(64, 8)
	if err != nil {
		t.Fatalf("NewCPURing: %v", err)
	}
	pub, err := RegisterPublisher(ctx, "/T", allocA, 3)
	if err != nil {
		t.Fatalf("RegisterPublisher: %v", err)
	}
	sub1, err := RegisterSubscription(ctx, "/T", allocA, 3)
	if err != nil {
		t.Fatalf("RegisterSubscription 1: %v", err)
	}
	sub2, err := RegisterSubscription(ctx, "/T", allocA, 3)
	if err != nil {
		t.Fatalf("RegisterSubscription 2: %v", err)
	}

	publishBytes(t, pub, []byte("m"))

	if _, ok, _, err := Take(sub1); err != nil || !ok {
		t.Fatalf("Take 1: ok=%v err=%v", ok, err)
	}
	if got := sub1.seg.RefCell(0).InterestCount; got != 1 {
		t.Fatalf("interest_count after first take = %d, want 1", got)
	}
	if _, ok, _, err := Take(sub2); err != nil || !ok {
		t.Fatalf("Take 2: ok=%v err=%v", ok, err)
	}
	if got := sub2.seg.RefCell(0).InterestCount; got != 0 {
		t.Fatalf("interest_count after second take = %d, want 0", got)
	}

	// The ring should accept fresh allocations: the slot was swept free.
	if _, err := allocA.Allocate(1); err != nil {
		t.Fatalf("ring allocator should have reclaimed the slot: %v", err)
	}
}

func TestSegmentTeardownAndRecreate(t *testing.T) {
	dir := t.TempDir()
	ctx := NewContext(dir)
	allocA, err := allocator.NewCPURing(64, 8)
	if err != nil {
		t.Fatalf("NewCPURing: %v", err)
	}

	pub, err := RegisterPublisher(ctx, "/T", allocA, 2)
	if err != nil {
		t.Fatalf("RegisterPublisher: %v", err)
	}
	sub, err := RegisterSubscription(ctx, "/T", allocA, 2)
	if err != nil {
		t.Fatalf("RegisterSubscription: %v", err)
	}
	publishBytes(t, pub, []byte("hi"))
	if _, _, _, err := Take(sub); err != nil {
		t.Fatalf("Take: %v", err)
	}

	if err := UnregisterPublisher(pub); err != nil {
		t.Fatalf("UnregisterPublisher: %v", err)
	}
	if err := UnregisterSubscription(sub); err != nil {
		t.Fatalf("UnregisterSubscription: %v", err)
	}

	ctx2 := NewContext(dir)
	pub2, err := RegisterPublisher(ctx2, "/T", allocA, 2)
	if err != nil {
		t.Fatalf("RegisterPublisher (recreate): %v", err)
	}
	if pub2.seg.Header().Index != 0 {
		t.Fatalf("recreated segment should start at index 0, got %d", pub2.seg.Header().Index)
	}
}
