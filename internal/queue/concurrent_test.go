package queue

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nightduck/rmw-hazcat/internal/allocator"
	"github.com/nightduck/rmw-hazcat/internal/domain"
	"github.com/nightduck/rmw-hazcat/internal/topic"
)

var errTakeUnexpectedlyEmpty = errors.New("take reported empty for a slot known to hold a message")

// TestClaimSlotConcurrentPublishersWrapCleanly races many goroutines against
// claimSlot's fetch-add-then-wrap-CAS index claim (§4.3 step 2). Every call
// is backed by a unique, monotonically increasing fetch-add, so across any
// whole number of laps around the ring each slot index must be claimed
// exactly laps times -- a double-claim or a dropped claim here would mean
// the wrap-CAS let two publishers believe they owned the same raw index.
func TestClaimSlotConcurrentPublishersWrapCleanly(t *testing.T) {
	const length = 8
	const laps = 50
	const totalClaims = length * laps

	hdr := &topic.Header{Len: length}
	counts := make([]int32, length)

	var wg sync.WaitGroup
	wg.Add(totalClaims)
	for i := 0; i < totalClaims; i++ {
		go func() {
			defer wg.Done()
			i := claimSlot(hdr)
			atomic.AddInt32(&counts[i], 1)
		}()
	}
	wg.Wait()

	for slot, c := range counts {
		require.Equalf(t, int32(laps), c, "slot %d claimed %d times, want %d", slot, c, laps)
	}
	require.Less(t, hdr.Index, uint32(length), "Index should always be wrapped back into [0, len)")
}

// TestConcurrentSubscribersRaceMaterializationOnSameSlot registers many
// subscribers sharing the CPU domain column against a single GPU publish,
// so they all race to take the same slot, whose CPU column is empty. The
// per-row spinlock (§4.4/§9 option a) must serialize them so only the first
// to win the lock materializes a CPU copy and the rest hit it: every
// subscriber should still see the right bytes,
// nobody should error, and the slot's interest count must land on exactly
// zero once all of them have taken.
func TestConcurrentSubscribersRaceMaterializationOnSameSlot(t *testing.T) {
	ctx := NewContext(t.TempDir())
	gpu, err := allocator.NewDevice(domain.New(domain.TypeCUDA, 0), 64, 8)
	require.NoError(t, err)
	cpu, err := allocator.NewCPURing(64, 64)
	require.NoError(t, err)

	const subCount = 16
	pub, err := RegisterPublisher(ctx, "/T", gpu, 3)
	require.NoError(t, err)

	subs := make([]*Subscriber, subCount)
	for i := range subs {
		subs[i], err = RegisterSubscription(ctx, "/T", cpu, 3)
		require.NoError(t, err)
	}

	publishBytes(t, pub, []byte("racing payload"))

	var wg sync.WaitGroup
	results := make([][]byte, subCount)
	errs := make([]error, subCount)
	wg.Add(subCount)
	for i := range subs {
		i := i
		go func() {
			defer wg.Done()
			data, ok, _, err := Take(subs[i])
			if err == nil && !ok {
				err = errTakeUnexpectedlyEmpty
			}
			results[i] = data
			errs[i] = err
		}()
	}
	wg.Wait()

	for i := range subs {
		require.NoErrorf(t, errs[i], "subscriber %d", i)
		require.Equalf(t, "racing payload", string(results[i]), "subscriber %d", i)
	}
	require.Equal(t, uint32(0), pub.seg.RefCell(0).InterestCount)
}
