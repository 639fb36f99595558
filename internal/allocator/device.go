package allocator

import (
	"errors"

	"github.com/nightduck/rmw-hazcat/internal/domain"
)

// ErrDeviceDomainIsCPU is returned by NewDevice when asked to tag a
// simulated device allocator with the CPU domain.
var ErrDeviceDomainIsCPU = errors.New("allocator: device allocator cannot be tagged with the CPU domain")

// Device is a simulated accelerator-domain allocator. It satisfies the same
// Allocator contract as CPURing but is tagged with a non-CPU domain id, so
// tests can exercise the cross-domain miss path of §4.4
// (scenario 4: "Cross-domain materialization") without real device
// hardware. Its Copy/CopyTo/CopyFrom methods perform a plain byte copy,
// standing in for whatever DMA engine a real device allocator would drive.
type Device struct {
	*CPURing
}

// NewDevice creates a simulated device allocator tagged with dom. dom must
// not be domain.CPU -- use NewCPURing for the host domain.
func NewDevice(dom domain.ID, slotSize, slotCount uint32) (*Device, error) {
	if dom == domain.CPU {
		return nil, ErrDeviceDomainIsCPU
	}
	ring, err := newRing(slotSize, slotCount, dom)
	if err != nil {
		return nil, err
	}
	return &Device{CPURing: ring}, nil
}
