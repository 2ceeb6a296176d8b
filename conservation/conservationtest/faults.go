// Package conservationtest provides a conservation.Service which injects
// faults into a wrapped Service, for testing the failure paths of callers.
package conservationtest

import (
	"sync"

	"go.manifold.dev/atlas/conservation"
	pb "go.manifold.dev/atlas/protocol"
)

// Faults wraps a conservation.Service, and fails selected operations.
// Zero-valued fields inject no faults. Faults is safe for concurrent use.
type Faults struct {
	conservation.Service

	mu sync.Mutex
	// Fail DomainCreate after this many successful calls, if non-negative.
	DomainCreateAfter int
	// Fail WitnessGenerate after this many successful calls, if non-negative.
	WitnessGenerateAfter int
	// Report a failed Check.
	FailCheck bool
	// Report a failed CheckStreaming for buffers of exactly this length, if non-zero.
	FailStreamingLen int
	// Report a failed DomainVerify.
	FailDomainVerify bool
	// Report a failed WitnessVerify.
	FailWitnessVerify bool
	// Report InvalidDelta from Delta.
	FailDelta bool
	// Report this distance from Delta, if non-zero.
	DeltaValue uint8
}

// New returns Faults over a new conservation.Reference, injecting no faults.
func New() *Faults {
	return &Faults{
		Service:              conservation.NewReference(),
		DomainCreateAfter:    -1,
		WitnessGenerateAfter: -1,
	}
}

// Reference returns the wrapped *conservation.Reference, or nil if the
// wrapped Service is of another type.
func (f *Faults) Reference() *conservation.Reference {
	var r, _ = f.Service.(*conservation.Reference)
	return r
}

// DomainCreate implements conservation.Service.
func (f *Faults) DomainCreate(size int, budgetClass uint8) (conservation.DomainHandle, error) {
	f.mu.Lock()
	if f.DomainCreateAfter == 0 {
		f.mu.Unlock()
		return 0, pb.NewError(pb.AllocationError, "injected DomainCreate fault")
	} else if f.DomainCreateAfter > 0 {
		f.DomainCreateAfter--
	}
	f.mu.Unlock()
	return f.Service.DomainCreate(size, budgetClass)
}

// WitnessGenerate implements conservation.Service.
func (f *Faults) WitnessGenerate(data []byte) (conservation.WitnessHandle, error) {
	f.mu.Lock()
	if f.WitnessGenerateAfter == 0 {
		f.mu.Unlock()
		return 0, pb.NewError(pb.AllocationError, "injected WitnessGenerate fault")
	} else if f.WitnessGenerateAfter > 0 {
		f.WitnessGenerateAfter--
	}
	f.mu.Unlock()
	return f.Service.WitnessGenerate(data)
}

// Check implements conservation.Service.
func (f *Faults) Check(data []byte) bool {
	f.mu.Lock()
	var fail = f.FailCheck
	f.mu.Unlock()
	return !fail && f.Service.Check(data)
}

// CheckStreaming implements conservation.Service.
func (f *Faults) CheckStreaming(data []byte) bool {
	f.mu.Lock()
	var fail = f.FailStreamingLen != 0 && f.FailStreamingLen == len(data)
	f.mu.Unlock()
	return !fail && f.Service.CheckStreaming(data)
}

// DomainVerify implements conservation.Service.
func (f *Faults) DomainVerify(h conservation.DomainHandle) bool {
	f.mu.Lock()
	var fail = f.FailDomainVerify
	f.mu.Unlock()
	return !fail && f.Service.DomainVerify(h)
}

// WitnessVerify implements conservation.Service.
func (f *Faults) WitnessVerify(h conservation.WitnessHandle, data []byte) bool {
	f.mu.Lock()
	var fail = f.FailWitnessVerify
	f.mu.Unlock()
	return !fail && f.Service.WitnessVerify(h, data)
}

// Delta implements conservation.Service.
func (f *Faults) Delta(a, b []byte) uint8 {
	f.mu.Lock()
	var fail, value = f.FailDelta, f.DeltaValue
	f.mu.Unlock()

	if fail {
		return conservation.InvalidDelta
	} else if value != 0 {
		return value
	}
	return f.Service.Delta(a, b)
}

// Set applies |fn| to the Faults while holding its lock.
func (f *Faults) Set(fn func(*Faults)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}
