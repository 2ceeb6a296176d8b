package conservation

import (
	"math"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.manifold.dev/atlas/metrics"
	pb "go.manifold.dev/atlas/protocol"
)

// DomainHandle is an opaque handle of a conservation domain. Zero is never a valid handle.
type DomainHandle uint64

// WitnessHandle is an opaque handle of a data witness. Zero is never a valid handle.
type WitnessHandle uint64

// InvalidDelta is returned by Service.Delta for buffers which cannot be compared.
const InvalidDelta uint8 = 255

// MaxStreamLength is the largest buffer admissible to streaming checks:
// the extent of the Φ address space.
const MaxStreamLength = math.MaxUint32

// Service is the Layer-2 Conservation contract.
type Service interface {
	// DomainCreate allocates a conservation domain of |size| bytes and budget
	// class |budgetClass| (< 96).
	DomainCreate(size int, budgetClass uint8) (DomainHandle, error)
	// DomainDestroy releases the domain. It must be called only with a live handle.
	DomainDestroy(DomainHandle)
	// DomainVerify checks the integrity of the domain.
	DomainVerify(DomainHandle) bool
	// WitnessGenerate produces a witness over |data|.
	WitnessGenerate(data []byte) (WitnessHandle, error)
	// WitnessVerify returns whether the witness attests to |data|.
	WitnessVerify(h WitnessHandle, data []byte) bool
	// WitnessDestroy releases the witness. It must be called only with a live handle.
	WitnessDestroy(WitnessHandle)
	// Check returns whether |data| is conserved (Σbytes ≡ 0 mod 96).
	Check(data []byte) bool
	// CheckStreaming returns whether |data| is admissible to windowed
	// streaming conservation.
	CheckStreaming(data []byte) bool
	// Delta returns a conservation distance in [0, 48] between equal-length
	// buffers, or InvalidDelta.
	Delta(a, b []byte) uint8
}

// Reference is an in-process Service. It's safe for concurrent use.
type Reference struct {
	mu        sync.Mutex
	next      uint64
	domains   map[DomainHandle]domainState
	witnesses map[WitnessHandle]pb.Digest
	// Maximum number of live domains, or zero if unbounded.
	capacity int
	// Window size of streaming residue accumulation.
	window int
}

type domainState struct {
	size        int
	budgetClass uint8
}

// Option configures a Reference.
type Option func(*Reference)

// WithDomainCapacity bounds the number of concurrently live domains.
// Creation beyond the bound fails with an AllocationError.
func WithDomainCapacity(n int) Option { return func(r *Reference) { r.capacity = n } }

// WithStreamingWindow sets the window size used by streaming accumulation.
func WithStreamingWindow(n int) Option { return func(r *Reference) { r.window = n } }

// NewReference returns a new Reference Service.
func NewReference(opts ...Option) *Reference {
	var r = &Reference{
		domains:   make(map[DomainHandle]domainState),
		witnesses: make(map[WitnessHandle]pb.Digest),
		window:    pb.AtlasPageSize,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// DomainCreate implements Service.
func (r *Reference) DomainCreate(size int, budgetClass uint8) (DomainHandle, error) {
	if size < pb.PageSize {
		return 0, pb.NewError(pb.AllocationError, "domain size below minimum (%d; expected >= %d)", size, pb.PageSize)
	} else if budgetClass >= pb.NumClasses {
		return 0, pb.NewError(pb.InvalidInput, "budget class out of range (%d)", budgetClass)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capacity != 0 && len(r.domains) >= r.capacity {
		return 0, pb.NewError(pb.AllocationError, "domain capacity exhausted (%d live)", len(r.domains))
	}
	r.next++
	var h = DomainHandle(r.next)
	r.domains[h] = domainState{size: size, budgetClass: budgetClass}

	metrics.ConservationDomainsLive.Inc()
	return h, nil
}

// DomainDestroy implements Service.
func (r *Reference) DomainDestroy(h DomainHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.domains[h]; !ok {
		log.WithField("domain", h).Warn("destroy of unknown conservation domain")
		return
	}
	delete(r.domains, h)
	metrics.ConservationDomainsLive.Dec()
}

// DomainVerify implements Service.
func (r *Reference) DomainVerify(h DomainHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	var d, ok = r.domains[h]
	return ok && d.size >= pb.PageSize && d.budgetClass < pb.NumClasses
}

// WitnessGenerate implements Service.
func (r *Reference) WitnessGenerate(data []byte) (WitnessHandle, error) {
	if uint64(len(data)) > MaxStreamLength {
		return 0, pb.NewError(pb.InvalidInput, "witness data too large (%d)", len(data))
	}
	var digest = pb.DigestOf(pb.ConservationDomain, data)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	var h = WitnessHandle(r.next)
	r.witnesses[h] = digest
	return h, nil
}

// WitnessVerify implements Service.
func (r *Reference) WitnessVerify(h WitnessHandle, data []byte) bool {
	r.mu.Lock()
	var digest, ok = r.witnesses[h]
	r.mu.Unlock()

	return ok && digest == pb.DigestOf(pb.ConservationDomain, data)
}

// WitnessDestroy implements Service.
func (r *Reference) WitnessDestroy(h WitnessHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.witnesses[h]; !ok {
		log.WithField("witness", h).Warn("destroy of unknown conservation witness")
		return
	}
	delete(r.witnesses, h)
}

// Check implements Service.
func (r *Reference) Check(data []byte) bool { return pb.ConservationResidue(data) == 0 }

// CheckStreaming implements Service. Data is admissible if it's non-empty,
// within MaxStreamLength, and its windowed residue accumulation agrees with
// its single-pass residue.
func (r *Reference) CheckStreaming(data []byte) bool {
	if len(data) == 0 || uint64(len(data)) > MaxStreamLength {
		return false
	}
	return r.streamingResidue(data) == pb.ConservationResidue(data)
}

// Delta implements Service. The distance is the circular distance between
// the residues of |a| and |b|, which never exceeds half the modulus.
func (r *Reference) Delta(a, b []byte) uint8 {
	if len(a) != len(b) || len(a) == 0 {
		return InvalidDelta
	}
	var d = (r.streamingResidue(b) + pb.Modulus - r.streamingResidue(a)) % pb.Modulus
	if d > pb.Modulus/2 {
		d = pb.Modulus - d
	}
	return uint8(d)
}

// LiveDomains returns the number of created and not yet destroyed domains.
func (r *Reference) LiveDomains() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.domains)
}

// LiveWitnesses returns the number of created and not yet destroyed witnesses.
func (r *Reference) LiveWitnesses() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.witnesses)
}

// streamingResidue folds per-window residues into a running residue.
func (r *Reference) streamingResidue(data []byte) uint64 {
	var window = r.window
	if window <= 0 {
		window = len(data)
	}
	var residue uint64
	for len(data) != 0 {
		var n = window
		if n > len(data) {
			n = len(data)
		}
		residue = (residue + pb.ConservationResidue(data[:n])) % pb.Modulus
		data = data[n:]
	}
	return residue
}
