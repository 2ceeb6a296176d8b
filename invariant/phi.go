package invariant

import (
	"fmt"

	pb "go.manifold.dev/atlas/protocol"
)

// PhiState is the state of a PhiVerifier.
type PhiState int

const (
	PhiUninitialized PhiState = iota
	PhiRecording
	PhiValid
	PhiInvalid
)

func (s PhiState) String() string {
	switch s {
	case PhiUninitialized:
		return "Uninitialized"
	case PhiRecording:
		return "Recording"
	case PhiValid:
		return "Valid"
	case PhiInvalid:
		return "Invalid"
	default:
		return fmt.Sprintf("PhiState(%d)", int(s))
	}
}

// PhiVerifier verifies that the Φ encodings recorded within a session are
// injective. It holds a bitset over the maxPages·256 encodable addresses.
// A collision permanently transitions the verifier to PhiInvalid.
type PhiVerifier struct {
	maxPages uint32
	table    []uint64
	state    PhiState
	recorded int
	// First detected collision, retained for diagnostics.
	collision string
}

// NewPhiVerifier returns an uninitialized PhiVerifier over |maxPages| pages.
func NewPhiVerifier(maxPages uint32) (*PhiVerifier, error) {
	if maxPages == 0 || maxPages > pb.MaxPhiPage {
		return nil, pb.NewError(pb.InvalidInput, "maxPages out of range (%d)", maxPages)
	}
	return &PhiVerifier{maxPages: maxPages}, nil
}

// Initialize allocates the encoding table and begins recording. It may
// be called only once.
func (v *PhiVerifier) Initialize() error {
	if v.state != PhiUninitialized {
		return pb.NewError(pb.TopologyError, "Φ verifier already initialized (%s)", v.state)
	}
	var bits = uint64(v.maxPages) * pb.AtlasPageSize
	v.table = make([]uint64, (bits+63)/64)
	v.state = PhiRecording
	return nil
}

// Record encodes (page, offset), and records the encoding. Re-recording
// an encoding is a collision: the verifier becomes PhiInvalid and a
// TopologyError is returned. Out-of-range arguments are CoordinateErrors
// which do not alter the verifier.
func (v *PhiVerifier) Record(page, offset uint32) (uint32, error) {
	switch v.state {
	case PhiUninitialized:
		return 0, pb.NewError(pb.TopologyError, "Φ verifier is not initialized")
	case PhiInvalid:
		return 0, pb.NewError(pb.TopologyError, "Φ verifier is invalid: %s", v.collision)
	}
	if page >= v.maxPages {
		return 0, pb.NewError(pb.CoordinateError, "page out of range (%d; expected < %d)", page, v.maxPages)
	}
	var phi, err = pb.PhiEncode(page, offset)
	if err != nil {
		return 0, err
	}

	var word, bit = phi / 64, uint64(1) << (phi % 64)
	if v.table[word]&bit != 0 {
		v.state = PhiInvalid
		v.collision = fmt.Sprintf("Φ(%d, %d) = %d recorded twice", page, offset, phi)
		return 0, pb.NewError(pb.TopologyError, "Φ collision: %s", v.collision)
	}
	v.table[word] |= bit
	v.recorded++
	v.state = PhiRecording
	return phi, nil
}

// IsRecorded returns whether |phi| has been recorded.
func (v *PhiVerifier) IsRecorded(phi uint32) bool {
	if v.table == nil || uint64(phi) >= uint64(v.maxPages)*pb.AtlasPageSize {
		return false
	}
	return v.table[phi/64]&(uint64(1)<<(phi%64)) != 0
}

// Inverse decodes a recorded |phi| into its (page, offset). It returns
// false if |phi| was not recorded.
func (v *PhiVerifier) Inverse(phi uint32) (page, offset uint32, ok bool) {
	if !v.IsRecorded(phi) {
		return 0, 0, false
	}
	page, offset = pb.PhiDecode(phi)
	return page, offset, true
}

// Verify concludes recording, transitioning to PhiValid, or returns an
// error if the verifier is uninitialized or invalid.
func (v *PhiVerifier) Verify() error {
	switch v.state {
	case PhiUninitialized:
		return pb.NewError(pb.TopologyError, "Φ verifier is not initialized")
	case PhiInvalid:
		return pb.NewError(pb.TopologyError, "Φ bijection violated: %s", v.collision)
	}
	v.state = PhiValid
	return nil
}

// State returns the PhiState.
func (v *PhiVerifier) State() PhiState { return v.state }

// Recorded returns the number of recorded encodings.
func (v *PhiVerifier) Recorded() int { return v.recorded }

// MaxPages returns the number of pages tracked by the verifier.
func (v *PhiVerifier) MaxPages() uint32 { return v.maxPages }

// Clone returns a deep copy of the PhiVerifier.
func (v *PhiVerifier) Clone() *PhiVerifier {
	var out = *v
	out.table = append([]uint64(nil), v.table...)
	return &out
}
