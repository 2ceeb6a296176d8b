package invariant

import (
	pb "go.manifold.dev/atlas/protocol"
)

// KleinPositions are the privileged positions of a C768 cycle. Under XOR
// they form a Klein four-group with identity 0.
var KleinPositions = [4]int{0, 1, 48, 49}

// KleinAligner checks alignment of the values held at KleinPositions.
// The orbit is partitioned into the cosets {0, 1} and {48, 49}. It's
// aligned iff the members of each coset differ by an odd value.
type KleinAligner struct {
	values   [4]uint64
	recorded [4]bool
}

// IsKleinPosition returns whether |position| belongs to the Klein orbit.
func IsKleinPosition(position int) bool { return kleinIndex(position) >= 0 }

// KleinCompose applies the group operation of the Klein orbit. Both
// positions must belong to the orbit.
func KleinCompose(p, q int) (int, error) {
	if !IsKleinPosition(p) || !IsKleinPosition(q) {
		return 0, pb.NewError(pb.CoordinateError, "not a Klein position (%d, %d)", p, q)
	}
	return p ^ q, nil
}

// Record the |value| held at |position|.
func (a *KleinAligner) Record(position int, value uint64) error {
	var ind = kleinIndex(position)
	if ind < 0 {
		return pb.NewError(pb.CoordinateError, "not a Klein position (%d)", position)
	}
	a.values[ind], a.recorded[ind] = value, true
	return nil
}

// RecordFrom records each Klein position of the CycleTracker.
func (a *KleinAligner) RecordFrom(t *CycleTracker) error {
	for _, p := range KleinPositions {
		var v, ok = t.StateAt(p)
		if !ok {
			return pb.NewError(pb.TopologyError, "cycle has not reached Klein position %d", p)
		}
		if err := a.Record(p, v); err != nil {
			return err
		}
	}
	return nil
}

// Check returns an error unless every position is recorded and aligned.
func (a *KleinAligner) Check() error {
	for i, ok := range a.recorded {
		if !ok {
			return pb.NewError(pb.TopologyError, "Klein position %d is not recorded", KleinPositions[i])
		}
	}
	for base := 0; base != 4; base += 2 {
		var lo, hi = a.values[base], a.values[base+1]
		if (hi-lo)%2 != 1 {
			return pb.NewError(pb.LayerIntegrationError,
				"Klein positions %d and %d are misaligned (%d, %d)",
				KleinPositions[base], KleinPositions[base+1], lo, hi)
		}
	}
	return nil
}

// IsAligned returns whether Check passes.
func (a *KleinAligner) IsAligned() bool { return a.Check() == nil }

// Reset clears recorded values.
func (a *KleinAligner) Reset() { *a = KleinAligner{} }

func kleinIndex(position int) int {
	for i, p := range KleinPositions {
		if p == position {
			return i
		}
	}
	return -1
}
