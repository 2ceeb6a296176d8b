package invariant

import (
	pb "go.manifold.dev/atlas/protocol"
)

// CycleTracker tracks the accumulation of a C768 cycle. Each Step records
// the state on entry to the current position, and then accumulates its
// delta (wrapping). Upon the 768th Step closure is validated, and if it
// passes the cycle is closed and further Steps are refused.
type CycleTracker struct {
	position    int
	accumulator [pb.CycleLength]uint64
	initial     uint64
	state       uint64
	initialized bool
	closed      bool
}

// NewCycleTracker returns a CycleTracker initialized with |seed|.
func NewCycleTracker(seed uint64) *CycleTracker {
	var t = new(CycleTracker)
	t.Initialize(seed)
	return t
}

// Initialize (re)starts the cycle at position zero with initial state |seed|.
func (t *CycleTracker) Initialize(seed uint64) {
	*t = CycleTracker{initial: seed, state: seed, initialized: true}
}

// Reset returns the cycle to position zero, retaining its initial state.
func (t *CycleTracker) Reset() { t.Initialize(t.initial) }

// Step advances the cycle by |delta|. The 768th Step additionally
// validates closure, returning its error if closure fails.
func (t *CycleTracker) Step(delta uint64) error {
	if !t.initialized {
		return pb.NewError(pb.InvalidInput, "cycle tracker is not initialized")
	} else if t.closed {
		return pb.NewError(pb.TopologyError, "cycle is closed")
	} else if t.position == pb.CycleLength {
		return pb.NewError(pb.TopologyError, "cycle is exhausted without closure")
	}
	t.accumulator[t.position] = t.state
	t.state += delta
	t.position++

	if t.position == pb.CycleLength {
		if err := t.validateClosure(); err != nil {
			return err
		}
		t.closed = true
	}
	return nil
}

// StepAll Steps each of |deltas| in order, stopping at the first error.
func (t *CycleTracker) StepAll(deltas ...uint64) error {
	for _, d := range deltas {
		if err := t.Step(d); err != nil {
			return err
		}
	}
	return nil
}

// Position returns the number of Steps taken.
func (t *CycleTracker) Position() int { return t.position }

// IsClosed returns whether the cycle closed.
func (t *CycleTracker) IsClosed() bool { return t.closed }

// InitialState returns the seeded initial state.
func (t *CycleTracker) InitialState() uint64 { return t.initial }

// State returns the current accumulated state.
func (t *CycleTracker) State() uint64 { return t.state }

// StateAt returns the state on entry to |position|, if it has been stepped.
func (t *CycleTracker) StateAt(position int) (uint64, bool) {
	if position < 0 || position >= t.position {
		return 0, false
	}
	return t.accumulator[position], true
}

// Clone returns a copy of the CycleTracker.
func (t *CycleTracker) Clone() *CycleTracker {
	var out = *t
	return &out
}

func (t *CycleTracker) validateClosure() error {
	if diff := t.state - t.initial; diff%pb.TripleCycle != 0 {
		return pb.NewError(pb.TopologyError,
			"state difference %d is not a triple cycle (residue %d mod %d)", diff, diff%pb.TripleCycle, pb.TripleCycle)
	}
	var s0, s1, s48, s49 = t.accumulator[0], t.accumulator[1], t.accumulator[48], t.accumulator[49]

	if s0 != t.initial {
		return pb.NewError(pb.LayerIntegrationError, "Klein position 0 (%d) != initial state (%d)", s0, t.initial)
	} else if s1%4 != (t.initial+1)%4 {
		return pb.NewError(pb.LayerIntegrationError, "Klein position 1 (%d) not ≡ initial+1 (mod 4)", s1)
	} else if s48%pb.Modulus != 48 {
		return pb.NewError(pb.LayerIntegrationError, "Klein position 48 (%d) not ≡ 48 (mod 96)", s48)
	} else if s49%pb.Modulus != (s48+1)%pb.Modulus {
		return pb.NewError(pb.LayerIntegrationError, "Klein position 49 (%d) not ≡ position 48 + 1 (mod 96)", s49)
	}
	return nil
}
