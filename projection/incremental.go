package projection

import (
	"fmt"
	"math"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"go.manifold.dev/atlas/conservation"
	"go.manifold.dev/atlas/metrics"
	pb "go.manifold.dev/atlas/protocol"
)

// DeltaKind enumerates incremental mutations of a Projection's source.
type DeltaKind int

const (
	// Insert Data at Offset.
	Insert DeltaKind = iota
	// Update overwrites bytes at Offset with Data.
	Update
	// Delete Length bytes at Offset.
	Delete
	// Move Length bytes at Offset to Target, where Target is an offset of
	// the buffer with the moved bytes removed.
	Move
)

func (k DeltaKind) String() string {
	switch k {
	case Insert:
		return "Insert"
	case Update:
		return "Update"
	case Delete:
		return "Delete"
	case Move:
		return "Move"
	default:
		return fmt.Sprintf("DeltaKind(%d)", int(k))
	}
}

// Delta is an incremental mutation of a Projection's source buffer.
type Delta struct {
	Kind   DeltaKind
	Offset uint64
	Length uint64
	Data   []byte
	Target uint64
	// Sequence is assigned as the Delta is applied.
	Sequence uint64
}

// Validate returns an error if the Delta cannot apply to a buffer of |size|.
func (d *Delta) Validate(size uint64) error {
	switch d.Kind {
	case Insert:
		if len(d.Data) == 0 {
			return pb.NewError(pb.InvalidInput, "expected non-empty Data")
		} else if d.Offset > size {
			return pb.NewError(pb.CoordinateError, "Offset out of range (%d > %d)", d.Offset, size)
		}
	case Update:
		if len(d.Data) == 0 {
			return pb.NewError(pb.InvalidInput, "expected non-empty Data")
		} else if err := checkSpan("update", d.Offset, uint64(len(d.Data)), size); err != nil {
			return err
		}
	case Delete, Move:
		if d.Length == 0 {
			return pb.NewError(pb.InvalidInput, "expected Length > 0")
		} else if err := checkSpan("range", d.Offset, d.Length, size); err != nil {
			return err
		} else if d.Kind == Delete && d.Length == size {
			return pb.NewError(pb.InvalidInput, "delete would empty the projection")
		} else if d.Kind == Move && d.Target > size-d.Length {
			return pb.NewError(pb.CoordinateError, "Target out of range (%d > %d)", d.Target, size-d.Length)
		}
	default:
		return pb.NewError(pb.InvalidInput, "invalid DeltaKind (%d)", int(d.Kind))
	}
	return nil
}

// checkSpan returns an error if [offset, offset+length) does not fit
// within a buffer of |size|. It never overflows.
func checkSpan(what string, offset, length, size uint64) error {
	if length <= size && offset <= size-length {
		return nil
	} else if offset > math.MaxUint64-length {
		return pb.NewError(pb.CoordinateError, "%s at %d of length %d overflows", what, offset, length)
	}
	return pb.NewError(pb.CoordinateError, "%s [%d, %d) exceeds buffer (%d)", what, offset, offset+length, size)
}

// apply returns the mutation of |src| by the Delta, and the inverse
// Delta which restores |src|.
func (d *Delta) apply(src []byte) (out []byte, inverse Delta) {
	switch d.Kind {
	case Insert:
		out = make([]byte, 0, len(src)+len(d.Data))
		out = append(append(append(out, src[:d.Offset]...), d.Data...), src[d.Offset:]...)
		inverse = Delta{Kind: Delete, Offset: d.Offset, Length: uint64(len(d.Data))}
	case Update:
		out = append([]byte(nil), src...)
		inverse = Delta{Kind: Update, Offset: d.Offset, Data: append([]byte(nil), src[d.Offset:d.Offset+uint64(len(d.Data))]...)}
		copy(out[d.Offset:], d.Data)
	case Delete:
		out = make([]byte, 0, uint64(len(src))-d.Length)
		out = append(append(out, src[:d.Offset]...), src[d.Offset+d.Length:]...)
		inverse = Delta{Kind: Insert, Offset: d.Offset, Data: append([]byte(nil), src[d.Offset:d.Offset+d.Length]...)}
	case Move:
		var moved = src[d.Offset : d.Offset+d.Length]
		var rest = make([]byte, 0, uint64(len(src))-d.Length)
		rest = append(append(rest, src[:d.Offset]...), src[d.Offset+d.Length:]...)

		out = make([]byte, 0, len(src))
		out = append(append(append(out, rest[:d.Target]...), moved...), rest[d.Target:]...)
		inverse = Delta{Kind: Move, Offset: d.Target, Length: d.Length, Target: d.Offset}
	}
	return out, inverse
}

// Sequencer issues monotonically increasing sequence numbers.
type Sequencer interface {
	Next() uint64
}

// NewSequencer returns a Sequencer safe for concurrent use, which issues
// sequence numbers starting from one.
func NewSequencer() Sequencer { return new(atomicSequencer) }

type atomicSequencer struct{ n uint64 }

func (s *atomicSequencer) Next() uint64 { return atomic.AddUint64(&s.n, 1) }

// Result of an applied Delta.
type Result struct {
	Sequence uint64
	// ConservationDelta is the change of the source byte sum, modulo 96.
	ConservationDelta uint8
	// TotalConservationSum of the rebuilt Projection.
	TotalConservationSum uint64
}

// UpdateContext applies Deltas to a Projection. Each Delta rebuilds the
// Projection's Tiles (and Fourier decomposition), its Witness, and its
// conservation.Context. Inverses of up to maxRollback applied Deltas are
// retained for Rollback.
type UpdateContext struct {
	p           *Projection
	seq         Sequencer
	maxRollback int
	inverses    []Delta
}

// NewUpdateContext returns an UpdateContext of the Projection, which
// draws from Sequencer. A nil Sequencer uses NewSequencer.
func NewUpdateContext(p *Projection, seq Sequencer, maxRollback int) *UpdateContext {
	if seq == nil {
		seq = NewSequencer()
	}
	if maxRollback < 0 {
		maxRollback = 0
	}
	return &UpdateContext{p: p, seq: seq, maxRollback: maxRollback}
}

// Projection returns the Projection of the UpdateContext.
func (u *UpdateContext) Projection() *Projection { return u.p }

// RollbackDepth returns the number of Deltas which may be rolled back.
func (u *UpdateContext) RollbackDepth() int { return len(u.inverses) }

// Apply the Delta to the Projection. On error the Projection is unchanged.
func (u *UpdateContext) Apply(d Delta) (Result, error) {
	var inverse, res, err = u.apply(d)
	var status = metrics.Ok
	if err != nil {
		status = metrics.Fail
	}
	metrics.IncrementalDeltasTotal.WithLabelValues(d.Kind.String(), status).Inc()

	if err != nil {
		return Result{}, err
	}
	if u.maxRollback != 0 {
		if len(u.inverses) == u.maxRollback {
			u.inverses = append(u.inverses[:0], u.inverses[1:]...)
		}
		u.inverses = append(u.inverses, inverse)
	}
	return res, nil
}

// ApplyBatch applies each Delta in order, stopping at the first error.
// Deltas applied prior to the error remain applied, and their Results
// are returned with the error.
func (u *UpdateContext) ApplyBatch(deltas []Delta) ([]Result, error) {
	var out = make([]Result, 0, len(deltas))
	for i, d := range deltas {
		var res, err = u.Apply(d)
		if err != nil {
			return out, pb.ExtendContext(err, "deltas[%d]", i)
		}
		out = append(out, res)
	}
	return out, nil
}

// Rollback reverts the most recently applied Delta which remains in the
// rollback log, returning the Result of its inverse.
func (u *UpdateContext) Rollback() (Result, error) {
	if len(u.inverses) == 0 {
		return Result{}, pb.NewError(pb.InvalidInput, "no deltas to roll back")
	}
	var inverse = u.inverses[len(u.inverses)-1]

	var _, res, err = u.apply(inverse)
	if err != nil {
		return Result{}, pb.ExtendContext(err, "rollback")
	}
	u.inverses = u.inverses[:len(u.inverses)-1]
	metrics.IncrementalRollbacksTotal.Inc()
	return res, nil
}

func (u *UpdateContext) apply(d Delta) (Delta, Result, error) {
	var p = u.p
	if !p.ctx.IsOpen() {
		return Delta{}, Result{}, pb.NewError(pb.LayerIntegrationError, "projection is closed")
	} else if err := d.Validate(uint64(len(p.source))); err != nil {
		return Delta{}, Result{}, pb.ExtendContext(err, "Delta")
	}
	var prev = *p
	var next, inverse = d.apply(p.source)

	if !p.svc.CheckStreaming(next) {
		return Delta{}, Result{}, pb.NewError(pb.LayerIntegrationError,
			"updated buffer of %d bytes fails streaming conservation check", len(next))
	}
	p.source = next

	var restore = func(err error) (Delta, Result, error) {
		*p = prev
		return Delta{}, Result{}, err
	}
	if err := p.rebuild(); err != nil {
		return restore(err)
	}
	var ctx, err = conservation.NewContext(p.svc, p.source, uint8(p.TotalConservationSum%pb.Modulus))
	if err != nil {
		return restore(err)
	}
	_ = prev.ctx.Close()
	p.ctx = ctx

	d.Sequence = u.seq.Next()
	var oldSum, newSum = pb.ByteSum(prev.source), pb.ByteSum(p.source)
	var res = Result{
		Sequence:             d.Sequence,
		ConservationDelta:    uint8((newSum%pb.Modulus + pb.Modulus - oldSum%pb.Modulus) % pb.Modulus),
		TotalConservationSum: p.TotalConservationSum,
	}

	log.WithFields(log.Fields{
		"kind":   d.Kind,
		"seq":    d.Sequence,
		"offset": d.Offset,
		"bytes":  len(p.source),
		"delta":  res.ConservationDelta,
	}).Debug("applied projection delta")

	return inverse, res, nil
}
