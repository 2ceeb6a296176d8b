package shard

import (
	"sort"

	log "github.com/sirupsen/logrus"
	"go.manifold.dev/atlas/conservation"
	"go.manifold.dev/atlas/metrics"
	"go.manifold.dev/atlas/projection"
	pb "go.manifold.dev/atlas/protocol"
)

// MaxBoundaryDelta is the largest admissible conservation delta between
// the boundary blocks of the first and last Shards of a reconstruction.
const MaxBoundaryDelta = pb.Modulus / 2

// ReconstructionContext gathers a fixed number of Shards for Reconstruct.
// Shards may be added in any order. The ReconstructionContext doesn't own
// its Shards: callers remain responsible for closing them.
type ReconstructionContext struct {
	svc    conservation.Service
	total  int
	shards []*Shard
	ids    map[pb.ShardID]struct{}
}

// NewReconstructionContext returns a ReconstructionContext expecting
// |total| Shards. The reconstructed Projection uses |svc| as its
// conservation Service, or a new conservation.Reference if nil.
func NewReconstructionContext(total int, svc conservation.Service) (*ReconstructionContext, error) {
	if total <= 0 {
		return nil, pb.NewError(pb.InvalidInput, "expected total > 0 (have %d)", total)
	}
	if svc == nil {
		svc = conservation.NewReference()
	}
	return &ReconstructionContext{
		svc:   svc,
		total: total,
		ids:   make(map[pb.ShardID]struct{}, total),
	}, nil
}

// AddShard to the ReconstructionContext. Incomplete Shards, Shards having
// an already-added ID, and Shards beyond the expected total are refused.
func (rc *ReconstructionContext) AddShard(s *Shard) error {
	if s == nil {
		return pb.NewError(pb.InvalidInput, "expected non-nil shard")
	} else if len(rc.shards) == rc.total {
		return pb.NewError(pb.InvalidInput, "reconstruction already holds all %d shards", rc.total)
	} else if !s.IsComplete() {
		return pb.NewError(pb.LayerIntegrationError, "shard %s is incomplete", s.ID)
	} else if _, ok := rc.ids[s.ID]; ok {
		return pb.NewError(pb.InvalidInput, "duplicate shard %s", s.ID)
	}
	rc.ids[s.ID] = struct{}{}
	rc.shards = append(rc.shards, s)
	return nil
}

// Len returns the number of added Shards.
func (rc *ReconstructionContext) Len() int { return len(rc.shards) }

// Total returns the number of expected Shards.
func (rc *ReconstructionContext) Total() int { return rc.total }

// IsComplete returns whether all expected Shards have been added.
func (rc *ReconstructionContext) IsComplete() bool { return len(rc.shards) == rc.total }

// Reconstruct a Linear Projection from the complete ReconstructionContext.
// Shards are ordered on their Φ start, and each must pass
// VerifyWithConservation. The concatenated buffer must be conserved, the
// boundary blocks of the first and last Shards must be within
// MaxBoundaryDelta, and the rebuilt Projection's TotalConservationSum must
// equal the sum of the Shards. Reconstruction of R96Fourier sources isn't
// implemented, and returns a LayerIntegrationError. No partial output is
// produced on error.
func Reconstruct(rc *ReconstructionContext) (_ *projection.Projection, err error) {
	defer func() {
		var status = metrics.Ok
		if err != nil {
			status = metrics.Fail
		}
		metrics.ReconstructionsTotal.WithLabelValues(status).Inc()
	}()

	if !rc.IsComplete() {
		return nil, pb.NewError(pb.InvalidInput, "reconstruction holds %d of %d shards", len(rc.shards), rc.total)
	}
	var ordered = append([]*Shard(nil), rc.shards...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PhiBounds().Begin < ordered[j].PhiBounds().Begin
	})

	var size int
	for _, s := range ordered {
		size += s.Len()
	}
	var buf = make([]byte, 0, size)
	var sum uint64

	for _, s := range ordered {
		if err = s.VerifyWithConservation(); err != nil {
			return nil, err
		}
		for _, b := range s.DataBlocks {
			buf = append(buf, b...)
		}
		sum += s.ConservationSum
	}

	if !rc.svc.Check(buf) {
		return nil, pb.NewError(pb.LayerIntegrationError,
			"reconstructed buffer of %d bytes is unconserved (residue %d)", len(buf), pb.ByteSum(buf)%pb.Modulus)
	}
	if d := boundaryDelta(rc.svc, ordered[0], ordered[len(ordered)-1]); d == conservation.InvalidDelta {
		return nil, pb.NewError(pb.LayerIntegrationError, "boundary blocks cannot be compared")
	} else if d > MaxBoundaryDelta {
		return nil, pb.NewError(pb.LayerIntegrationError,
			"boundary delta %d exceeds %d (corrupted reconstruction)", d, MaxBoundaryDelta)
	}
	for _, s := range ordered {
		if s.Source == projection.R96Fourier {
			return nil, pb.NewError(pb.LayerIntegrationError, "reconstruction of R96_FOURIER projections is not implemented")
		}
	}

	p, err := projection.NewLinear(buf, projection.WithConservation(rc.svc))
	if err != nil {
		return nil, pb.ExtendContext(err, "rebuilding projection")
	} else if p.TotalConservationSum != sum {
		_ = p.Close()
		return nil, pb.NewError(pb.LayerIntegrationError,
			"reconstructed conservation sum %d != sum of shards %d", p.TotalConservationSum, sum)
	}

	log.WithFields(log.Fields{
		"shards": len(ordered),
		"bytes":  len(buf),
		"sum":    sum,
	}).Debug("reconstructed projection")

	return p, nil
}

// boundaryDelta compares the first block of |first| with the last block of
// |last|, truncated to their common length.
func boundaryDelta(svc conservation.Service, first, last *Shard) uint8 {
	if len(first.DataBlocks) == 0 || len(last.DataBlocks) == 0 {
		return conservation.InvalidDelta
	}
	var a, b = first.DataBlocks[0], last.DataBlocks[len(last.DataBlocks)-1]
	var n = len(a)
	if len(b) < n {
		n = len(b)
	}
	return svc.Delta(a[:n], b[:n])
}
