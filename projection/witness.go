package projection

import (
	"go.manifold.dev/atlas/metrics"
	pb "go.manifold.dev/atlas/protocol"
)

// Witness binds the Tiles of a projection under a hash tree. Each leaf
// is the Digest of a Tile, which covers its content, ConservationSum,
// and Correction.
type Witness struct {
	Root        pb.Digest
	Leaves      []pb.Digest
	Corrections []int16
	// TotalConservationSum of the projection when the Witness was generated.
	TotalConservationSum uint64
}

// NewWitness returns a Witness over |tiles|.
func NewWitness(tiles []*Tile, total uint64) *Witness {
	var w = &Witness{
		Leaves:               make([]pb.Digest, len(tiles)),
		Corrections:          make([]int16, len(tiles)),
		TotalConservationSum: total,
	}
	for i, t := range tiles {
		w.Leaves[i] = t.Digest()
		w.Corrections[i] = t.Correction
	}
	w.Root = pb.MerkleRoot(w.Leaves)
	metrics.ProjectionWitnessGenerationsTotal.Inc()
	return w
}

// Verify returns an error unless the Witness attests to |tiles|.
func (w *Witness) Verify(tiles []*Tile) error {
	if len(w.Leaves) != len(tiles) || len(w.Corrections) != len(tiles) {
		return pb.NewError(pb.LayerIntegrationError,
			"witness covers %d tiles (projection has %d)", len(w.Leaves), len(tiles))
	}
	for i, t := range tiles {
		if w.Corrections[i] != t.Correction {
			return pb.NewError(pb.LayerIntegrationError,
				"tile %d correction %d differs from witness (%d)", t.ID, t.Correction, w.Corrections[i])
		} else if d := t.Digest(); d != w.Leaves[i] {
			return pb.NewError(pb.LayerIntegrationError, "tile %d digest differs from witness", t.ID)
		}
	}
	if root := pb.MerkleRoot(w.Leaves); root != w.Root {
		return pb.NewError(pb.LayerIntegrationError, "witness root is inconsistent with its leaves")
	}
	return nil
}
