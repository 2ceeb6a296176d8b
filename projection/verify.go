package projection

import (
	"go.manifold.dev/atlas/metrics"
	pb "go.manifold.dev/atlas/protocol"
)

// Verify returns an error unless every Tile is conserved, the Witness (if
// any) attests to the Tiles, and (for Linear projections) Tile sums total
// the TotalConservationSum. R96Fourier projections don't require the sum
// equality, as normal form alters Tile sums while the Fourier Checksum
// remains authoritative.
func (p *Projection) Verify() error {
	var sum uint64
	for _, t := range p.Tiles {
		if !t.IsConserved() {
			return pb.NewError(pb.LayerIntegrationError,
				"tile %d is unconserved (sum %d, residue %d)", t.ID, t.ConservationSum, t.ConservationSum%pb.Modulus)
		}
		sum += t.ConservationSum
	}
	if p.Type == Linear && sum != p.TotalConservationSum {
		return pb.NewError(pb.LayerIntegrationError,
			"tile sums %d != total conservation sum %d", sum, p.TotalConservationSum)
	}
	if p.Witness != nil {
		if err := p.Witness.Verify(p.Tiles); err != nil {
			return pb.ExtendContext(err, "Witness")
		}
	}
	return nil
}

// VerifyProjection is the strict verification of the Projection. In
// addition to Verify, it requires that the owned conservation.Context is
// open and its domain intact, that each Tile passes the Service's
// conservation Check, and (for R96Fourier projections) that the Fourier
// decomposition is valid and has at least one active class.
func (p *Projection) VerifyProjection() (err error) {
	defer func() {
		var status = metrics.Ok
		if err != nil {
			status = metrics.Fail
		}
		metrics.ProjectionVerificationsTotal.WithLabelValues(status).Inc()
	}()

	if err = p.Verify(); err != nil {
		return err
	} else if !p.ctx.VerifyDomain() {
		return pb.NewError(pb.LayerIntegrationError, "conservation context is closed or its domain failed verification")
	}
	for _, t := range p.Tiles {
		if !p.svc.Check(t.Bytes()) {
			return pb.NewError(pb.LayerIntegrationError, "tile %d fails Layer-2 conservation check", t.ID)
		}
	}
	if p.Type == R96Fourier {
		if p.Fourier == nil {
			return pb.NewError(pb.LayerIntegrationError, "R96_FOURIER projection has no Fourier decomposition")
		} else if err = p.Fourier.Validate(); err != nil {
			return pb.ExtendContext(err, "Fourier")
		}
		var active = p.Fourier.ActiveClasses()
		if len(active) == 0 {
			return pb.NewError(pb.LayerIntegrationError, "R96_FOURIER projection has no active resonance classes")
		}
		for _, r := range active {
			if r >= pb.NumClasses {
				return pb.NewError(pb.LayerIntegrationError, "active resonance class out of range (%d)", r)
			}
		}
	}
	return nil
}
