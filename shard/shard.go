// Package shard extracts coordinate-bounded regions of a projection into
// independently verifiable Shards, and reconstructs projections from
// complete sets of Shards.
package shard

import (
	"encoding/binary"
	"fmt"

	"github.com/dustin/go-humanize"
	"go.manifold.dev/atlas/conservation"
	"go.manifold.dev/atlas/fourier"
	"go.manifold.dev/atlas/projection"
	pb "go.manifold.dev/atlas/protocol"
)

// Shard is a region extracted from a projection. It exclusively owns a
// conservation.Context over its bytes, independent of the source
// projection's, which is released by Close. A Shard without an open
// Context is incomplete and cannot be reconstructed.
type Shard struct {
	ID pb.ShardID
	// Region the Shard was extracted from. Region.IsConserved is set iff
	// the Shard passed full Layer-2 verification upon extraction.
	Region pb.BoundaryRegion
	// DataBlocks carved from overlapping pages of the source, in order.
	DataBlocks [][]byte
	// OverlapRegions are the Φ ranges shared with each overlapped tile.
	OverlapRegions []pb.PhiRange
	Witness        pb.ShardWitness
	// ConservationSum is the byte sum of DataBlocks.
	ConservationSum uint64
	// Source is the Type of the projection the Shard was extracted from.
	Source projection.Type
	// Harmonics of affecting resonance classes, present only for Shards
	// of R96Fourier projections, and the sum of their ConservationSums.
	Harmonics    []*fourier.ClassHarmonics
	HarmonicsSum uint64

	ctx *conservation.Context
}

// PhiBounds returns the Φ bounds attested by the Shard Witness.
func (s *Shard) PhiBounds() pb.PhiRange { return s.Witness.PhiBounds }

// Len returns the total length of DataBlocks.
func (s *Shard) Len() int {
	var n int
	for _, b := range s.DataBlocks {
		n += len(b)
	}
	return n
}

// Bytes returns the concatenation of DataBlocks.
func (s *Shard) Bytes() []byte {
	var out = make([]byte, 0, s.Len())
	for _, b := range s.DataBlocks {
		out = append(out, b...)
	}
	return out
}

// Context returns the owned conservation.Context, which is nil after Close.
func (s *Shard) Context() *conservation.Context { return s.ctx }

// IsComplete returns whether the Shard holds an open conservation.Context.
func (s *Shard) IsComplete() bool { return s.ctx.IsOpen() }

// VerifyWithConservation returns an error unless the Shard's Context is
// open with an intact domain, its witness attests to the Shard bytes, and
// the ID, ConservationSum and Witness are consistent with DataBlocks.
func (s *Shard) VerifyWithConservation() error {
	var data = s.Bytes()
	var bounds = s.PhiBounds()

	if !s.ctx.IsOpen() {
		return pb.NewError(pb.LayerIntegrationError, "shard %s is incomplete (no conservation context)", s.ID)
	} else if !s.ctx.VerifyDomain() {
		return pb.NewError(pb.LayerIntegrationError, "shard %s conservation domain failed verification", s.ID)
	} else if !s.ctx.VerifyData(data) {
		return pb.NewError(pb.LayerIntegrationError, "shard %s conservation witness does not attest to its data", s.ID)
	} else if sum := pb.ByteSum(data); sum != s.ConservationSum {
		return pb.NewError(pb.LayerIntegrationError, "shard %s data sum %d != conservation sum %d", s.ID, sum, s.ConservationSum)
	} else if id := shardID(bounds, s.DataBlocks); id != s.ID {
		return pb.NewError(pb.LayerIntegrationError, "shard %s data hashes to ID %s", s.ID, id)
	} else if s.Witness.ID != s.ID || !s.Witness.Verify(s.ConservationSum, bounds) {
		return pb.NewError(pb.LayerIntegrationError, "shard %s witness verification failed", s.ID)
	}
	return nil
}

// Clone returns a deep copy of the Shard, which owns a new
// conservation.Context created from the same bytes.
func (s *Shard) Clone() (*Shard, error) {
	if !s.ctx.IsOpen() {
		return nil, pb.NewError(pb.LayerIntegrationError, "cannot clone incomplete shard %s", s.ID)
	}
	var out = *s
	out.DataBlocks = make([][]byte, len(s.DataBlocks))
	for i, b := range s.DataBlocks {
		out.DataBlocks[i] = append([]byte(nil), b...)
	}
	out.OverlapRegions = append([]pb.PhiRange(nil), s.OverlapRegions...)
	out.Region.AffectingClasses = append([]uint8(nil), s.Region.AffectingClasses...)

	out.Harmonics = nil
	for _, h := range s.Harmonics {
		out.Harmonics = append(out.Harmonics, h.Clone())
	}

	var err error
	if out.ctx, err = conservation.NewContext(s.ctx.Service(), out.Bytes(), s.ctx.BudgetClass()); err != nil {
		return nil, err
	}
	return &out, nil
}

// Close releases the Shard's conservation.Context. Close is idempotent.
func (s *Shard) Close() error {
	var err = s.ctx.Close()
	s.ctx = nil
	return err
}

// String returns a debugging representation of the Shard.
func (s *Shard) String() string {
	return fmt.Sprintf("Shard<%s, Φ%s, %s in %d blocks, sum: %d>",
		s.ID, s.PhiBounds(), humanize.Bytes(uint64(s.Len())), len(s.DataBlocks), s.ConservationSum)
}

// Record is the logical record shape of a Shard, suited to encoding.
type Record struct {
	ID              pb.ShardID                `cbor:"1,keyasint"`
	Region          pb.BoundaryRegion         `cbor:"2,keyasint"`
	DataBlocks      [][]byte                  `cbor:"3,keyasint"`
	OverlapRegions  []pb.PhiRange             `cbor:"4,keyasint"`
	Witness         pb.ShardWitness           `cbor:"5,keyasint"`
	ConservationSum uint64                    `cbor:"6,keyasint"`
	Source          projection.Type           `cbor:"7,keyasint"`
	Harmonics       []*fourier.ClassHarmonics `cbor:"8,keyasint,omitempty"`
	HarmonicsSum    uint64                    `cbor:"9,keyasint,omitempty"`
}

// Record returns the Record of the Shard. Its fields alias the Shard.
func (s *Shard) Record() Record {
	return Record{
		ID:              s.ID,
		Region:          s.Region,
		DataBlocks:      s.DataBlocks,
		OverlapRegions:  s.OverlapRegions,
		Witness:         s.Witness,
		ConservationSum: s.ConservationSum,
		Source:          s.Source,
		Harmonics:       s.Harmonics,
		HarmonicsSum:    s.HarmonicsSum,
	}
}

// FromRecord builds a Shard of the Record, owning a new Context of |svc|.
// The Shard must pass VerifyWithConservation, or it's closed and an error
// is returned.
func FromRecord(svc conservation.Service, rec Record) (*Shard, error) {
	if rec.Source != projection.Linear && rec.Source != projection.R96Fourier {
		return nil, pb.NewError(pb.SerializationError, "invalid source type (%d)", int(rec.Source))
	} else if err := rec.Region.Validate(); err != nil {
		return nil, pb.ExtendContext(err, "Region")
	}
	var s = &Shard{
		ID:              rec.ID,
		Region:          rec.Region,
		DataBlocks:      rec.DataBlocks,
		OverlapRegions:  rec.OverlapRegions,
		Witness:         rec.Witness,
		ConservationSum: rec.ConservationSum,
		Source:          rec.Source,
		Harmonics:       rec.Harmonics,
		HarmonicsSum:    rec.HarmonicsSum,
	}
	var err error
	if s.ctx, err = conservation.NewContext(svc, s.Bytes(), rec.Region.RegionClass%pb.Modulus); err != nil {
		return nil, err
	}
	if err = s.VerifyWithConservation(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// shardID derives the ShardID of Shard content at |bounds|. Bounds are
// bound into the ID so that equal content at distinct coordinates has
// distinct identity.
func shardID(bounds pb.PhiRange, blocks [][]byte) pb.ShardID {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], bounds.Begin)
	binary.LittleEndian.PutUint32(hdr[4:8], bounds.End)
	return pb.ShardIDOf(append([][]byte{hdr[:]}, blocks...)...)
}
