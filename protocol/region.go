package protocol

import (
	"fmt"
	"math"
)

// BoundaryRegion describes a region of a projection to be extracted as a
// shard: the half-open range [StartCoord, EndCoord) of linear byte
// coordinates, the storage pages it touches, its expected dominant
// resonance class, and its spatial bounds.
type BoundaryRegion struct {
	StartCoord uint64 `cbor:"1,keyasint"`
	EndCoord   uint64 `cbor:"2,keyasint"`
	// PageCount is the number of PageSize pages touched by [StartCoord, EndCoord).
	PageCount uint32 `cbor:"3,keyasint"`
	// RegionClass is the expected dominant resonance class of the region.
	RegionClass uint8 `cbor:"4,keyasint"`
	// AffectingClasses are resonance classes whose harmonics are carried
	// by shards of R96 Fourier projections. If empty, they're derived.
	AffectingClasses []uint8 `cbor:"5,keyasint,omitempty"`
	SpatialBounds    Rect    `cbor:"6,keyasint"`
	// IsConserved is set by extraction iff the shard passed full
	// Layer-2 verification.
	IsConserved bool `cbor:"7,keyasint"`
}

// NewBoundaryRegion returns a BoundaryRegion over [start, end) of the
// |class|, with a consistent PageCount.
func NewBoundaryRegion(start, end uint64, class uint8) BoundaryRegion {
	return BoundaryRegion{
		StartCoord:  start,
		EndCoord:    end,
		PageCount:   PagesSpanned(start, end),
		RegionClass: class,
	}
}

// PagesSpanned returns the number of PageSize pages touched by [start, end).
func PagesSpanned(start, end uint64) uint32 {
	if end <= start {
		return 0
	}
	return uint32((end-1)/PageSize - start/PageSize + 1)
}

// Validate returns an error if the BoundaryRegion is not well-formed.
func (m *BoundaryRegion) Validate() error {
	if m.StartCoord >= m.EndCoord {
		return NewError(InvalidInput, "expected StartCoord < EndCoord (have %d, %d)", m.StartCoord, m.EndCoord)
	} else if m.EndCoord > math.MaxUint32 {
		return NewError(CoordinateError, "EndCoord exceeds Φ space (%d)", m.EndCoord)
	} else if m.PageCount == 0 {
		return NewError(InvalidInput, "expected PageCount > 0")
	} else if n := PagesSpanned(m.StartCoord, m.EndCoord); n != m.PageCount {
		return NewError(InvalidInput, "PageCount inconsistent with span (have %d; expected %d)", m.PageCount, n)
	} else if m.RegionClass >= NumClasses {
		return NewError(InvalidInput, "RegionClass out of range (%d)", m.RegionClass)
	} else if err := m.SpatialBounds.Validate(); err != nil {
		return ExtendContext(err, "SpatialBounds")
	}
	for i, c := range m.AffectingClasses {
		if c >= NumClasses {
			return ExtendContext(NewError(InvalidInput, "class out of range (%d)", c), "AffectingClasses[%d]", i)
		}
	}
	return nil
}

// PhiRange returns the Φ-linear range of the BoundaryRegion.
func (m *BoundaryRegion) PhiRange() (PhiRange, error) {
	var begin, err = PhiOfCoord(m.StartCoord)
	if err != nil {
		return PhiRange{}, ExtendContext(err, "StartCoord")
	}
	// EndCoord is exclusive: encode its last included coordinate.
	last, err := PhiOfCoord(m.EndCoord - 1)
	if err != nil {
		return PhiRange{}, ExtendContext(err, "EndCoord")
	}
	return PhiRange{Begin: begin, End: last + 1}, nil
}

// String returns a debugging representation of the BoundaryRegion.
func (m *BoundaryRegion) String() string {
	return fmt.Sprintf("BoundaryRegion<[%d, %d), pages: %d, class: %d>",
		m.StartCoord, m.EndCoord, m.PageCount, m.RegionClass)
}
