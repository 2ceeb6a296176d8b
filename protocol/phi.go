package protocol

import (
	"fmt"
	"math"
)

// MaxPhiPage is the largest page which Φ can encode into 32 bits.
const MaxPhiPage = math.MaxUint32 / AtlasPageSize

// PhiEncode linearizes (page, offset) into Φ(page, offset) = page·256 + offset.
func PhiEncode(page, offset uint32) (uint32, error) {
	if offset >= AtlasPageSize {
		return 0, NewError(CoordinateError, "offset out of range (%d; expected < %d)", offset, AtlasPageSize)
	} else if page > MaxPhiPage {
		return 0, NewError(CoordinateError, "page out of range (%d; expected <= %d)", page, MaxPhiPage)
	}
	return page*AtlasPageSize + offset, nil
}

// PhiDecode is the inverse of PhiEncode.
func PhiDecode(phi uint32) (page, offset uint32) {
	return phi / AtlasPageSize, phi % AtlasPageSize
}

// PhiOfCoord decomposes a linear byte coordinate into its (page, offset)
// and returns its Φ encoding. Coordinates past the 32-bit Φ space are
// a CoordinateError. As a special case, the exclusive end coordinate
// 1<<32 is not representable and also errors.
func PhiOfCoord(coord uint64) (uint32, error) {
	if coord > math.MaxUint32 {
		return 0, NewError(CoordinateError, "coordinate exceeds Φ space (%d)", coord)
	}
	return PhiEncode(uint32(coord/AtlasPageSize), uint32(coord%AtlasPageSize))
}

// PhiRange is a half-open range [Begin, End) of Φ-linear addresses.
type PhiRange struct {
	Begin uint32 `cbor:"1,keyasint"`
	End   uint32 `cbor:"2,keyasint"`
}

// Len returns the number of addresses spanned by the PhiRange.
func (r PhiRange) Len() uint32 { return r.End - r.Begin }

// Validate returns an error if the PhiRange is not well-formed.
func (r PhiRange) Validate() error {
	if r.Begin > r.End {
		return NewError(InvalidInput, "expected Begin <= End (have %d, %d)", r.Begin, r.End)
	}
	return nil
}

// Overlaps returns whether the PhiRanges share at least one address.
func (r PhiRange) Overlaps(o PhiRange) bool {
	return r.Begin < o.End && o.Begin < r.End
}

// Intersect returns the overlapping portion of the PhiRanges, and whether
// any overlap exists.
func (r PhiRange) Intersect(o PhiRange) (PhiRange, bool) {
	if !r.Overlaps(o) {
		return PhiRange{}, false
	}
	var out = r
	if o.Begin > out.Begin {
		out.Begin = o.Begin
	}
	if o.End < out.End {
		out.End = o.End
	}
	return out, true
}

// String returns a debugging representation of the PhiRange.
func (r PhiRange) String() string { return fmt.Sprintf("[%d, %d)", r.Begin, r.End) }
