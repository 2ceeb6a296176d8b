package protocol

import (
	"fmt"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestKindCodes(t *testing.T) {
	var expect = []struct {
		kind Kind
		code int32
	}{
		{InvalidDimension, -1},
		{MatrixError, -2},
		{TopologyError, -3},
		{CoordinateError, -4},
		{SerializationError, -5},
		{AllocationError, -6},
		{InvalidInput, -7},
		{NumericalError, -8},
		{LayerIntegrationError, -9},
	}
	for _, tc := range expect {
		require.Equal(t, tc.code, tc.kind.Code(), tc.kind.String())
		require.NoError(t, tc.kind.Validate())
	}
	require.Error(t, Kind(0).Validate())
	require.Equal(t, "Kind(42)", Kind(42).String())
}

func TestErrorContextAndUnwrapping(t *testing.T) {
	var err = NewError(InvalidInput, "bad value (%d)", 42)
	require.EqualError(t, err, "InvalidInput: bad value (42)")

	err = ExtendContext(ExtendContext(err, "Inner"), "Outer[%d]", 1)
	require.EqualError(t, err, "InvalidInput: Outer[1].Inner: bad value (42)")

	// Kinds survive wrapping by pkg/errors and fmt.
	var wrapped = errors.WithMessage(fmt.Errorf("layer: %w", err), "extracting")
	require.Equal(t, InvalidInput, KindOf(wrapped))
	require.True(t, IsKind(wrapped, InvalidInput))
	require.Equal(t, int32(-7), CodeOf(wrapped))

	// Errors without a Kind report LayerIntegrationError's code.
	require.Equal(t, Kind(0), KindOf(errors.New("opaque")))
	require.Equal(t, LayerIntegrationError.Code(), CodeOf(errors.New("opaque")))
	require.Equal(t, int32(0), CodeOf(nil))

	require.Nil(t, WrapError(TopologyError, nil, "nothing"))
	err = WrapError(TopologyError, errors.New("cause"), "msg")
	require.EqualError(t, err, "TopologyError: msg: cause")
}

func TestPhiEncodeScenario(t *testing.T) {
	var phi, err = PhiEncode(1, 128)
	require.NoError(t, err)
	require.Equal(t, uint32(384), phi)

	var page, offset = PhiDecode(384)
	require.Equal(t, uint32(1), page)
	require.Equal(t, uint32(128), offset)
}

func TestPhiRoundTripOverPages(t *testing.T) {
	for page := uint32(0); page < DefaultMaxPages; page++ {
		for offset := uint32(0); offset < AtlasPageSize; offset++ {
			var phi, err = PhiEncode(page, offset)
			require.NoError(t, err)

			var p, o = PhiDecode(phi)
			require.Equal(t, page, p)
			require.Equal(t, offset, o)
		}
	}
}

func TestPhiRangeErrors(t *testing.T) {
	var _, err = PhiEncode(0, 256)
	require.True(t, IsKind(err, CoordinateError))
	_, err = PhiEncode(MaxPhiPage+1, 0)
	require.True(t, IsKind(err, CoordinateError))
	_, err = PhiOfCoord(math.MaxUint32 + 1)
	require.True(t, IsKind(err, CoordinateError))

	var phi, _ = PhiOfCoord(4096 + 17)
	require.Equal(t, uint32(4113), phi)
}

func TestPhiRangeIntersection(t *testing.T) {
	var a, b = PhiRange{Begin: 10, End: 20}, PhiRange{Begin: 15, End: 30}

	var out, ok = a.Intersect(b)
	require.True(t, ok)
	require.Equal(t, PhiRange{Begin: 15, End: 20}, out)
	require.Equal(t, uint32(5), out.Len())

	// Half-open ranges which abut do not overlap.
	_, ok = a.Intersect(PhiRange{Begin: 20, End: 25})
	require.False(t, ok)

	require.NoError(t, a.Validate())
	require.Error(t, PhiRange{Begin: 2, End: 1}.Validate())
	require.Equal(t, "[10, 20)", a.String())
}

func TestBoundaryRegionValidation(t *testing.T) {
	var r = NewBoundaryRegion(0, 4096, 3)
	require.Equal(t, uint32(1), r.PageCount)
	require.NoError(t, r.Validate())

	r = NewBoundaryRegion(4000, 4200, 3)
	require.Equal(t, uint32(2), r.PageCount)

	var phi, err = r.PhiRange()
	require.NoError(t, err)
	require.Equal(t, PhiRange{Begin: 4000, End: 4200}, phi)

	var cases = []struct {
		fn  func(*BoundaryRegion)
		err string
	}{
		{func(r *BoundaryRegion) { r.EndCoord = r.StartCoord }, "InvalidInput: expected StartCoord < EndCoord (have 4000, 4000)"},
		{func(r *BoundaryRegion) { r.PageCount = 0 }, "InvalidInput: expected PageCount > 0"},
		{func(r *BoundaryRegion) { r.PageCount = 7 }, "InvalidInput: PageCount inconsistent with span (have 7; expected 2)"},
		{func(r *BoundaryRegion) { r.RegionClass = 96 }, "InvalidInput: RegionClass out of range (96)"},
		{func(r *BoundaryRegion) { r.AffectingClasses = []uint8{1, 200} }, "InvalidInput: AffectingClasses[1]: class out of range (200)"},
		{func(r *BoundaryRegion) { r.SpatialBounds.MinX = 2 }, "InvalidDimension: SpatialBounds: expected Min <= Max (have [(2, 0), (0, 0)])"},
	}
	for _, tc := range cases {
		var r = NewBoundaryRegion(4000, 4200, 3)
		tc.fn(&r)
		require.EqualError(t, r.Validate(), tc.err)
	}
}

func TestTransformCompositionAndApplication(t *testing.T) {
	var tp = IdentityTransform()
	require.NoError(t, tp.Validate())
	require.Equal(t, Point{X: 2, Y: 3}, tp.Apply(Point{X: 2, Y: 3}))

	tp = tp.Compose(TransformParams{ScaleX: 2, ScaleY: 2, Rotation: math.Pi, TranslateX: 1})
	tp = tp.Compose(TransformParams{ScaleX: 3, ScaleY: 0.5, Rotation: 1.5 * math.Pi, TranslateY: -1})

	require.Equal(t, 6.0, tp.ScaleX)
	require.Equal(t, 1.0, tp.ScaleY)
	require.InDelta(t, 0.5*math.Pi, tp.Rotation, 1e-12)
	require.Equal(t, 1.0, tp.TranslateX)
	require.Equal(t, -1.0, tp.TranslateY)

	// A quarter turn of a unit square about the origin.
	var r = TransformParams{ScaleX: 1, ScaleY: 1, Rotation: math.Pi / 2}.ApplyRect(Rect{MaxX: 1, MaxY: 1})
	require.InDelta(t, -1, r.MinX, 1e-12)
	require.InDelta(t, 0, r.MinY, 1e-12)
	require.InDelta(t, 0, r.MaxX, 1e-12)
	require.InDelta(t, 1, r.MaxY, 1e-12)

	require.True(t, IsKind(TransformParams{ScaleX: 0, ScaleY: 1}.Validate(), MatrixError))
	require.True(t, IsKind(TransformParams{ScaleX: math.NaN(), ScaleY: 1}.Validate(), NumericalError))
	require.InDelta(t, 1.5*math.Pi, NormalizeAngle(-0.5*math.Pi), 1e-12)
}

func TestDigestsAndMerkleRoot(t *testing.T) {
	var a = DigestOf(TileDomain, []byte("a"))
	var b = DigestOf(TileDomain, []byte("b"))
	var c = DigestOf(TileDomain, []byte("c"))

	// Domains separate digests of equal content.
	require.NotEqual(t, a, DigestOf(ShardDomain, []byte("a")))
	// Parts are concatenated.
	require.Equal(t, DigestOf(TileDomain, []byte("ab")), DigestOf(TileDomain, []byte("a"), []byte("b")))

	require.True(t, MerkleRoot(nil).IsZero())
	require.Equal(t, a, MerkleRoot([]Digest{a}))
	require.Equal(t, DigestOf(TreeDomain, a[:], b[:]), MerkleRoot([]Digest{a, b}))
	// Odd trailing nodes are promoted.
	var ab = DigestOf(TreeDomain, a[:], b[:])
	require.Equal(t, DigestOf(TreeDomain, ab[:], c[:]), MerkleRoot([]Digest{a, b, c}))
	require.Len(t, a.String(), 64)
}

func TestShardIDAndWitness(t *testing.T) {
	var id = ShardIDOf([]byte("shard content"))
	require.Equal(t, id, ShardIDOf([]byte("shard "), []byte("content")))
	require.NotEqual(t, id, ShardIDOf([]byte("other content")))

	var parsed, err = ParseShardID(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
	_, err = ParseShardID("xyz")
	require.True(t, IsKind(err, SerializationError))

	var bounds = PhiRange{Begin: 0, End: 512}
	var w = NewShardWitness(id, 960, bounds)
	require.True(t, w.Verify(960, bounds))
	require.False(t, w.Verify(961, bounds))
	require.False(t, w.Verify(960, PhiRange{Begin: 0, End: 511}))

	w.Hash[0] ^= 0xff
	require.False(t, w.Verify(960, bounds))
}

func TestCompressionCodecNames(t *testing.T) {
	for _, c := range []CompressionCodec{
		CompressionCodec_NONE, CompressionCodec_GZIP, CompressionCodec_ZSTANDARD,
		CompressionCodec_SNAPPY, CompressionCodec_LZ4,
	} {
		require.NoError(t, c.Validate())

		var parsed, err = CompressionCodecFromExtension(c.ToExtension())
		require.NoError(t, err)
		require.Equal(t, c, parsed)

		parsed, err = CompressionCodecFromString(c.String())
		require.NoError(t, err)
		require.Equal(t, c, parsed)
	}
	require.Error(t, CompressionCodec_INVALID.Validate())
	var _, err = CompressionCodecFromString("brotli")
	require.EqualError(t, err, "InvalidInput: unrecognized CompressionCodec: brotli")
}

func TestByteSums(t *testing.T) {
	var data = make([]byte, 96)
	for i := range data {
		data[i] = 1
	}
	require.Equal(t, uint64(96), ByteSum(data))
	require.Equal(t, uint64(0), ConservationResidue(data))
	require.Equal(t, uint64(1), ConservationResidue(append(data, 1)))
}
