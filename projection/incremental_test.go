package projection

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"go.manifold.dev/atlas/conservation/conservationtest"
	pb "go.manifold.dev/atlas/protocol"
)

func TestDeltaKinds(t *testing.T) {
	var cases = []struct {
		delta  Delta
		expect string
	}{
		{Delta{Kind: Insert, Offset: 3, Data: []byte("XY")}, "abcXYdefgh"},
		{Delta{Kind: Insert, Offset: 8, Data: []byte("!")}, "abcdefgh!"},
		{Delta{Kind: Update, Offset: 1, Data: []byte("ZZ")}, "aZZdefgh"},
		{Delta{Kind: Delete, Offset: 2, Length: 3}, "abfgh"},
		{Delta{Kind: Move, Offset: 0, Length: 2, Target: 4}, "cdefabgh"},
		{Delta{Kind: Move, Offset: 5, Length: 3, Target: 0}, "fghabcde"},
	}
	for _, tc := range cases {
		var src = []byte("abcdefgh")
		require.NoError(t, tc.delta.Validate(uint64(len(src))))

		var out, inverse = tc.delta.apply(src)
		require.Equal(t, tc.expect, string(out), tc.delta.Kind.String())

		// Applying the inverse restores the source.
		require.NoError(t, inverse.Validate(uint64(len(out))))
		var restored, _ = inverse.apply(out)
		require.Equal(t, "abcdefgh", string(restored))
		require.Equal(t, "abcdefgh", string(src))
	}
}

func TestDeltaValidation(t *testing.T) {
	for _, tc := range []struct {
		delta  Delta
		expect string
	}{
		{Delta{Kind: Insert, Offset: 1}, "InvalidInput: expected non-empty Data"},
		{Delta{Kind: Insert, Offset: 9, Data: []byte{1}}, "CoordinateError: Offset out of range (9 > 8)"},
		{Delta{Kind: Update, Offset: 7, Data: []byte{1, 2}}, "CoordinateError: update [7, 9) exceeds buffer (8)"},
		{Delta{Kind: Delete, Offset: 1}, "InvalidInput: expected Length > 0"},
		{Delta{Kind: Delete, Length: 8}, "InvalidInput: delete would empty the projection"},
		{Delta{Kind: Delete, Offset: 4, Length: 5}, "CoordinateError: range [4, 9) exceeds buffer (8)"},
		{Delta{Kind: Move, Offset: 0, Length: 4, Target: 5}, "CoordinateError: Target out of range (5 > 4)"},
		{Delta{Kind: DeltaKind(9)}, "InvalidInput: invalid DeltaKind (9)"},
		// Spans which would wrap uint64 are refused rather than passing validation.
		{Delta{Kind: Update, Offset: math.MaxUint64, Data: []byte{1, 2}},
			"CoordinateError: update at 18446744073709551615 of length 2 overflows"},
		{Delta{Kind: Delete, Offset: 1, Length: math.MaxUint64},
			"CoordinateError: range at 1 of length 18446744073709551615 overflows"},
		{Delta{Kind: Move, Offset: 2, Length: math.MaxUint64 - 1},
			"CoordinateError: range at 2 of length 18446744073709551614 overflows"},
		{Delta{Kind: Delete, Offset: 9, Length: 1}, "CoordinateError: range [9, 10) exceeds buffer (8)"},
	} {
		require.EqualError(t, tc.delta.Validate(8), tc.expect)
	}
}

func TestUpdateContextAppliesAndRollsBack(t *testing.T) {
	var faults = conservationtest.New()
	var src = bytes.Repeat([]byte{1}, 96)

	var p, err = NewLinear(src, WithConservation(faults))
	require.NoError(t, err)
	defer p.Close()

	var seq = NewSequencer()
	var u = NewUpdateContext(p, seq, 2)

	res, err := u.Apply(Delta{Kind: Insert, Offset: 96, Data: bytes.Repeat([]byte{2}, pb.PageSize)})
	require.NoError(t, err)
	require.Equal(t, uint64(1), res.Sequence)
	require.Equal(t, uint8((2*pb.PageSize)%pb.Modulus), res.ConservationDelta)
	require.Equal(t, 96+pb.PageSize, p.Len())
	require.Equal(t, 2, p.NumPages())
	require.NoError(t, p.VerifyProjection())

	res, err = u.Apply(Delta{Kind: Update, Offset: 0, Data: []byte{50}})
	require.NoError(t, err)
	require.Equal(t, uint64(2), res.Sequence)
	require.Equal(t, uint8(49), res.ConservationDelta)
	require.Equal(t, byte(50), p.Source()[0])
	require.Equal(t, uint64(0), p.TotalConservationSum%pb.Modulus)

	_, err = u.Apply(Delta{Kind: Delete, Offset: 0, Length: 96})
	require.NoError(t, err)
	require.Equal(t, pb.PageSize, p.Len())

	// The rollback log is bounded to the two most recent deltas.
	require.Equal(t, 2, u.RollbackDepth())

	_, err = u.Rollback()
	require.NoError(t, err)
	require.Equal(t, 96+pb.PageSize, p.Len())
	require.Equal(t, byte(50), p.Source()[0])

	_, err = u.Rollback()
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{1}, 96), p.Source()[:96])

	_, err = u.Rollback()
	require.EqualError(t, err, "InvalidInput: no deltas to roll back")
	require.NoError(t, p.VerifyProjection())

	// Each update replaced the projection's conservation context.
	require.Equal(t, 1, faults.Reference().LiveDomains())
	require.Equal(t, 1, faults.Reference().LiveWitnesses())
}

func TestUpdateFailuresLeaveProjectionUnchanged(t *testing.T) {
	var faults = conservationtest.New()
	var p, err = NewLinear([]byte("some projected content"), WithConservation(faults))
	require.NoError(t, err)

	var u = NewUpdateContext(p, nil, 4)
	var before = p.Bytes()

	// Case: invalid delta.
	_, err = u.Apply(Delta{Kind: Update, Offset: 100, Data: []byte{1}})
	require.EqualError(t, err, "CoordinateError: Delta: update [100, 101) exceeds buffer (22)")

	// Case: overflowing spans are errors, not panics.
	_, err = u.Apply(Delta{Kind: Update, Offset: math.MaxUint64, Data: []byte{1, 2}})
	require.True(t, pb.IsKind(err, pb.CoordinateError))
	_, err = u.Apply(Delta{Kind: Delete, Offset: 1, Length: math.MaxUint64})
	require.True(t, pb.IsKind(err, pb.CoordinateError))
	_, err = u.Apply(Delta{Kind: Move, Offset: 2, Length: math.MaxUint64 - 1})
	require.True(t, pb.IsKind(err, pb.CoordinateError))

	// Case: conservation context cannot be re-created.
	faults.DomainCreateAfter = 0
	_, err = u.Apply(Delta{Kind: Insert, Offset: 0, Data: []byte{7}})
	require.True(t, pb.IsKind(err, pb.LayerIntegrationError))
	faults.DomainCreateAfter = -1

	// Case: updated buffer fails the streaming check.
	faults.FailStreamingLen = 23
	_, err = u.Apply(Delta{Kind: Insert, Offset: 0, Data: []byte{7}})
	require.EqualError(t, err, "LayerIntegrationError: updated buffer of 23 bytes fails streaming conservation check")
	faults.FailStreamingLen = 0

	require.Equal(t, before, p.Bytes())
	require.Equal(t, 0, u.RollbackDepth())
	require.NoError(t, p.VerifyProjection())

	// Case: batches fail fast, retaining prior deltas.
	results, err := u.ApplyBatch([]Delta{
		{Kind: Insert, Offset: 0, Data: []byte{1}},
		{Kind: Delete, Offset: 100, Length: 1},
		{Kind: Insert, Offset: 0, Data: []byte{2}},
	})
	require.EqualError(t, err, "CoordinateError: deltas[1].Delta: range [100, 101) exceeds buffer (23)")
	require.Len(t, results, 1)
	require.Equal(t, byte(1), p.Source()[0])

	// Case: closed projection.
	require.NoError(t, p.Close())
	_, err = u.Apply(Delta{Kind: Insert, Offset: 0, Data: []byte{1}})
	require.EqualError(t, err, "LayerIntegrationError: projection is closed")
	require.Equal(t, 0, faults.Reference().LiveDomains())
}

func TestUpdateRebuildsR96Fourier(t *testing.T) {
	var p, err = NewR96Fourier([]byte{1, 2, 3})
	require.NoError(t, err)
	defer p.Close()

	var u = NewUpdateContext(p, NewSequencer(), 1)
	_, err = u.Apply(Delta{Kind: Insert, Offset: 3, Data: []byte{4, 100}})
	require.NoError(t, err)

	require.Equal(t, uint64(110), p.Fourier.Checksum)
	require.Equal(t, []uint8{1, 2, 3, 4}, p.Fourier.ActiveClasses())
	require.NoError(t, p.VerifyProjection())
}

func TestSequencerIsMonotonic(t *testing.T) {
	var s = NewSequencer()
	var last uint64
	for i := 0; i != 100; i++ {
		var n = s.Next()
		require.True(t, n > last)
		last = n
	}
}
