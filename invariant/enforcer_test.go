package invariant

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	pb "go.manifold.dev/atlas/protocol"
)

func TestEnforcerEscalation(t *testing.T) {
	var e = NewEnforcer(0)
	require.Equal(t, Normal, e.State())
	require.True(t, e.CanOperate())

	// Case: InvalidInput is recorded, but doesn't escalate.
	require.Equal(t, Normal, e.RecordError(pb.NewError(pb.InvalidInput, "bad")))
	require.Equal(t, uint32(1), e.ErrorCount())

	// Case: numerical errors warn, but don't escalate further.
	require.Equal(t, Warning, e.RecordError(pb.NewError(pb.NumericalError, "nan")))
	require.Equal(t, Warning, e.RecordError(pb.NewError(pb.MatrixError, "singular")))
	require.True(t, e.CanOperate())

	// Case: topology errors escalate a Warning to Error.
	require.Equal(t, Error, e.RecordError(pb.NewError(pb.TopologyError, "open")))
	require.False(t, e.CanOperate())

	// Case: a nil error is ignored.
	require.Equal(t, Error, e.RecordError(nil))
	require.Equal(t, uint32(4), e.ErrorCount())

	// Case: errors without a Kind are treated as integration errors.
	var plain = errors.New("plain")
	require.Equal(t, Error, e.RecordError(plain))
	require.Equal(t, plain, e.LastError())
}

func TestEnforcerLocks(t *testing.T) {
	var e = NewEnforcer(3)
	require.NoError(t, e.Checkpoint())

	for i := 0; i != 3; i++ {
		e.RecordError(pb.NewError(pb.InvalidInput, "bad"))
	}
	require.Equal(t, Locked, e.State())
	require.False(t, e.CanOperate())

	require.EqualError(t, e.ResetState(), "LayerIntegrationError: enforcer cannot reset from Locked")
	require.EqualError(t, e.Checkpoint(), "LayerIntegrationError: enforcer is locked")
	require.EqualError(t, e.AttemptRecovery(nil), "LayerIntegrationError: enforcer is locked")

	// Locked is terminal.
	e.RecordError(pb.NewError(pb.NumericalError, "nan"))
	require.Equal(t, Locked, e.State())
}

func TestEnforcerRecovery(t *testing.T) {
	var e = NewEnforcer(0)

	// Case: recovery from Normal is a no-op.
	require.NoError(t, e.AttemptRecovery(func() error { panic("not called") }))

	e.RecordError(pb.NewError(pb.TopologyError, "one"))
	e.RecordError(pb.NewError(pb.TopologyError, "two"))
	require.Equal(t, Error, e.State())

	// Case: recovery requires a checkpoint. Error cannot be reset.
	require.EqualError(t, e.AttemptRecovery(nil), "LayerIntegrationError: no checkpoint to recover from")
	require.EqualError(t, e.ResetState(), "LayerIntegrationError: enforcer cannot reset from Error")

	require.NoError(t, e.Checkpoint())

	// Case: failed restoration escalates back to Error.
	require.EqualError(t, e.AttemptRecovery(func() error {
		require.Equal(t, Recovery, e.State())
		require.EqualError(t, e.ResetState(), "LayerIntegrationError: enforcer cannot reset from Recovery")
		return pb.NewError(pb.LayerIntegrationError, "restore failed")
	}), "LayerIntegrationError: recovery: restore failed")
	require.Equal(t, Error, e.State())
	require.Equal(t, uint32(3), e.ErrorCount())

	// Case: successful restoration de-escalates to Warning, and restores
	// the checkpointed error count.
	require.NoError(t, e.AttemptRecovery(func() error { return nil }))
	require.Equal(t, Warning, e.State())
	require.Equal(t, uint32(2), e.ErrorCount())
	require.True(t, e.CanOperate())

	// Case: a reset from Warning ends the session, beginning a new one in
	// Normal with a fresh error count.
	require.NoError(t, e.ResetState())
	require.Equal(t, Normal, e.State())
	require.Equal(t, uint32(0), e.ErrorCount())
	require.False(t, e.HasCheckpoint())
}

func TestEnforcerStateIsMonotoneWithoutRecovery(t *testing.T) {
	var kinds = []pb.Kind{
		pb.InvalidDimension, pb.MatrixError, pb.TopologyError, pb.CoordinateError,
		pb.SerializationError, pb.AllocationError, pb.InvalidInput, pb.NumericalError,
		pb.LayerIntegrationError,
	}
	var rnd = rand.New(rand.NewSource(768))

	for round := 0; round != 50; round++ {
		var e = NewEnforcer(uint32(1 + rnd.Intn(20)))
		var last = e.State()

		for i := 0; i != 30; i++ {
			var next = e.RecordError(pb.NewError(kinds[rnd.Intn(len(kinds))], "err %d", i))
			require.True(t, next >= last, "%s => %s", last, next)
			last = next
		}
		if e.ErrorCount() >= e.threshold {
			require.Equal(t, Locked, e.State())
		}
	}
}
