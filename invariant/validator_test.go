package invariant

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	pb "go.manifold.dev/atlas/protocol"
)

func closedValidator(t *testing.T) *Validator {
	var v, err = NewValidator(DefaultValidatorConfig())
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, v.SessionID)

	require.NoError(t, v.Cycle.StepAll(closingDeltas()...))
	for offset := uint32(0); offset != 16; offset++ {
		var _, err = v.Phi.Record(2, offset)
		require.NoError(t, err)
	}
	require.NoError(t, v.Budget.Allocate(5, 64))
	require.NoError(t, v.Budget.Consume(5, 32))
	return v
}

func TestValidatorValidatesAll(t *testing.T) {
	var v = closedValidator(t)
	require.NoError(t, v.ValidateAll())
	require.Equal(t, Normal, v.Enforcer.State())
	require.Equal(t, PhiValid, v.Phi.State())
	require.True(t, v.Klein.IsAligned())
}

func TestValidatorChecksInOrder(t *testing.T) {
	// Case: the open cycle is reported before the Φ collision.
	var v, err = NewValidator(DefaultValidatorConfig())
	require.NoError(t, err)

	_, _ = v.Phi.Record(0, 0)
	_, _ = v.Phi.Record(0, 0)

	require.EqualError(t, v.ValidateAll(), "TopologyError: C768 cycle is not closed (position 0)")
	require.Equal(t, Warning, v.Enforcer.State())

	// Case: with the cycle closed, the collision is reported.
	require.NoError(t, v.Cycle.StepAll(closingDeltas()...))
	require.EqualError(t, v.ValidateAll(),
		"TopologyError: Φ bijection violated: Φ(0, 0) = 0 recorded twice")
	require.Equal(t, Error, v.Enforcer.State())
	require.Equal(t, uint32(2), v.Enforcer.ErrorCount())

	// The session no longer operates.
	require.EqualError(t, v.ValidateAll(),
		"LayerIntegrationError: session "+v.SessionID.String()+" cannot operate (Error)")
	require.Equal(t, uint32(2), v.Enforcer.ErrorCount())

	// Case: an unbalanced budget is reported after Φ.
	v = closedValidator(t)
	v.Budget.total = 0
	require.EqualError(t, v.ValidateAll(),
		"LayerIntegrationError: budget unbalanced (allocated 32 > total 0)")
}

func TestValidatorCheckpointAndRecover(t *testing.T) {
	var v = closedValidator(t)
	require.NoError(t, v.Checkpoint())

	// Corrupt the session, driving the Enforcer to Error.
	_, _ = v.Phi.Record(2, 0)
	v.Cycle.Reset()
	require.Error(t, v.ValidateAll())
	require.Error(t, v.ValidateAll())
	require.False(t, v.Enforcer.CanOperate())

	// Re-initialization is refused in Error.
	require.EqualError(t, v.Initialize(), "LayerIntegrationError: enforcer cannot reset from Error")

	require.NoError(t, v.Recover())
	require.Equal(t, Warning, v.Enforcer.State())
	require.True(t, v.Cycle.IsClosed())
	require.Equal(t, PhiRecording, v.Phi.State())
	require.NoError(t, v.ValidateAll())

	// Re-initialization from Warning begins a fresh session.
	var prev = v.SessionID
	require.NoError(t, v.Initialize())
	require.NotEqual(t, prev, v.SessionID)
	require.Equal(t, Normal, v.Enforcer.State())
	require.Equal(t, 0, v.Cycle.Position())
}

func TestValidatorConfigValidation(t *testing.T) {
	var cfg = DefaultValidatorConfig()
	cfg.MaxPages = 0
	var _, err = NewValidator(cfg)
	require.EqualError(t, err, "InvalidInput: ValidatorConfig: MaxPages out of range (0)")

	cfg = DefaultValidatorConfig()
	cfg.Categories = 0
	_, err = NewValidator(cfg)
	require.True(t, pb.IsKind(err, pb.InvalidInput))
}
