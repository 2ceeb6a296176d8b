package invariant

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.manifold.dev/atlas/metrics"
	pb "go.manifold.dev/atlas/protocol"
)

// SystemState is the failure-closed state of an Enforcer. States are
// ordered by severity.
type SystemState int

const (
	Normal SystemState = iota
	Warning
	Recovery
	Error
	Locked
)

func (s SystemState) String() string {
	switch s {
	case Normal:
		return "Normal"
	case Warning:
		return "Warning"
	case Recovery:
		return "Recovery"
	case Error:
		return "Error"
	case Locked:
		return "Locked"
	default:
		return fmt.Sprintf("SystemState(%d)", int(s))
	}
}

// DefaultLockThreshold is the error count at which an Enforcer Locks.
const DefaultLockThreshold = 10

// Enforcer aggregates recorded errors into a SystemState. The state only
// escalates as errors are recorded, and de-escalates solely through a
// successful AttemptRecovery. Locked is terminal.
type Enforcer struct {
	state      SystemState
	errorCount uint32
	threshold  uint32
	lastErr    error

	checkpoint *enforcerCheckpoint
}

type enforcerCheckpoint struct {
	errorCount uint32
}

// NewEnforcer returns an Enforcer in state Normal which Locks upon
// |threshold| recorded errors. A zero |threshold| uses DefaultLockThreshold.
func NewEnforcer(threshold uint32) *Enforcer {
	if threshold == 0 {
		threshold = DefaultLockThreshold
	}
	return &Enforcer{threshold: threshold}
}

// State returns the current SystemState.
func (e *Enforcer) State() SystemState { return e.state }

// ErrorCount returns the number of recorded errors.
func (e *Enforcer) ErrorCount() uint32 { return e.errorCount }

// LastError returns the most recently recorded error.
func (e *Enforcer) LastError() error { return e.lastErr }

// CanOperate returns false iff the Enforcer is in Error or Locked.
func (e *Enforcer) CanOperate() bool { return e.state != Error && e.state != Locked }

// RecordError records |err| and escalates the SystemState. A nil |err| is
// ignored. The resulting SystemState is returned.
func (e *Enforcer) RecordError(err error) SystemState {
	if err == nil {
		return e.state
	}
	var kind = pb.KindOf(err)
	if kind == 0 {
		kind = pb.LayerIntegrationError
	}
	metrics.InvariantViolationsTotal.WithLabelValues(kind.String()).Inc()

	e.errorCount++
	e.lastErr = err

	var next = e.state
	switch {
	case e.errorCount >= e.threshold:
		next = Locked
	case e.state == Normal && escalatesNormal(kind):
		next = Warning
	case e.state == Warning && (kind == pb.LayerIntegrationError || kind == pb.TopologyError):
		next = Error
	case e.state == Recovery:
		next = Error
	}
	if next > e.state {
		e.transition(next)
	}
	return e.state
}

// Checkpoint captures the error count, for use by a later AttemptRecovery.
func (e *Enforcer) Checkpoint() error {
	if e.state == Locked {
		return pb.NewError(pb.LayerIntegrationError, "enforcer is locked")
	}
	e.checkpoint = &enforcerCheckpoint{errorCount: e.errorCount}
	return nil
}

// HasCheckpoint returns whether a Checkpoint was taken.
func (e *Enforcer) HasCheckpoint() bool { return e.checkpoint != nil }

// AttemptRecovery enters Recovery and invokes |restore|, which restores
// the caller's state from its checkpoint. If |restore| succeeds the error
// count is restored from the Enforcer checkpoint and the Enforcer moves
// to Warning. If it fails, its error is recorded and returned.
//
// Recovery requires a prior Checkpoint, and is refused once Locked.
// Recovery from Normal is a no-op.
func (e *Enforcer) AttemptRecovery(restore func() error) error {
	switch {
	case e.state == Locked:
		return pb.NewError(pb.LayerIntegrationError, "enforcer is locked")
	case e.state == Normal:
		return nil
	case e.checkpoint == nil:
		return pb.NewError(pb.LayerIntegrationError, "no checkpoint to recover from")
	}
	e.transition(Recovery)

	if restore != nil {
		if err := restore(); err != nil {
			e.RecordError(err)
			return pb.ExtendContext(err, "recovery")
		}
	}
	e.errorCount = e.checkpoint.errorCount
	e.lastErr = nil
	e.transition(Warning)
	return nil
}

// ResetState returns the Enforcer to Normal with zero errors, and drops
// its checkpoint. It ends the current validation session and begins a new
// one: severity is monotone within a session, and a reset from Warning is
// the only de-escalation other than AttemptRecovery. ResetState is refused
// in Recovery and Error (which require AttemptRecovery) and in Locked.
func (e *Enforcer) ResetState() error {
	if e.state == Locked || e.state == Error || e.state == Recovery {
		return pb.NewError(pb.LayerIntegrationError, "enforcer cannot reset from %s", e.state)
	}
	*e = Enforcer{threshold: e.threshold}
	metrics.EnforcerState.Set(float64(Normal))
	return nil
}

// Clone returns a copy of the Enforcer.
func (e *Enforcer) Clone() *Enforcer {
	var out = *e
	if e.checkpoint != nil {
		var cp = *e.checkpoint
		out.checkpoint = &cp
	}
	return &out
}

func (e *Enforcer) transition(to SystemState) {
	var entry = log.WithFields(log.Fields{
		"from":   e.state,
		"to":     to,
		"errors": e.errorCount,
		"err":    e.lastErr,
	})
	switch {
	case to == Locked:
		entry.Error("enforcer locked")
	case to > e.state && to != Recovery:
		entry.Warn("enforcer escalated")
	default:
		entry.Debug("enforcer state transition")
	}

	e.state = to
	metrics.EnforcerState.Set(float64(to))
	metrics.EnforcerTransitionsTotal.WithLabelValues(to.String()).Inc()
}

func escalatesNormal(kind pb.Kind) bool {
	switch kind {
	case pb.NumericalError, pb.MatrixError, pb.LayerIntegrationError, pb.TopologyError:
		return true
	}
	return false
}
