package invariant

import (
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.manifold.dev/atlas/metrics"
	pb "go.manifold.dev/atlas/protocol"
)

// ValidatorConfig configures a Validator session.
type ValidatorConfig struct {
	// Seed is the initial state of the session's C768 cycle.
	Seed uint64
	// MaxPages tracked by the session's Φ verifier.
	MaxPages uint32
	// TotalBudget and number of Categories of the session's budget ledger.
	TotalBudget uint64
	Categories  int
	// LockThreshold of the session's Enforcer. Zero uses DefaultLockThreshold.
	LockThreshold uint32
}

// DefaultValidatorConfig returns a ValidatorConfig with engine defaults.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxPages:    pb.DefaultMaxPages,
		TotalBudget: pb.Modulus * pb.Modulus,
		Categories:  pb.NumClasses,
	}
}

// Validate returns an error if the ValidatorConfig is invalid.
func (c ValidatorConfig) Validate() error {
	if c.MaxPages == 0 || c.MaxPages > pb.MaxPhiPage {
		return pb.NewError(pb.InvalidInput, "MaxPages out of range (%d)", c.MaxPages)
	} else if c.Categories <= 0 {
		return pb.NewError(pb.InvalidInput, "expected Categories > 0 (have %d)", c.Categories)
	}
	return nil
}

// Validator composes the invariant trackers of a session, and validates
// them as a unit. Errors surfaced by ValidateAll are fed to the session
// Enforcer, which gates further validation.
type Validator struct {
	SessionID uuid.UUID

	Cycle    *CycleTracker
	Phi      *PhiVerifier
	Budget   *BudgetTracker
	Klein    *KleinAligner
	Enforcer *Enforcer

	cfg        ValidatorConfig
	checkpoint *validatorCheckpoint
}

type validatorCheckpoint struct {
	cycle  *CycleTracker
	phi    *PhiVerifier
	budget *BudgetTracker
	klein  KleinAligner
}

// NewValidator returns an initialized Validator of the ValidatorConfig.
func NewValidator(cfg ValidatorConfig) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, pb.ExtendContext(err, "ValidatorConfig")
	}
	var v = &Validator{
		cfg:      cfg,
		Enforcer: NewEnforcer(cfg.LockThreshold),
	}
	if err := v.Initialize(); err != nil {
		return nil, err
	}
	return v, nil
}

// Initialize begins a new session with fresh trackers and a new
// SessionID. The Enforcer is reset, which fails if it's in Error or Locked.
func (v *Validator) Initialize() error {
	if err := v.Enforcer.ResetState(); err != nil {
		return err
	}
	var phi, err = NewPhiVerifier(v.cfg.MaxPages)
	if err != nil {
		return err
	} else if err = phi.Initialize(); err != nil {
		return err
	}
	budget, err := NewBudgetTracker(v.cfg.TotalBudget, v.cfg.Categories)
	if err != nil {
		return err
	}

	v.SessionID = uuid.New()
	v.Cycle = NewCycleTracker(v.cfg.Seed)
	v.Phi = phi
	v.Budget = budget
	v.Klein = new(KleinAligner)
	v.checkpoint = nil

	log.WithFields(log.Fields{
		"session":  v.SessionID,
		"seed":     v.cfg.Seed,
		"maxPages": v.cfg.MaxPages,
		"budget":   v.cfg.TotalBudget,
	}).Debug("initialized invariant session")

	return nil
}

// ValidateAll validates, in order, that the C768 cycle closed, the Φ
// bijection holds, the budget is balanced, and the Klein orbit is aligned.
// The first failure is recorded by the Enforcer and returned. ValidateAll
// is refused unless the Enforcer CanOperate.
func (v *Validator) ValidateAll() error {
	if !v.Enforcer.CanOperate() {
		metrics.ValidationsTotal.WithLabelValues(metrics.Fail).Inc()
		return pb.NewError(pb.LayerIntegrationError,
			"session %s cannot operate (%s)", v.SessionID, v.Enforcer.State())
	}
	var err = v.validate()

	if err != nil {
		v.Enforcer.RecordError(err)
		metrics.ValidationsTotal.WithLabelValues(metrics.Fail).Inc()

		log.WithFields(log.Fields{
			"session": v.SessionID,
			"state":   v.Enforcer.State(),
			"err":     err,
		}).Warn("invariant validation failed")
	} else {
		metrics.ValidationsTotal.WithLabelValues(metrics.Ok).Inc()
	}
	return err
}

func (v *Validator) validate() error {
	if !v.Cycle.IsClosed() {
		return pb.NewError(pb.TopologyError, "C768 cycle is not closed (position %d)", v.Cycle.Position())
	} else if err := v.Phi.Verify(); err != nil {
		return err
	} else if err = v.Budget.Validate(); err != nil {
		return err
	} else if err = v.Klein.RecordFrom(v.Cycle); err != nil {
		return err
	} else if err = v.Klein.Check(); err != nil {
		return err
	}
	return nil
}

// Checkpoint captures the state of each tracker, and of the Enforcer.
func (v *Validator) Checkpoint() error {
	if err := v.Enforcer.Checkpoint(); err != nil {
		return err
	}
	v.checkpoint = &validatorCheckpoint{
		cycle:  v.Cycle.Clone(),
		phi:    v.Phi.Clone(),
		budget: v.Budget.Clone(),
		klein:  *v.Klein,
	}
	return nil
}

// Recover restores each tracker from the last Checkpoint, via
// Enforcer.AttemptRecovery.
func (v *Validator) Recover() error {
	return v.Enforcer.AttemptRecovery(func() error {
		if v.checkpoint == nil {
			return pb.NewError(pb.LayerIntegrationError, "no tracker checkpoint")
		}
		var cp = v.checkpoint
		v.Cycle = cp.cycle.Clone()
		v.Phi = cp.phi.Clone()
		v.Budget = cp.budget.Clone()
		var klein = cp.klein
		v.Klein = &klein

		log.WithFields(log.Fields{
			"session": v.SessionID,
			"cycle":   v.Cycle.Position(),
			"phi":     v.Phi.Recorded(),
		}).Info("recovered invariant session from checkpoint")
		return nil
	})
}
