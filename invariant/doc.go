// Package invariant implements the invariant engine which gates engine
// operations on the health of its algebraic invariants.
//
// Four independent trackers each own one invariant:
//
//   - BudgetTracker is a mod-96 ledger of conservation budget across
//     categories, which may never allocate more than its total.
//   - PhiVerifier records Φ(page, offset) encodings of a session and
//     detects collisions, which permanently invalidate the session.
//   - CycleTracker accumulates exactly 768 steps of state, and closes only
//     if the accumulated state difference is a triple cycle (divisible by
//     288) and the Klein-orbit positions {0, 1, 48, 49} are aligned.
//   - KleinAligner independently checks alignment of the Klein orbit, a
//     four-group under XOR of the positions {0, 1, 48, 49}.
//
// Enforcer aggregates errors reported by the trackers (and by callers)
// into a failure-closed system state: once in Error, operations are
// refused until an explicit recovery from a checkpoint; once Locked, they
// are refused permanently.
//
// Validator composes one of each into a validation session, which it
// initializes, validates, checkpoints, and recovers as a unit. Trackers
// are not safe for concurrent use; a session is owned by one goroutine.
package invariant
