// Package guardrails implements evaluateLoopGuardrails: the single
// precedence-ordered check every loop-mutating operation runs before
// touching a loop.
package guardrails

import "time"

// ReasonCode enumerates the deterministic denial reasons, in the exact
// precedence order they are checked.
type ReasonCode string

const (
	ReasonKillSwitch          ReasonCode = "kill_switch"
	ReasonTerminalState       ReasonCode = "terminal_state"
	ReasonLeaseInvalid        ReasonCode = "lease_invalid"
	ReasonCooldown            ReasonCode = "cooldown"
	ReasonMaxIterations       ReasonCode = "max_iterations"
	ReasonManualIntentDenied  ReasonCode = "manual_intent_denied"
)

// Result is the outcome of evaluateLoopGuardrails.
type Result struct {
	Allowed    bool
	ReasonCode ReasonCode
}

// Input carries the observations evaluateLoopGuardrails needs. Fields are
// nil/zero-value where the spec marks them optional.
type Input struct {
	KillSwitchEnabled   bool
	IsTerminalState     bool
	HasValidLease       bool
	CooldownUntil       *time.Time
	IterationCount      int
	MaxIterations       *int
	ManualIntentAllowed bool
	Now                 time.Time
}

// Evaluate runs the fixed precedence chain — kill_switch, terminal_state,
// lease_invalid, cooldown, max_iterations, manual_intent_denied — and
// returns the first denial, or {Allowed:true} if none apply.
func Evaluate(in Input) Result {
	if in.KillSwitchEnabled {
		return Result{Allowed: false, ReasonCode: ReasonKillSwitch}
	}
	if in.IsTerminalState {
		return Result{Allowed: false, ReasonCode: ReasonTerminalState}
	}
	if !in.HasValidLease {
		return Result{Allowed: false, ReasonCode: ReasonLeaseInvalid}
	}
	if in.CooldownUntil != nil && in.CooldownUntil.After(in.Now) {
		return Result{Allowed: false, ReasonCode: ReasonCooldown}
	}
	if in.MaxIterations != nil && in.IterationCount >= *in.MaxIterations {
		return Result{Allowed: false, ReasonCode: ReasonMaxIterations}
	}
	if !in.ManualIntentAllowed {
		return Result{Allowed: false, ReasonCode: ReasonManualIntentDenied}
	}
	return Result{Allowed: true}
}
