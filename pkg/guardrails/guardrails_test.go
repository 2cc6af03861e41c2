package guardrails

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var fixedNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func allowedInput() Input {
	return Input{
		KillSwitchEnabled:   false,
		IsTerminalState:     false,
		HasValidLease:       true,
		ManualIntentAllowed: true,
		Now:                 fixedNow,
	}
}

func TestEvaluate_AllowsWhenEverythingClear(t *testing.T) {
	assert.Equal(t, Result{Allowed: true}, Evaluate(allowedInput()))
}

func TestEvaluate_MaxIterationsGuardrailScenario(t *testing.T) {
	in := Input{
		KillSwitchEnabled:   false,
		IsTerminalState:     false,
		HasValidLease:       true,
		CooldownUntil:       nil,
		IterationCount:      3,
		MaxIterations:       intPtr(3),
		ManualIntentAllowed: true,
		Now:                 fixedNow,
	}
	assert.Equal(t, Result{Allowed: false, ReasonCode: ReasonMaxIterations}, Evaluate(in))
}

func TestEvaluate_PrecedenceOrder(t *testing.T) {
	in := allowedInput()
	in.KillSwitchEnabled = true
	in.IsTerminalState = true
	in.HasValidLease = false
	cooldown := fixedNow.Add(time.Hour)
	in.CooldownUntil = &cooldown
	in.MaxIterations = intPtr(0)
	in.ManualIntentAllowed = false

	// kill_switch wins over every other simultaneously-true denial.
	assert.Equal(t, ReasonKillSwitch, Evaluate(in).ReasonCode)

	in.KillSwitchEnabled = false
	assert.Equal(t, ReasonTerminalState, Evaluate(in).ReasonCode)

	in.IsTerminalState = false
	assert.Equal(t, ReasonLeaseInvalid, Evaluate(in).ReasonCode)

	in.HasValidLease = true
	assert.Equal(t, ReasonCooldown, Evaluate(in).ReasonCode)

	in.CooldownUntil = nil
	assert.Equal(t, ReasonMaxIterations, Evaluate(in).ReasonCode)

	in.MaxIterations = nil
	assert.Equal(t, ReasonManualIntentDenied, Evaluate(in).ReasonCode)

	in.ManualIntentAllowed = true
	assert.Equal(t, Result{Allowed: true}, Evaluate(in))
}

func TestEvaluate_CooldownInPastDoesNotBlock(t *testing.T) {
	in := allowedInput()
	past := fixedNow.Add(-time.Minute)
	in.CooldownUntil = &past
	assert.Equal(t, Result{Allowed: true}, Evaluate(in))
}

func intPtr(v int) *int { return &v }
