package gates

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateCIGate_PrecedenceRulesetOverBranchProtectionOverAllowlist(t *testing.T) {
	eval := EvaluateCIGate(CIGateEvaluationInput{
		CapabilityState:        CapabilitySupported,
		RulesetChecks:          []string{"CI / tests"},
		BranchProtectionChecks: []string{"CI / lint"},
		AllowlistChecks:        []string{"CI / build"},
	})
	assert.Equal(t, SourceRuleset, eval.RequiredCheckSource)
	assert.Equal(t, []string{"CI / tests"}, eval.RequiredChecks)
}

func TestEvaluateCIGate_NoRequiredChecksPasses(t *testing.T) {
	eval := EvaluateCIGate(CIGateEvaluationInput{CapabilityState: CapabilitySupported})
	assert.Equal(t, CIStatusPassed, eval.Status)
	assert.True(t, eval.GatePassed)
	assert.Equal(t, SourceNoRequired, eval.RequiredCheckSource)
}

func TestEvaluateCIGate_FailingRequiredCheckBlocks(t *testing.T) {
	eval := EvaluateCIGate(CIGateEvaluationInput{
		CapabilityState: CapabilitySupported,
		RulesetChecks:   []string{"CI / tests", "CI / lint"},
		FailingChecks:   []string{"CI / tests"},
	})
	assert.Equal(t, CIStatusBlocked, eval.Status)
	assert.False(t, eval.GatePassed)
	assert.Equal(t, []string{"CI / tests"}, eval.FailingRequiredChecks)
}

func TestEvaluateCIGate_FailingNonRequiredCheckPasses(t *testing.T) {
	eval := EvaluateCIGate(CIGateEvaluationInput{
		CapabilityState: CapabilitySupported,
		RulesetChecks:   []string{"CI / tests"},
		FailingChecks:   []string{"some-unrelated-check"},
	})
	assert.True(t, eval.GatePassed)
}

func TestEvaluateCIGate_NormalizesTrimDedupeSort(t *testing.T) {
	eval := EvaluateCIGate(CIGateEvaluationInput{
		CapabilityState: CapabilitySupported,
		RulesetChecks:   []string{" b ", "a", "a", "b"},
	})
	assert.Equal(t, []string{"a", "b"}, eval.RequiredChecks)
}

func TestEvaluateCIGate_CapabilityError(t *testing.T) {
	eval := EvaluateCIGate(CIGateEvaluationInput{CapabilityState: CapabilityUnsupported})
	assert.Equal(t, CIStatusCapabilityError, eval.Status)
	assert.False(t, eval.GatePassed)
}

func TestAcceptOptimisticCIPass_RequiresSnapshot(t *testing.T) {
	assert.False(t, AcceptOptimisticCIPass(OptimisticCIPassInput{}))
}

func TestAcceptOptimisticCIPass_SupersetOfRequiredChecksAccepted(t *testing.T) {
	accepted := AcceptOptimisticCIPass(OptimisticCIPassInput{
		CISnapshotSource:     "github_check_runs",
		CISnapshotComplete:   true,
		CISnapshotCheckNames: []string{"CI / lint", "CI / tests"},
		KnownRequiredChecks:  []string{"CI / tests"},
	})
	assert.True(t, accepted)
}

func TestAcceptOptimisticCIPass_MissingKnownCheckRejected(t *testing.T) {
	accepted := AcceptOptimisticCIPass(OptimisticCIPassInput{
		CISnapshotSource:     "github_check_runs",
		CISnapshotComplete:   true,
		CISnapshotCheckNames: []string{"CI / lint"},
		KnownRequiredChecks:  []string{"CI / tests"},
	})
	assert.False(t, accepted)
}

func TestAcceptOptimisticCIPass_IncompleteSnapshotRejected(t *testing.T) {
	accepted := AcceptOptimisticCIPass(OptimisticCIPassInput{
		CISnapshotSource:     "github_check_runs",
		CISnapshotComplete:   false,
		CISnapshotCheckNames: []string{"CI / tests"},
	})
	assert.False(t, accepted)
}
