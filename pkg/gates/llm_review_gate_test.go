package gates

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sdlcloop/controller/pkg/causeid"
)

func TestValidateLLMOutput_EmptyFindingsValid(t *testing.T) {
	assert.True(t, ValidateLLMOutput(RawLLMOutput{GatePassed: true}))
}

func TestValidateLLMOutput_MissingTitleInvalid(t *testing.T) {
	assert.False(t, ValidateLLMOutput(RawLLMOutput{
		BlockingFindings: []RawFinding{{Severity: SeverityHigh, Category: "correctness", Detail: "x", IsBlocking: true}},
	}))
}

func TestValidateLLMOutput_UnknownSeverityInvalid(t *testing.T) {
	assert.False(t, ValidateLLMOutput(RawLLMOutput{
		BlockingFindings: []RawFinding{{Title: "t", Severity: "extreme", Category: "c", Detail: "d", IsBlocking: true}},
	}))
}

func TestValidateLLMOutput_NonBlockingEntryInvalid(t *testing.T) {
	assert.False(t, ValidateLLMOutput(RawLLMOutput{
		BlockingFindings: []RawFinding{{Title: "t", Severity: SeverityLow, Category: "c", Detail: "d", IsBlocking: false}},
	}))
}

func TestNormalizeFindings_DedupesByStableId(t *testing.T) {
	f := RawFinding{Title: "Leaky resource", Severity: SeverityHigh, Category: "correctness", Detail: "fd not closed", IsBlocking: true}
	out := NormalizeFindings(causeid.GateDeepReview, []RawFinding{f, f})
	assert.Len(t, out, 1)
	assert.NotEmpty(t, out[0].ResolvedStableFindingID)
}

func TestNormalizeFindings_RespectsCallerSuppliedId(t *testing.T) {
	f1 := RawFinding{Title: "a", Severity: SeverityLow, Category: "c", Detail: "d", IsBlocking: true, StableFindingID: "same"}
	f2 := RawFinding{Title: "b", Severity: SeverityLow, Category: "c", Detail: "d", IsBlocking: true, StableFindingID: "same"}
	out := NormalizeFindings(causeid.GateCarmackReview, []RawFinding{f1, f2})
	assert.Len(t, out, 1)
	assert.Equal(t, "same", out[0].ResolvedStableFindingID)
}

func TestEvaluateLLMReviewGate_InvalidOutputOnSchemaFailure(t *testing.T) {
	status, passed, findings := EvaluateLLMReviewGate(causeid.GateDeepReview, RawLLMOutput{
		GatePassed:       true,
		BlockingFindings: []RawFinding{{Title: "t", Severity: "bogus", Category: "c", Detail: "d", IsBlocking: true}},
	})
	assert.Equal(t, LLMReviewStatusInvalidOutput, status)
	assert.False(t, passed)
	assert.Nil(t, findings)
}

func TestEvaluateLLMReviewGate_PassedWithNoFindings(t *testing.T) {
	status, passed, findings := EvaluateLLMReviewGate(causeid.GateDeepReview, RawLLMOutput{GatePassed: true})
	assert.Equal(t, LLMReviewStatusPassed, status)
	assert.True(t, passed)
	assert.Empty(t, findings)
}

func TestEvaluateLLMReviewGate_BlockedWhenFindingsPresentDespiteGatePassedClaim(t *testing.T) {
	status, passed, findings := EvaluateLLMReviewGate(causeid.GateDeepReview, RawLLMOutput{
		GatePassed:       true,
		BlockingFindings: []RawFinding{{Title: "t", Severity: SeverityCritical, Category: "c", Detail: "d", IsBlocking: true}},
	})
	assert.Equal(t, LLMReviewStatusBlocked, status)
	assert.False(t, passed)
	assert.Len(t, findings, 1)
}

func TestCanRunCarmackReview_RequiresPriorPassingDeepReview(t *testing.T) {
	assert.True(t, CanRunCarmackReview(LLMReviewStatusPassed, true))
	assert.False(t, CanRunCarmackReview(LLMReviewStatusPassed, false))
	assert.False(t, CanRunCarmackReview(LLMReviewStatusBlocked, true))
	assert.False(t, CanRunCarmackReview(LLMReviewStatusInvalidOutput, false))
}
