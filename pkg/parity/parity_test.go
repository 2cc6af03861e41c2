package parity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateParitySlo_CutoverEligibleWhenAllBucketsMeetThreshold(t *testing.T) {
	eval := EvaluateParitySlo(SloEvaluationInput{
		BucketStats: []BucketStats{
			{Key: BucketKey{CauseType: "pull_request.synchronize", TargetClass: "ci_gate"}, MatchedCount: 999, EligibleCount: 1000, Parity: 0.999},
		},
	})
	assert.True(t, eval.CutoverEligible)
	assert.False(t, eval.RollbackRequired)
}

func TestEvaluateParitySlo_NotCutoverEligibleWhenAnyBucketBelowThreshold(t *testing.T) {
	eval := EvaluateParitySlo(SloEvaluationInput{
		BucketStats: []BucketStats{
			{EligibleCount: 1000, Parity: 0.999},
			{EligibleCount: 500, Parity: 0.995},
		},
	})
	assert.False(t, eval.CutoverEligible)
}

func TestEvaluateParitySlo_EmptyBucketsNeverCutoverEligible(t *testing.T) {
	eval := EvaluateParitySlo(SloEvaluationInput{})
	assert.False(t, eval.CutoverEligible)
	assert.False(t, eval.RollbackRequired)
}

func TestEvaluateParitySlo_ZeroEligibleBucketBlocksCutoverButNotRollback(t *testing.T) {
	eval := EvaluateParitySlo(SloEvaluationInput{
		BucketStats: []BucketStats{{EligibleCount: 0, Parity: 1}},
	})
	assert.False(t, eval.CutoverEligible)
	assert.False(t, eval.RollbackRequired)
}

func TestEvaluateParitySlo_RollbackOnCriticalInvariantViolation(t *testing.T) {
	eval := EvaluateParitySlo(SloEvaluationInput{CriticalInvariantViolation: true})
	assert.True(t, eval.RollbackRequired)
	assert.False(t, eval.CutoverEligible)
}

func TestEvaluateParitySlo_RollbackWhenBucketBelowRollbackThreshold(t *testing.T) {
	eval := EvaluateParitySlo(SloEvaluationInput{
		BucketStats: []BucketStats{{EligibleCount: 100, Parity: 0.98}},
	})
	assert.True(t, eval.RollbackRequired)
}

func TestEvaluateParitySlo_CustomThresholds(t *testing.T) {
	eval := EvaluateParitySlo(SloEvaluationInput{
		BucketStats:       []BucketStats{{EligibleCount: 10, Parity: 0.95}},
		CutoverThreshold:  0.9,
		RollbackThreshold: 0.5,
	})
	assert.True(t, eval.CutoverEligible)
	assert.False(t, eval.RollbackRequired)
}
