package causeid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstruct_CheckRunCompleted(t *testing.T) {
	c, err := Construct(Input{
		CauseType:  CauseCheckRunCompleted,
		DeliveryID: "delivery-1",
		CheckRunID: "check-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "delivery-1:check-9", c.CanonicalCauseID)
	assert.Nil(t, c.SignalHeadShaOrNull)
	assert.Equal(t, IdentityVersion, c.CauseIdentityVersion)
}

func TestConstruct_PullRequestSynchronize_SetsHeadSha(t *testing.T) {
	c, err := Construct(Input{
		CauseType:     CausePullRequestSynchronize,
		DeliveryID:    "delivery-2",
		PullRequestID: "pr-1",
		HeadSha:       "sha-loop-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "delivery-2:pr-1:sha-loop-1", c.CanonicalCauseID)
	require.NotNil(t, c.SignalHeadShaOrNull)
	assert.Equal(t, "sha-loop-1", *c.SignalHeadShaOrNull)
}

func TestConstruct_PullRequestClosed_MergedVsUnmergedDiffer(t *testing.T) {
	merged := true
	unmerged := false

	mergedCause, err := Construct(Input{
		CauseType:     CausePullRequestClosed,
		DeliveryID:    "delivery-3",
		PullRequestID: "pr-7",
		Merged:        &merged,
	})
	require.NoError(t, err)

	unmergedCause, err := Construct(Input{
		CauseType:     CausePullRequestClosed,
		DeliveryID:    "delivery-3",
		PullRequestID: "pr-7",
		Merged:        &unmerged,
	})
	require.NoError(t, err)

	assert.NotEqual(t, mergedCause.CanonicalCauseID, unmergedCause.CanonicalCauseID)
	assert.Equal(t, "delivery-3:pr-7:closed:merged", mergedCause.CanonicalCauseID)
	assert.Equal(t, "delivery-3:pr-7:closed:unmerged", unmergedCause.CanonicalCauseID)
}

func TestConstruct_PullRequestClosed_NilMergedDefaultsUnmerged(t *testing.T) {
	c, err := Construct(Input{
		CauseType:     CausePullRequestClosed,
		DeliveryID:    "delivery-4",
		PullRequestID: "pr-2",
	})
	require.NoError(t, err)
	assert.Equal(t, "delivery-4:pr-2:closed:unmerged", c.CanonicalCauseID)
}

func TestConstruct_ReviewThreadPollSynthetic(t *testing.T) {
	c, err := Construct(Input{
		CauseType:       CauseReviewThreadPollSynthetic,
		LoopID:          "loop-1",
		PollWindowStart: "2026-01-01T00:00:00Z",
		PollWindowEnd:   "2026-01-01T00:05:00Z",
		PollSequence:    3,
	})
	require.NoError(t, err)
	assert.Equal(t, "loop-1:2026-01-01T00:00:00Z:2026-01-01T00:05:00Z:3", c.CanonicalCauseID)
}

func TestConstruct_UnknownCauseTypeFailsLoudly(t *testing.T) {
	_, err := Construct(Input{CauseType: "not_a_real_cause"})
	require.Error(t, err)
	var unknown ErrUnknownCauseType
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, CauseType("not_a_real_cause"), unknown.CauseType)
}

func TestStableFindingID_DeterministicAndCaseInsensitiveOnTitle(t *testing.T) {
	a := StableFindingID(GateDeepReview, "Null pointer in handler", "high", "correctness", "may panic on nil input")
	b := StableFindingID(GateDeepReview, "null pointer in handler", "high", "correctness", "may panic on nil input")
	assert.Equal(t, a, b, "title casing must not affect the hash")
	assert.Regexp(t, `^deep_review_[0-9a-f]{24}$`, a)
}

func TestStableFindingID_DiffersByGateKind(t *testing.T) {
	a := StableFindingID(GateDeepReview, "t", "low", "c", "d")
	b := StableFindingID(GateCarmackReview, "t", "low", "c", "d")
	assert.NotEqual(t, a, b)
}

func TestStableFindingID_DiffersByContent(t *testing.T) {
	a := StableFindingID(GateDeepReview, "t1", "low", "c", "d")
	b := StableFindingID(GateDeepReview, "t2", "low", "c", "d")
	assert.NotEqual(t, a, b)
}
