package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveNextState_DoneAcceptsOnlyIdempotentEvents(t *testing.T) {
	next, ok := ResolveNextState(StateDone, EventBabysitPassed)
	assert.True(t, ok)
	assert.Equal(t, StateDone, next)

	_, ok = ResolveNextState(StateDone, EventPlanCompleted)
	assert.False(t, ok, "done must reject events outside the idempotent set")
}

func TestResolveNextState_TerminalStatesAcceptNothing(t *testing.T) {
	for _, s := range []LoopState{StateTerminatedPRClosed, StateTerminatedPRMerged, StateStopped} {
		_, ok := ResolveNextState(s, EventPlanCompleted)
		assert.False(t, ok, "terminal state %s must reject all events", s)
	}
}

func TestResolveNextState_GlobalOverridesApplyInAnyActiveState(t *testing.T) {
	cases := []struct {
		from LoopState
		want LoopState
	}{
		{StatePlanning, StateTerminatedPRClosed},
		{StateImplementing, StateTerminatedPRClosed},
		{StateReviewing, StateTerminatedPRClosed},
		{StateUITesting, StateTerminatedPRClosed},
		{StatePRBabysitting, StateTerminatedPRClosed},
	}
	for _, c := range cases {
		next, ok := ResolveNextState(c.from, EventPRClosedUnmerged)
		assert.True(t, ok)
		assert.Equal(t, c.want, next)
	}

	next, ok := ResolveNextState(StateImplementing, EventManualStop)
	assert.True(t, ok)
	assert.Equal(t, StateStopped, next)

	next, ok = ResolveNextState(StateReviewing, EventHumanFeedbackRequested)
	assert.True(t, ok)
	assert.Equal(t, StateBlockedOnHumanFeedback, next)
}

func TestResolveNextState_CanonicalForwardPath(t *testing.T) {
	next, ok := ResolveNextState(StatePlanning, EventPlanCompleted)
	assert.True(t, ok)
	assert.Equal(t, StateImplementing, next)

	next, ok = ResolveNextState(StateImplementing, EventImplementationCompleted)
	assert.True(t, ok)
	assert.Equal(t, StateReviewing, next)

	next, ok = ResolveNextState(StateReviewing, EventReviewPassed)
	assert.True(t, ok)
	assert.Equal(t, StateUITesting, next)

	next, ok = ResolveNextState(StateUITesting, EventPRLinked)
	assert.True(t, ok)
	assert.Equal(t, StatePRBabysitting, next)

	next, ok = ResolveNextState(StatePRBabysitting, EventBabysitPassed)
	assert.True(t, ok)
	assert.Equal(t, StateDone, next)
}

func TestResolveNextState_ReviewBlockedLoopsBackToImplementing(t *testing.T) {
	next, ok := ResolveNextState(StateReviewing, EventReviewBlocked)
	assert.True(t, ok)
	assert.Equal(t, StateImplementing, next)
}

func TestResolveNextState_NoMatchingRuleIsStaleNoop(t *testing.T) {
	_, ok := ResolveNextState(StatePlanning, EventReviewPassed)
	assert.False(t, ok)
}

func TestApplyFixAttemptBudget_ForcesHumanFeedbackOnExhaustion(t *testing.T) {
	forced := ApplyFixAttemptBudget(EventReviewBlocked, StateImplementing, 4, 3)
	assert.Equal(t, StateBlockedOnHumanFeedback, forced)
}

func TestApplyFixAttemptBudget_LeavesNextStateWhenWithinBudget(t *testing.T) {
	next := ApplyFixAttemptBudget(EventReviewBlocked, StateImplementing, 2, 3)
	assert.Equal(t, StateImplementing, next)
}

func TestApplyFixAttemptBudget_IgnoresNonIncrementingEvents(t *testing.T) {
	next := ApplyFixAttemptBudget(EventReviewPassed, StateUITesting, 10, 3)
	assert.Equal(t, StateUITesting, next, "only fix-attempt-incrementing events trigger the override")
}
