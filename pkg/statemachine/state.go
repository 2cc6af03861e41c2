// Package statemachine implements the loop phase state machine: the
// canonical forward/back transitions between planning, implementing,
// reviewing, ui_testing, pr_babysitting and the terminal states, global
// overrides that apply in any active state, and the fix-attempt-budget
// escalation to blocked_on_human_feedback.
package statemachine

// LoopState is a tagged variant of every state a Loop row may hold.
type LoopState string

const (
	StatePlanning      LoopState = "planning"
	StateImplementing  LoopState = "implementing"
	StateReviewing     LoopState = "reviewing"
	StateUITesting     LoopState = "ui_testing"
	StatePRBabysitting LoopState = "pr_babysitting"

	// Legacy-migration active states, carried only so a deployment
	// migrating off the v1 coordinator has somewhere to land; see the
	// Open Questions decision recorded in DESIGN.md.
	StateEnrolled               LoopState = "enrolled"
	StateGatesRunning           LoopState = "gates_running"
	StateVideoPending           LoopState = "video_pending"
	StateHumanReviewReady       LoopState = "human_review_ready"
	StateVideoDegradedReady     LoopState = "video_degraded_ready"
	StateBlockedOnAgentFixes    LoopState = "blocked_on_agent_fixes"
	StateBlockedOnCI            LoopState = "blocked_on_ci"
	StateBlockedOnReviewThreads LoopState = "blocked_on_review_threads"
	StateBlockedOnHumanFeedback LoopState = "blocked_on_human_feedback"

	StateTerminatedPRClosed LoopState = "terminated_pr_closed"
	StateTerminatedPRMerged LoopState = "terminated_pr_merged"
	StateDone               LoopState = "done"
	StateStopped            LoopState = "stopped"
)

// TransitionEvent is a tagged variant of every event resolveNextState
// accepts.
type TransitionEvent string

const (
	EventPlanCompleted TransitionEvent = "plan_completed"

	EventImplementationProgress  TransitionEvent = "implementation_progress"
	EventImplementationCompleted TransitionEvent = "implementation_completed"

	EventReviewBlocked           TransitionEvent = "review_blocked"
	EventDeepReviewGateBlocked   TransitionEvent = "deep_review_gate_blocked"
	EventCarmackReviewGateBlocked TransitionEvent = "carmack_review_gate_blocked"
	EventReviewPassed            TransitionEvent = "review_passed"
	EventDeepReviewGatePassed    TransitionEvent = "deep_review_gate_passed"
	EventCarmackReviewGatePassed TransitionEvent = "carmack_review_gate_passed"

	EventUISmokeFailed       TransitionEvent = "ui_smoke_failed"
	EventVideoCaptureFailed  TransitionEvent = "video_capture_failed"
	EventPRLinked            TransitionEvent = "pr_linked"
	EventVideoCaptureSucceeded TransitionEvent = "video_capture_succeeded"
	EventUISmokePassed       TransitionEvent = "ui_smoke_passed"
	EventVideoCaptureStarted TransitionEvent = "video_capture_started"

	EventBabysitBlocked TransitionEvent = "babysit_blocked"
	EventBabysitPassed  TransitionEvent = "babysit_passed"
	EventMarkDone       TransitionEvent = "mark_done"

	// Legacy *_gate_blocked events also increment fixAttemptCount; modeled
	// as their own events so resolveNextState's switch stays exhaustive.
	EventCIGateBlocked           TransitionEvent = "ci_gate_blocked"
	EventReviewThreadGateBlocked TransitionEvent = "review_thread_gate_blocked"

	EventPRClosedUnmerged       TransitionEvent = "pr_closed_unmerged"
	EventPRMerged               TransitionEvent = "pr_merged"
	EventManualStop             TransitionEvent = "manual_stop"
	EventHumanFeedbackRequested TransitionEvent = "human_feedback_requested"
)

var terminalStates = map[LoopState]bool{
	StateTerminatedPRClosed: true,
	StateTerminatedPRMerged: true,
	StateDone:               true,
	StateStopped:            true,
}

// IsTerminal reports whether s is one of the four terminal states.
func IsTerminal(s LoopState) bool {
	return terminalStates[s]
}

// fixAttemptIncrementingEvents is the exact set of events that, when they
// resolve to a transition, also bump fixAttemptCount.
var fixAttemptIncrementingEvents = map[TransitionEvent]bool{
	EventReviewBlocked:           true,
	EventUISmokeFailed:           true,
	EventBabysitBlocked:          true,
	EventDeepReviewGateBlocked:   true,
	EventCarmackReviewGateBlocked: true,
	EventCIGateBlocked:           true,
	EventReviewThreadGateBlocked: true,
}

// IncrementsFixAttempt reports whether event e, on a successful transition,
// increments the loop's fixAttemptCount.
func IncrementsFixAttempt(e TransitionEvent) bool {
	return fixAttemptIncrementingEvents[e]
}

// doneIdempotentEvents is the fixed set of events accepted while
// currentState == done; all of them idempotently remap to done.
var doneIdempotentEvents = map[TransitionEvent]bool{
	EventVideoCaptureSucceeded: true,
	EventVideoCaptureFailed:    true,
	EventBabysitPassed:         true,
	EventMarkDone:              true,
}

// ResolveNextState evaluates the transition table for (currentState, event)
// in the fixed precedence order: done-state idempotence, terminal
// rejection, global overrides, then per-state rules. Returns the next state
// and true if a rule matched; otherwise ("", false) — the caller treats a
// non-match as a stale no-op.
func ResolveNextState(currentState LoopState, event TransitionEvent) (LoopState, bool) {
	// 1. currentState == done: only a fixed idempotent event set is
	// accepted; everything else is rejected outright (not even a global
	// override applies, since done has no onward direction for them).
	if currentState == StateDone {
		if doneIdempotentEvents[event] {
			return StateDone, true
		}
		return "", false
	}

	// 2. any other terminal state accepts nothing.
	if IsTerminal(currentState) {
		return "", false
	}

	// 3. global overrides, in any active state.
	switch event {
	case EventPRClosedUnmerged:
		return StateTerminatedPRClosed, true
	case EventPRMerged:
		return StateTerminatedPRMerged, true
	case EventManualStop:
		return StateStopped, true
	case EventHumanFeedbackRequested:
		return StateBlockedOnHumanFeedback, true
	}

	// 4. per-state forward/back transitions.
	switch currentState {
	case StatePlanning:
		if event == EventPlanCompleted {
			return StateImplementing, true
		}

	case StateImplementing:
		switch event {
		case EventImplementationProgress:
			return StateImplementing, true
		case EventImplementationCompleted:
			return StateReviewing, true
		}

	case StateReviewing:
		switch event {
		case EventReviewBlocked, EventDeepReviewGateBlocked, EventCarmackReviewGateBlocked:
			return StateImplementing, true
		case EventReviewPassed:
			return StateUITesting, true
		case EventDeepReviewGatePassed, EventCarmackReviewGatePassed:
			return StateReviewing, true
		}

	case StateUITesting:
		switch event {
		case EventUISmokeFailed, EventVideoCaptureFailed:
			return StateImplementing, true
		case EventPRLinked, EventVideoCaptureSucceeded:
			return StatePRBabysitting, true
		case EventUISmokePassed, EventVideoCaptureStarted:
			return StateUITesting, true
		}

	case StatePRBabysitting:
		switch event {
		case EventBabysitBlocked, EventCIGateBlocked, EventReviewThreadGateBlocked,
			EventDeepReviewGateBlocked, EventCarmackReviewGateBlocked:
			return StateImplementing, true
		case EventBabysitPassed, EventMarkDone:
			return StateDone, true
		case EventReviewPassed, EventDeepReviewGatePassed, EventCarmackReviewGatePassed,
			EventUISmokePassed, EventVideoCaptureStarted, EventVideoCaptureSucceeded:
			// "all positive gate events remain in pr_babysitting"
			return StatePRBabysitting, true
		}
	}

	// 5. no rule matched.
	return "", false
}

// ApplyFixAttemptBudget forces the next state to blocked_on_human_feedback
// when the event increments fixAttemptCount above maxFixAttempts,
// overriding whatever resolveNextState picked.
func ApplyFixAttemptBudget(event TransitionEvent, nextState LoopState, newFixAttemptCount, maxFixAttempts int) LoopState {
	if IncrementsFixAttempt(event) && newFixAttemptCount > maxFixAttempts {
		return StateBlockedOnHumanFeedback
	}
	return nextState
}
