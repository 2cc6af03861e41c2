// Package signalinbox implements the best-effort signal-inbox tick: select
// the oldest unprocessed signal for a loop, dispatch it to the relevant
// gate evaluator, route any resulting feedback to the agent through the
// follow-up router, enqueue a status-comment publication, and mark the
// signal processed.
package signalinbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sdlcloop/controller/ent"
	"github.com/sdlcloop/controller/ent/cigaterun"
	"github.com/sdlcloop/controller/ent/signalinboxrow"
	"github.com/sdlcloop/controller/pkg/external"
	"github.com/sdlcloop/controller/pkg/gates"
	"github.com/sdlcloop/controller/pkg/guardrails"
	"github.com/sdlcloop/controller/pkg/looplease"
	"github.com/sdlcloop/controller/pkg/outbox"
	"github.com/sdlcloop/controller/pkg/statemachine"
)

// Reason is the deterministic non-processing reason the tick returns when
// it does no work.
type Reason string

const (
	ReasonNoUnprocessedSignal            Reason = "no_unprocessed_signal"
	ReasonLeaseHeld                       Reason = "lease_held"
	ReasonKillSwitch                      Reason = "kill_switch"
	ReasonCooldown                        Reason = "cooldown"
	ReasonMaxIterations                   Reason = "max_iterations"
	ReasonManualIntentDenied              Reason = "manual_intent_denied"
	ReasonTerminalState                   Reason = "terminal_state"
	ReasonFeedbackFollowUpEnqueueFailed   Reason = "feedback_follow_up_enqueue_failed"
)

// RuntimeAction tags what the dispatch step actually did.
type RuntimeAction string

const (
	RuntimeActionNone                RuntimeAction = "none"
	RuntimeActionFeedbackFollowUpQueued RuntimeAction = "feedback_follow_up_queued"
	RuntimeActionOptimisticPassAccepted RuntimeAction = "optimistic_pass_accepted"
)

// TickResult is the outcome of one runBestEffortSignalInboxTick call.
type TickResult struct {
	Processed     bool
	Reason        Reason
	SignalID      string
	CauseType     string
	RuntimeAction RuntimeAction
	OutboxID      string
}

// GuardrailRuntimeInput carries the caller-observed policy state
// evaluateLoopGuardrails needs; nil means guardrails are not evaluated
// (used by callers, e.g. control-plane operations, that already ran their
// own guardrail check).
type GuardrailRuntimeInput struct {
	KillSwitchEnabled   bool
	CooldownUntil       *time.Time
	IterationCount      int
	MaxIterations       *int
	ManualIntentAllowed bool
}

// Deps bundles the tick's external collaborators.
type Deps struct {
	LeaseQuerier               looplease.Querier
	LeaseTTL                   time.Duration
	AuthoritativeThreadSources gates.AuthoritativeUnresolvedThreadCountSources

	// FollowUpQueuer is not called from this package: gate-blocked feedback
	// is routed through an enqueue_fix_task outbox row (see routeFollowUp)
	// so delivery gets the outbox's retry/backoff/supersession machinery.
	// pkg/queue's worker reads this same Deps value to perform the actual
	// delivery when it drains that row.
	FollowUpQueuer external.FollowUpQueuer
}

// RunBestEffortSignalInboxTick performs one iteration of the 8-step
// algorithm. It never panics on a missing loop, an unheld lease, a denied
// guardrail, or an empty inbox — those are all reported as
// {Processed:false, Reason:...}. Unexpected database errors propagate to
// the caller, who treats them as retriable, except errors from the dispatch
// step: those leave the signal unprocessed and are reported as
// {Processed:false, Reason:feedback_follow_up_enqueue_failed}.
func RunBestEffortSignalInboxTick(ctx context.Context, client *ent.Client, deps Deps, loopID, leaseOwnerToken string, guardrailRuntime *GuardrailRuntimeInput, now time.Time) (TickResult, error) {
	loopRow, err := client.Loop.Get(ctx, loopID)
	if err != nil {
		if ent.IsNotFound(err) {
			return TickResult{Processed: false, Reason: ReasonNoUnprocessedSignal}, nil
		}
		return TickResult{}, fmt.Errorf("signalinbox: load loop: %w", err)
	}

	acquire, err := looplease.Acquire(ctx, deps.LeaseQuerier, loopID, leaseOwnerToken, deps.LeaseTTL, now)
	if err != nil {
		return TickResult{}, fmt.Errorf("signalinbox: acquire lease: %w", err)
	}
	if !acquire.Acquired {
		return TickResult{Processed: false, Reason: ReasonLeaseHeld}, nil
	}
	defer func() {
		if _, releaseErr := looplease.Release(ctx, deps.LeaseQuerier, loopID, leaseOwnerToken, now); releaseErr != nil {
			slog.Warn("signalinbox: failed to release lease", "loop_id", loopID, "error", releaseErr)
		}
	}()

	if guardrailRuntime != nil {
		result := guardrails.Evaluate(guardrails.Input{
			KillSwitchEnabled:   guardrailRuntime.KillSwitchEnabled,
			IsTerminalState:     statemachine.IsTerminal(statemachine.LoopState(loopRow.State)),
			HasValidLease:       true,
			CooldownUntil:       guardrailRuntime.CooldownUntil,
			IterationCount:      guardrailRuntime.IterationCount,
			MaxIterations:       guardrailRuntime.MaxIterations,
			ManualIntentAllowed: guardrailRuntime.ManualIntentAllowed,
			Now:                 now,
		})
		if !result.Allowed {
			return TickResult{Processed: false, Reason: Reason(result.ReasonCode)}, nil
		}
	}

	signal, err := client.SignalInboxRow.Query().
		Where(signalinboxrow.LoopID(loopID), signalinboxrow.ProcessedAtIsNil()).
		Order(ent.Asc(signalinboxrow.FieldReceivedAt)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return TickResult{Processed: false, Reason: ReasonNoUnprocessedSignal}, nil
		}
		return TickResult{}, fmt.Errorf("signalinbox: select signal: %w", err)
	}

	runtimeAction, outboxID, dispatchErr := dispatch(ctx, client, deps, loopRow, signal, now)
	if dispatchErr != nil {
		slog.Warn("signalinbox: dispatch failed, signal left unprocessed", "loop_id", loopID, "signal_id", signal.ID, "error", dispatchErr)
		return TickResult{Processed: false, Reason: ReasonFeedbackFollowUpEnqueueFailed}, nil
	}

	statusOutboxID, err := enqueueStatusComment(ctx, client, loopRow, signal, now)
	if err != nil {
		return TickResult{}, fmt.Errorf("signalinbox: enqueue status comment: %w", err)
	}
	if outboxID == "" {
		outboxID = statusOutboxID
	}

	n, err := client.SignalInboxRow.Update().
		Where(signalinboxrow.ID(signal.ID), signalinboxrow.ProcessedAtIsNil()).
		SetProcessedAt(now).
		Save(ctx)
	if err != nil {
		return TickResult{}, fmt.Errorf("signalinbox: mark processed: %w", err)
	}
	if n == 0 {
		// Raced with another worker marking it processed first; still a
		// legitimate processed outcome from this tick's point of view.
		slog.Warn("signalinbox: signal processed-at CAS raced away", "signal_id", signal.ID)
	}

	return TickResult{
		Processed:     true,
		SignalID:      signal.ID,
		CauseType:     signal.CauseType,
		RuntimeAction: runtimeAction,
		OutboxID:      outboxID,
	}, nil
}

func enqueueStatusComment(ctx context.Context, client *ent.Client, loopRow *ent.Loop, signal *ent.SignalInboxRow, now time.Time) (string, error) {
	row, err := outbox.Enqueue(ctx, client, outbox.EnqueueInput{
		LoopID:        loopRow.ID,
		TransitionSeq: loopRow.LoopVersion,
		ActionType:    outbox.ActionPublishStatusComment,
		ActionKey:     fmt.Sprintf("signal-inbox:%s:publish-status-comment", signal.ID),
		Payload:       map[string]any{"signalId": signal.ID, "causeType": signal.CauseType},
		Now:           now,
	})
	if err != nil {
		return "", err
	}
	return row.ID, nil
}

func dispatch(ctx context.Context, client *ent.Client, deps Deps, loopRow *ent.Loop, signal *ent.SignalInboxRow, now time.Time) (RuntimeAction, string, error) {
	switch signal.CauseType {
	case "check_run.completed":
		return dispatchCheckRunCompleted(ctx, client, deps, loopRow, signal, now)
	case "pull_request_review", "pull_request_review_comment", "review-thread-poll-synthetic":
		return dispatchReviewThread(ctx, client, deps, loopRow, signal, now)
	default:
		return RuntimeActionNone, "", nil
	}
}

func dispatchCheckRunCompleted(ctx context.Context, client *ent.Client, deps Deps, loopRow *ent.Loop, signal *ent.SignalInboxRow, now time.Time) (RuntimeAction, string, error) {
	payload := signal.Payload
	checkName, _ := payload["checkName"].(string)
	checkOutcome, _ := payload["checkOutcome"].(string)
	headSha, _ := payload["headSha"].(string)
	if checkName == "" || checkOutcome == "" || headSha == "" {
		slog.Warn("signalinbox: incomplete check_run.completed payload", "loop_id", loopRow.ID, "signal_id", signal.ID)
		return RuntimeActionNone, "", nil
	}

	if checkOutcome == "pass" {
		snapshotSource, _ := payload["ciSnapshotSource"].(string)
		snapshotComplete, _ := payload["ciSnapshotComplete"].(bool)
		snapshotChecks := stringSlice(payload["ciSnapshotCheckNames"])
		knownRequired := knownRequiredChecks(ctx, client, loopRow.ID)

		accepted := gates.AcceptOptimisticCIPass(gates.OptimisticCIPassInput{
			CISnapshotSource:     snapshotSource,
			CISnapshotComplete:   snapshotComplete,
			CISnapshotCheckNames: snapshotChecks,
			KnownRequiredChecks:  knownRequired,
		})
		if !accepted {
			slog.Warn("signalinbox: optimistic CI pass rejected, no trusted snapshot", "loop_id", loopRow.ID, "signal_id", signal.ID)
			return RuntimeActionNone, "", nil
		}

		eval := gates.EvaluateCIGate(gates.CIGateEvaluationInput{
			CapabilityState: gates.CapabilitySupported,
			AllowlistChecks: snapshotChecks,
		})
		if _, err := gates.PersistCIGateEvaluation(ctx, client, gates.PersistCIGateEvaluationInput{
			LoopID:        loopRow.ID,
			HeadSha:       headSha,
			LoopVersion:   loopRow.LoopVersion,
			ObservedState: statemachine.LoopState(loopRow.State),
			TriggerEvent:  "check_run.completed",
			Eval:          eval,
			Now:           now,
		}); err != nil {
			return "", "", err
		}
		return RuntimeActionOptimisticPassAccepted, "", nil
	}

	// checkOutcome == "fail" (or any non-pass outcome is treated as a
	// failure signal for gate purposes)
	lastRun, _ := client.CIGateRun.Query().
		Where(cigaterun.LoopID(loopRow.ID)).
		Order(ent.Desc(cigaterun.FieldCreatedAt)).
		First(ctx)

	evalInput := gates.CIGateEvaluationInput{
		CapabilityState: gates.CapabilitySupported,
		FailingChecks:   []string{checkName},
	}
	if lastRun != nil && lastRun.RequiredCheckSource != nil {
		switch *lastRun.RequiredCheckSource {
		case cigaterun.RequiredCheckSourceBranchProtection:
			evalInput.BranchProtectionChecks = lastRun.RequiredChecks
		case cigaterun.RequiredCheckSourceAllowlist:
			evalInput.AllowlistChecks = lastRun.RequiredChecks
		default:
			evalInput.RulesetChecks = lastRun.RequiredChecks
		}
	} else {
		// No required-check set recorded for this loop yet: the failing
		// check is the only check known, so it gates.
		evalInput.AllowlistChecks = []string{checkName}
	}
	eval := gates.EvaluateCIGate(evalInput)

	if _, err := gates.PersistCIGateEvaluation(ctx, client, gates.PersistCIGateEvaluationInput{
		LoopID:        loopRow.ID,
		HeadSha:       headSha,
		LoopVersion:   loopRow.LoopVersion,
		ObservedState: statemachine.LoopState(loopRow.State),
		TriggerEvent:  "check_run.completed",
		Eval:          eval,
		Now:           now,
	}); err != nil {
		return "", "", err
	}

	// Follow-up routing fires on the gate outcome itself, not on whether the
	// state machine transitioned: a blocked gate with no matching transition
	// rule for the loop's current state still needs the agent told why it
	// failed.
	if eval.GatePassed {
		return RuntimeActionNone, "", nil
	}

	failingDetails, _ := payload["failingDetails"].(string)
	outboxID, err := routeFollowUp(ctx, client, loopRow, signal, fmt.Sprintf("CI check %q failed: %s", checkName, failingDetails), now)
	if err != nil {
		return "", "", err
	}
	return RuntimeActionFeedbackFollowUpQueued, outboxID, nil
}

func dispatchReviewThread(ctx context.Context, client *ent.Client, deps Deps, loopRow *ent.Loop, signal *ent.SignalInboxRow, now time.Time) (RuntimeAction, string, error) {
	payload := signal.Payload
	headSha, _ := payload["headSha"].(string)
	if headSha == "" {
		headSha = derefString(loopRow.CurrentHeadSha)
	}
	unresolvedCount := intFromPayload(payload["unresolvedThreadCount"])
	unresolvedSource, _ := payload["unresolvedThreadCountSource"].(string)
	errorCode, _ := payload["errorCode"].(string)

	if unresolvedCount == 0 && errorCode == "" {
		if deps.AuthoritativeThreadSources != nil && !deps.AuthoritativeThreadSources.AcceptOptimisticReviewThreadPass(unresolvedCount, unresolvedSource) {
			slog.Warn("signalinbox: optimistic review-thread pass rejected, untrusted source", "loop_id", loopRow.ID, "signal_id", signal.ID, "source", unresolvedSource)
			return RuntimeActionNone, "", nil
		}
	}

	eval := gates.EvaluateReviewThreadGate(gates.ReviewThreadGateEvaluationInput{
		ErrorCode:             errorCode,
		UnresolvedThreadCount: unresolvedCount,
	})

	if _, err := gates.PersistReviewThreadGateEvaluation(ctx, client, gates.PersistReviewThreadGateEvaluationInput{
		LoopID:                      loopRow.ID,
		HeadSha:                     headSha,
		LoopVersion:                 loopRow.LoopVersion,
		ObservedState:               statemachine.LoopState(loopRow.State),
		TriggerEvent:                signal.CauseType,
		UnresolvedThreadCountSource: unresolvedSource,
		ErrorCode:                   errorCode,
		Eval:                        eval,
		UnresolvedThreadCount:       unresolvedCount,
		Now:                         now,
	}); err != nil {
		return "", "", err
	}

	// As in dispatchCheckRunCompleted: fire on the gate outcome, not on
	// whether the state machine actually transitioned.
	shouldQueueFollowUp := !eval.GatePassed && eval.Status != gates.ReviewThreadStatusTransientError
	if !shouldQueueFollowUp {
		return RuntimeActionNone, "", nil
	}

	feedback, _ := payload["reviewBody"].(string)
	if feedback == "" {
		feedback = fmt.Sprintf("%d unresolved review thread(s) remain", unresolvedCount)
	}
	outboxID, err := routeFollowUp(ctx, client, loopRow, signal, feedback, now)
	if err != nil {
		return "", "", err
	}
	return RuntimeActionFeedbackFollowUpQueued, outboxID, nil
}

// routeFollowUp enqueues an enqueue_fix_task outbox row carrying the
// feedback message, rather than calling the follow-up queuer inline: like
// every other side effect this tick produces, delivery gets the outbox's
// at-least-once retry, backoff, an upsert keyed on the signal id, and
// supersession within the loop's fix_task_enqueue group instead of a synchronous call that is lost if the worker crashes before
// it completes. pkg/queue's worker drains the row and performs the actual
// delivery. Untrusted GitHub content is wrapped in the fixed delimiter
// block before it is persisted to the payload.
func routeFollowUp(ctx context.Context, client *ent.Client, loopRow *ent.Loop, signal *ent.SignalInboxRow, content string, now time.Time) (string, error) {
	row, err := outbox.Enqueue(ctx, client, outbox.EnqueueInput{
		LoopID:        loopRow.ID,
		TransitionSeq: loopRow.LoopVersion,
		ActionType:    outbox.ActionEnqueueFixTask,
		ActionKey:     fmt.Sprintf("signal-inbox:%s:enqueue-fix-task", signal.ID),
		Payload: map[string]any{
			"userId":   loopRow.UserID,
			"threadId": loopRow.ThreadID,
			"text":     WrapUntrustedGithubFeedback(content),
		},
		Now: now,
	})
	if err != nil {
		return "", err
	}
	return row.ID, nil
}

func knownRequiredChecks(ctx context.Context, client *ent.Client, loopID string) []string {
	lastRun, err := client.CIGateRun.Query().
		Where(cigaterun.LoopID(loopID)).
		Order(ent.Desc(cigaterun.FieldCreatedAt)).
		First(ctx)
	if err != nil || lastRun == nil {
		return nil
	}
	return lastRun.RequiredChecks
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intFromPayload(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
