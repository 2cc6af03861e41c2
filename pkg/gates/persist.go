package gates

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sdlcloop/controller/ent"
	"github.com/sdlcloop/controller/ent/carmackreviewgaterun"
	"github.com/sdlcloop/controller/ent/cigaterun"
	"github.com/sdlcloop/controller/ent/deepreviewgaterun"
	"github.com/sdlcloop/controller/ent/finding"
	"github.com/sdlcloop/controller/ent/reviewthreadgaterun"
	"github.com/sdlcloop/controller/pkg/causeid"
	"github.com/sdlcloop/controller/pkg/statemachine"
)

// PersistCIGateEvaluationInput bundles a CI gate evaluation with the loop
// context needed to drive the state machine.
type PersistCIGateEvaluationInput struct {
	LoopID        string
	HeadSha       string
	LoopVersion   int
	ObservedState statemachine.LoopState
	TriggerEvent  string
	Eval          CIGateEvaluation
	Now           time.Time
}

// PersistCIGateEvaluation upserts the CI gate run row and drives the state
// machine: blocked increments the fix-attempt budget via
// ci_gate_blocked; passed remains a no-transition signal at the loop-state
// level (babysitting only leaves on pr_linked/video outcomes), so it is
// recorded but does not itself resolve a transition unless the caller is in
// pr_babysitting, where EventCIGateBlocked/no-event-on-pass applies.
func PersistCIGateEvaluation(ctx context.Context, client *ent.Client, in PersistCIGateEvaluationInput) (statemachine.Result, error) {
	tx, err := client.Tx(ctx)
	if err != nil {
		return statemachine.Result{}, fmt.Errorf("gates: begin tx: %w", err)
	}
	defer tx.Rollback()

	existing, err := tx.CIGateRun.Query().
		Where(cigaterun.LoopID(in.LoopID), cigaterun.HeadSha(in.HeadSha)).
		Only(ctx)

	builder := upsertCIGateRunBuilder(tx, existing, err, in)
	if builder == nil {
		return statemachine.Result{}, fmt.Errorf("gates: query existing ci gate run: %w", err)
	}
	if _, err := builder(ctx); err != nil {
		return statemachine.Result{}, fmt.Errorf("gates: save ci gate run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return statemachine.Result{}, fmt.Errorf("gates: commit: %w", err)
	}

	if in.Eval.Status == CIStatusCapabilityError {
		return statemachine.Result{Outcome: statemachine.OutcomeStaleNoop}, nil
	}

	if in.Eval.GatePassed {
		// Passing CI alone does not resolve a loop-state transition;
		// pr_babysitting only advances on pr_linked/video-capture events.
		return statemachine.Result{Outcome: statemachine.OutcomeUpdated}, nil
	}

	return statemachine.PersistGuardedGateLoopState(ctx, client, statemachine.TransitionInput{
		LoopID:        in.LoopID,
		Event:         statemachine.EventCIGateBlocked,
		Now:           in.Now,
		ObservedState: in.ObservedState,
		HeadSha:       &in.HeadSha,
		LoopVersion:   &in.LoopVersion,
	})
}

func upsertCIGateRunBuilder(tx *ent.Tx, existing *ent.CIGateRun, queryErr error, in PersistCIGateEvaluationInput) func(context.Context) (*ent.CIGateRun, error) {
	switch {
	case ent.IsNotFound(queryErr):
		return tx.CIGateRun.Create().
			SetID(uuid.NewString()).
			SetLoopID(in.LoopID).
			SetHeadSha(in.HeadSha).
			SetLoopVersion(in.LoopVersion).
			SetStatus(cigaterun.Status(in.Eval.Status)).
			SetGatePassed(in.Eval.GatePassed).
			SetRequiredChecks(in.Eval.RequiredChecks).
			SetFailingRequiredChecks(in.Eval.FailingRequiredChecks).
			SetNillableRequiredCheckSource(optionalCheckSource(in.Eval.RequiredCheckSource)).
			SetTriggerEvent(in.TriggerEvent).
			SetCreatedAt(in.Now).
			SetUpdatedAt(in.Now).
			Save
	case queryErr != nil:
		return nil
	default:
		return tx.CIGateRun.UpdateOne(existing).
			SetLoopVersion(in.LoopVersion).
			SetStatus(cigaterun.Status(in.Eval.Status)).
			SetGatePassed(in.Eval.GatePassed).
			SetRequiredChecks(in.Eval.RequiredChecks).
			SetFailingRequiredChecks(in.Eval.FailingRequiredChecks).
			SetNillableRequiredCheckSource(optionalCheckSource(in.Eval.RequiredCheckSource)).
			SetTriggerEvent(in.TriggerEvent).
			SetUpdatedAt(in.Now).
			Save
	}
}

func optionalCheckSource(s RequiredCheckSource) *cigaterun.RequiredCheckSource {
	if s == "" {
		return nil
	}
	v := cigaterun.RequiredCheckSource(s)
	return &v
}

// PersistReviewThreadGateEvaluationInput mirrors PersistCIGateEvaluationInput
// for the review-thread gate.
type PersistReviewThreadGateEvaluationInput struct {
	LoopID                     string
	HeadSha                    string
	LoopVersion                int
	ObservedState              statemachine.LoopState
	TriggerEvent               string
	UnresolvedThreadCountSource string
	ErrorCode                  string
	Eval                       ReviewThreadGateEvaluation
	UnresolvedThreadCount      int
	Now                        time.Time
}

// PersistReviewThreadGateEvaluation upserts the review-thread gate run row
// and, on a blocked result, drives the state machine via
// review_thread_gate_blocked. A transient_error result persists the row but
// issues no transition — the next poll tick retries.
func PersistReviewThreadGateEvaluation(ctx context.Context, client *ent.Client, in PersistReviewThreadGateEvaluationInput) (statemachine.Result, error) {
	tx, err := client.Tx(ctx)
	if err != nil {
		return statemachine.Result{}, fmt.Errorf("gates: begin tx: %w", err)
	}
	defer tx.Rollback()

	existing, err := tx.ReviewThreadGateRun.Query().
		Where(reviewthreadgaterun.LoopID(in.LoopID), reviewthreadgaterun.HeadSha(in.HeadSha)).
		Only(ctx)

	var save func(context.Context) (*ent.ReviewThreadGateRun, error)
	switch {
	case ent.IsNotFound(err):
		c := tx.ReviewThreadGateRun.Create().
			SetID(uuid.NewString()).
			SetLoopID(in.LoopID).
			SetHeadSha(in.HeadSha).
			SetLoopVersion(in.LoopVersion).
			SetStatus(reviewthreadgaterun.Status(in.Eval.Status)).
			SetGatePassed(in.Eval.GatePassed).
			SetUnresolvedThreadCount(in.UnresolvedThreadCount).
			SetTriggerEvent(in.TriggerEvent).
			SetCreatedAt(in.Now).
			SetUpdatedAt(in.Now)
		if in.UnresolvedThreadCountSource != "" {
			c = c.SetUnresolvedThreadCountSource(in.UnresolvedThreadCountSource)
		}
		if in.ErrorCode != "" {
			c = c.SetErrorCode(in.ErrorCode)
		}
		save = c.Save
	case err != nil:
		return statemachine.Result{}, fmt.Errorf("gates: query existing review thread gate run: %w", err)
	default:
		u := tx.ReviewThreadGateRun.UpdateOne(existing).
			SetLoopVersion(in.LoopVersion).
			SetStatus(reviewthreadgaterun.Status(in.Eval.Status)).
			SetGatePassed(in.Eval.GatePassed).
			SetUnresolvedThreadCount(in.UnresolvedThreadCount).
			SetTriggerEvent(in.TriggerEvent).
			SetUpdatedAt(in.Now)
		if in.UnresolvedThreadCountSource != "" {
			u = u.SetUnresolvedThreadCountSource(in.UnresolvedThreadCountSource)
		}
		if in.ErrorCode != "" {
			u = u.SetErrorCode(in.ErrorCode)
		}
		save = u.Save
	}

	if _, err := save(ctx); err != nil {
		return statemachine.Result{}, fmt.Errorf("gates: save review thread gate run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return statemachine.Result{}, fmt.Errorf("gates: commit: %w", err)
	}

	if in.Eval.Status == ReviewThreadStatusTransientError || in.Eval.GatePassed {
		return statemachine.Result{Outcome: statemachine.OutcomeUpdated}, nil
	}

	return statemachine.PersistGuardedGateLoopState(ctx, client, statemachine.TransitionInput{
		LoopID:        in.LoopID,
		Event:         statemachine.EventReviewThreadGateBlocked,
		Now:           in.Now,
		ObservedState: in.ObservedState,
		HeadSha:       &in.HeadSha,
		LoopVersion:   &in.LoopVersion,
	})
}

// PersistLLMReviewGateEvaluationInput bundles a deep-review or
// Carmack-review gate evaluation with the loop context.
type PersistLLMReviewGateEvaluationInput struct {
	GateKind      causeid.GateKind
	LoopID        string
	HeadSha       string
	LoopVersion   int
	ObservedState statemachine.LoopState
	TriggerEvent  string
	Status        LLMReviewGateStatus
	GatePassed    bool
	Findings      []NormalizedFinding
	Now           time.Time
}

// PersistLLMReviewGateEvaluation upserts the gate-run row for gateKind,
// replaces the finding set at (loopId, headSha, gateKind) with the
// normalized findings (deleting all prior rows first — invalid_output
// clears findings entirely since Findings is empty in that case), and
// drives the state machine: blocked or invalid_output both increment the
// fix-attempt budget via the gate's *_blocked event; passed advances review.
func PersistLLMReviewGateEvaluation(ctx context.Context, client *ent.Client, in PersistLLMReviewGateEvaluationInput) (statemachine.Result, error) {
	tx, err := client.Tx(ctx)
	if err != nil {
		return statemachine.Result{}, fmt.Errorf("gates: begin tx: %w", err)
	}
	defer tx.Rollback()

	errorCode := ""
	if in.Status == LLMReviewStatusInvalidOutput {
		errorCode = fmt.Sprintf("%s_invalid_output", in.GateKind)
	}

	if err := saveLLMReviewGateRun(ctx, tx, in, errorCode); err != nil {
		return statemachine.Result{}, err
	}

	if _, err := tx.Finding.Delete().
		Where(finding.LoopID(in.LoopID), finding.HeadSha(in.HeadSha), finding.GateKindEQ(finding.GateKind(in.GateKind))).
		Exec(ctx); err != nil {
		return statemachine.Result{}, fmt.Errorf("gates: clear prior findings: %w", err)
	}
	for _, f := range in.Findings {
		c := tx.Finding.Create().
			SetID(uuid.NewString()).
			SetLoopID(in.LoopID).
			SetHeadSha(in.HeadSha).
			SetGateKind(finding.GateKind(in.GateKind)).
			SetStableFindingID(f.ResolvedStableFindingID).
			SetSeverity(finding.Severity(f.Severity)).
			SetCategory(f.Category).
			SetTitle(f.Title).
			SetDetail(f.Detail).
			SetIsBlocking(f.IsBlocking).
			SetCreatedAt(in.Now)
		if f.SuggestedFix != nil {
			c = c.SetSuggestedFix(*f.SuggestedFix)
		}
		if _, err := c.Save(ctx); err != nil {
			return statemachine.Result{}, fmt.Errorf("gates: save finding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return statemachine.Result{}, fmt.Errorf("gates: commit: %w", err)
	}

	event := blockedEventFor(in.GateKind)
	if in.GatePassed {
		event = passedEventFor(in.GateKind)
	}

	return statemachine.PersistGuardedGateLoopState(ctx, client, statemachine.TransitionInput{
		LoopID:        in.LoopID,
		Event:         event,
		Now:           in.Now,
		ObservedState: in.ObservedState,
		HeadSha:       &in.HeadSha,
		LoopVersion:   &in.LoopVersion,
	})
}

func saveLLMReviewGateRun(ctx context.Context, tx *ent.Tx, in PersistLLMReviewGateEvaluationInput, errorCode string) error {
	invalidOutput := in.Status == LLMReviewStatusInvalidOutput

	switch in.GateKind {
	case causeid.GateDeepReview:
		existing, err := tx.DeepReviewGateRun.Query().
			Where(deepreviewgaterun.LoopID(in.LoopID), deepreviewgaterun.HeadSha(in.HeadSha)).
			Only(ctx)
		switch {
		case ent.IsNotFound(err):
			c := tx.DeepReviewGateRun.Create().
				SetID(uuid.NewString()).
				SetLoopID(in.LoopID).
				SetHeadSha(in.HeadSha).
				SetLoopVersion(in.LoopVersion).
				SetStatus(deepreviewgaterun.Status(in.Status)).
				SetGatePassed(in.GatePassed).
				SetInvalidOutput(invalidOutput).
				SetTriggerEvent(in.TriggerEvent).
				SetCreatedAt(in.Now).
				SetUpdatedAt(in.Now)
			if errorCode != "" {
				c = c.SetErrorCode(errorCode)
			}
			_, err = c.Save(ctx)
		case err != nil:
			return fmt.Errorf("gates: query existing deep review gate run: %w", err)
		default:
			u := tx.DeepReviewGateRun.UpdateOne(existing).
				SetLoopVersion(in.LoopVersion).
				SetStatus(deepreviewgaterun.Status(in.Status)).
				SetGatePassed(in.GatePassed).
				SetInvalidOutput(invalidOutput).
				SetTriggerEvent(in.TriggerEvent).
				SetUpdatedAt(in.Now)
			if errorCode != "" {
				u = u.SetErrorCode(errorCode)
			}
			_, err = u.Save(ctx)
		}
		if err != nil {
			return fmt.Errorf("gates: save deep review gate run: %w", err)
		}
		return nil

	case causeid.GateCarmackReview:
		existing, err := tx.CarmackReviewGateRun.Query().
			Where(carmackreviewgaterun.LoopID(in.LoopID), carmackreviewgaterun.HeadSha(in.HeadSha)).
			Only(ctx)
		switch {
		case ent.IsNotFound(err):
			c := tx.CarmackReviewGateRun.Create().
				SetID(uuid.NewString()).
				SetLoopID(in.LoopID).
				SetHeadSha(in.HeadSha).
				SetLoopVersion(in.LoopVersion).
				SetStatus(carmackreviewgaterun.Status(in.Status)).
				SetGatePassed(in.GatePassed).
				SetInvalidOutput(invalidOutput).
				SetTriggerEvent(in.TriggerEvent).
				SetCreatedAt(in.Now).
				SetUpdatedAt(in.Now)
			if errorCode != "" {
				c = c.SetErrorCode(errorCode)
			}
			_, err = c.Save(ctx)
		case err != nil:
			return fmt.Errorf("gates: query existing carmack review gate run: %w", err)
		default:
			u := tx.CarmackReviewGateRun.UpdateOne(existing).
				SetLoopVersion(in.LoopVersion).
				SetStatus(carmackreviewgaterun.Status(in.Status)).
				SetGatePassed(in.GatePassed).
				SetInvalidOutput(invalidOutput).
				SetTriggerEvent(in.TriggerEvent).
				SetUpdatedAt(in.Now)
			if errorCode != "" {
				u = u.SetErrorCode(errorCode)
			}
			_, err = u.Save(ctx)
		}
		if err != nil {
			return fmt.Errorf("gates: save carmack review gate run: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("gates: unknown gate kind %q", in.GateKind)
	}
}

func blockedEventFor(k causeid.GateKind) statemachine.TransitionEvent {
	if k == causeid.GateCarmackReview {
		return statemachine.EventCarmackReviewGateBlocked
	}
	return statemachine.EventDeepReviewGateBlocked
}

func passedEventFor(k causeid.GateKind) statemachine.TransitionEvent {
	if k == causeid.GateCarmackReview {
		return statemachine.EventCarmackReviewGatePassed
	}
	return statemachine.EventDeepReviewGatePassed
}
