package statemachine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sdlcloop/controller/ent"
	"github.com/sdlcloop/controller/ent/loop"
)

// Outcome is the deterministic result of a guarded gate-loop-state
// persistence attempt. Callers never retry StaleNoop.
type Outcome string

const (
	OutcomeUpdated     Outcome = "updated"
	OutcomeTerminalNoop Outcome = "terminal_noop"
	OutcomeStaleNoop    Outcome = "stale_noop"
)

// TransitionInput carries everything persistGuardedGateLoopState needs
// beyond the loop row itself.
type TransitionInput struct {
	LoopID  string
	Event   TransitionEvent
	Now     time.Time

	// ObservedState is the state the caller read before deciding to
	// transition; the row-state guard requires the stored state still
	// matches it.
	ObservedState LoopState

	// HeadSha/LoopVersion are optional; when either is supplied the
	// head/version guard is enforced in addition to the row-state guard.
	HeadSha     *string
	LoopVersion *int
}

// Result reports what happened and, on OutcomeUpdated, the resulting state.
type Result struct {
	Outcome  Outcome
	NextState LoopState
}

// PersistGuardedGateLoopState resolves the next state for (observed state,
// event) and, inside a single transaction, CAS-updates the loop row iff
// both the row-state guard and (when head/version were supplied) the
// head/version guard hold. It is the single write path every gate
// evaluator and the signal-inbox tick route through, so stale or raced
// signals can never unblock a PR.
func PersistGuardedGateLoopState(ctx context.Context, client *ent.Client, in TransitionInput) (Result, error) {
	logger := slog.With("loop_id", in.LoopID, "event", in.Event)

	tx, err := client.Tx(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("statemachine: begin tx: %w", err)
	}
	defer tx.Rollback()

	row, err := tx.Loop.Get(ctx, in.LoopID)
	if err != nil {
		return Result{}, fmt.Errorf("statemachine: load loop: %w", err)
	}

	currentState := LoopState(row.State)
	if IsTerminal(currentState) {
		logger.Warn("transition attempted against terminal loop", "state", currentState)
		return Result{Outcome: OutcomeTerminalNoop}, nil
	}

	nextState, matched := ResolveNextState(currentState, in.Event)
	if !matched {
		logger.Warn("no transition rule matched, stale no-op", "state", currentState)
		return Result{Outcome: OutcomeStaleNoop}, nil
	}

	if currentState != in.ObservedState {
		logger.Warn("row-state guard failed", "observed", in.ObservedState, "actual", currentState)
		return Result{Outcome: OutcomeStaleNoop}, nil
	}

	if in.HeadSha != nil || in.LoopVersion != nil {
		if in.LoopVersion == nil {
			return Result{}, fmt.Errorf("statemachine: headSha supplied without loopVersion")
		}
		if row.LoopVersion > *in.LoopVersion {
			logger.Warn("head/version guard failed: stored version ahead of caller", "stored_version", row.LoopVersion, "provided_version", *in.LoopVersion)
			return Result{Outcome: OutcomeStaleNoop}, nil
		}
		sameVersion := row.LoopVersion == *in.LoopVersion
		if sameVersion && row.CurrentHeadSha != nil && in.HeadSha != nil && *row.CurrentHeadSha != *in.HeadSha {
			logger.Warn("head/version guard failed: head sha mismatch at same version", "stored_sha", *row.CurrentHeadSha, "provided_sha", *in.HeadSha)
			return Result{Outcome: OutcomeStaleNoop}, nil
		}
	}

	newFixAttemptCount := row.FixAttemptCount
	if IncrementsFixAttempt(in.Event) {
		newFixAttemptCount++
	}
	nextState = ApplyFixAttemptBudget(in.Event, nextState, newFixAttemptCount, row.MaxFixAttempts)

	update := tx.Loop.UpdateOneID(in.LoopID).
		Where(loop.StateEQ(row.State)).
		SetState(loop.State(nextState)).
		SetFixAttemptCount(newFixAttemptCount).
		SetUpdatedAt(in.Now)
	if in.HeadSha != nil {
		update = update.SetCurrentHeadSha(*in.HeadSha)
	}
	if in.LoopVersion != nil {
		update = update.SetLoopVersion(*in.LoopVersion)
	}

	if _, err := update.Save(ctx); err != nil {
		if ent.IsNotFound(err) || ent.IsConstraintError(err) {
			logger.Warn("CAS update raced away", "error", err)
			return Result{Outcome: OutcomeStaleNoop}, nil
		}
		return Result{}, fmt.Errorf("statemachine: CAS update loop state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("statemachine: commit: %w", err)
	}

	return Result{Outcome: OutcomeUpdated, NextState: nextState}, nil
}
