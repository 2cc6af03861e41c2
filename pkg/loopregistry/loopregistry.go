// Package loopregistry implements the control-plane operations: enrolling
// a new loop, looking up the active loop for a PR or a chat thread,
// approving a plan artifact, and manually stopping a loop (which cancels
// its pending/running outbox work).
package loopregistry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sdlcloop/controller/ent"
	"github.com/sdlcloop/controller/ent/loop"
	"github.com/sdlcloop/controller/ent/outboxrow"
	"github.com/sdlcloop/controller/pkg/artifacts"
)

var activeStates = []loop.State{
	loop.StatePlanning, loop.StateImplementing, loop.StateReviewing,
	loop.StateUiTesting, loop.StatePrBabysitting,
	loop.StateEnrolled, loop.StateGatesRunning, loop.StateVideoPending,
	loop.StateHumanReviewReady, loop.StateVideoDegradedReady,
	loop.StateBlockedOnAgentFixes, loop.StateBlockedOnCi,
	loop.StateBlockedOnReviewThreads, loop.StateBlockedOnHumanFeedback,
}

// ErrActiveLoopExists is returned by Enroll when (userId, threadId) already
// has a row in an active state; re-enrollment must wait for that loop to
// reach a terminal state first.
var ErrActiveLoopExists = fmt.Errorf("loopregistry: active loop already exists for user/thread")

// EnrollInput describes a new loop to create.
type EnrollInput struct {
	UserID             string
	RepoFullName       string
	PRNumber           *int
	ThreadID           string
	CurrentHeadSha     *string
	PlanApprovalPolicy string // defaults to "auto"
	MaxFixAttempts     int    // defaults to 3
	Now                time.Time
}

// Enroll creates a fresh loop row (and its lease row) in the planning
// state. Re-enrollment always creates a new row; it never reactivates a
// terminal one.
func Enroll(ctx context.Context, client *ent.Client, in EnrollInput) (*ent.Loop, error) {
	tx, err := client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("loopregistry: begin tx: %w", err)
	}
	defer tx.Rollback()

	// Pre-check for a friendly error; the partial unique index on
	// (user_id, thread_id) over non-terminal states is the authoritative
	// guard against a race with a concurrent Enroll for the same thread.
	exists, err := tx.Loop.Query().
		Where(loop.UserID(in.UserID), loop.ThreadID(in.ThreadID), loop.StateIn(activeStates...)).
		Exist(ctx)
	if err != nil {
		return nil, fmt.Errorf("loopregistry: check existing active loop: %w", err)
	}
	if exists {
		return nil, ErrActiveLoopExists
	}

	create := tx.Loop.Create().
		SetID(uuid.NewString()).
		SetUserID(in.UserID).
		SetRepoFullName(in.RepoFullName).
		SetThreadID(in.ThreadID).
		SetState(loop.StatePlanning).
		SetCreatedAt(in.Now).
		SetUpdatedAt(in.Now)
	if in.PRNumber != nil {
		create = create.SetPrNumber(*in.PRNumber)
	}
	if in.CurrentHeadSha != nil {
		create = create.SetCurrentHeadSha(*in.CurrentHeadSha)
	}
	if in.PlanApprovalPolicy != "" {
		create = create.SetPlanApprovalPolicy(loop.PlanApprovalPolicy(in.PlanApprovalPolicy))
	}
	if in.MaxFixAttempts > 0 {
		create = create.SetMaxFixAttempts(in.MaxFixAttempts)
	}

	row, err := create.Save(ctx)
	if err != nil {
		if ent.IsConstraintError(err) {
			// Lost the race against a concurrent Enroll for this thread;
			// the unique index caught what the pre-check couldn't.
			return nil, ErrActiveLoopExists
		}
		return nil, fmt.Errorf("loopregistry: create loop: %w", err)
	}

	if _, err := tx.LoopLease.Create().
		SetLoopID(row.ID).
		SetLeaseEpoch(0).
		Save(ctx); err != nil {
		return nil, fmt.Errorf("loopregistry: create lease: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("loopregistry: commit: %w", err)
	}
	return row, nil
}

// GetActiveLoopForPR returns the most recently created active loop for
// (repoFullName, prNumber), or nil if none.
func GetActiveLoopForPR(ctx context.Context, client *ent.Client, repoFullName string, prNumber int) (*ent.Loop, error) {
	row, err := client.Loop.Query().
		Where(loop.RepoFullName(repoFullName), loop.PrNumber(prNumber), loop.StateIn(activeStates...)).
		Order(ent.Desc(loop.FieldCreatedAt)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loopregistry: query active loop for PR: %w", err)
	}
	return row, nil
}

// GetActiveLoopForThread returns the at-most-one active loop for
// (userId, threadId), or nil if none.
func GetActiveLoopForThread(ctx context.Context, client *ent.Client, userID, threadID string) (*ent.Loop, error) {
	row, err := client.Loop.Query().
		Where(loop.UserID(userID), loop.ThreadID(threadID), loop.StateIn(activeStates...)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loopregistry: query active loop for thread: %w", err)
	}
	return row, nil
}

// ApprovePlan approves the named planning artifact and records the
// approving user.
func ApprovePlan(ctx context.Context, client *ent.Client, loopID, artifactID, userID string, now time.Time) (*ent.PhaseArtifact, error) {
	return artifacts.ApprovePlanArtifactForLoop(ctx, client, artifactID, userID, now)
}

// ManualStop atomically transitions the loop to stopped and cancels every
// pending/running outbox row for it with canceledReason=canceled_due_to_stop.
// In-flight side effects already running elsewhere are not interrupted;
// their eventual complete() call will find the row no longer running and
// is ignored by outbox.Complete's ownership check.
func ManualStop(ctx context.Context, client *ent.Client, loopID, reason string, now time.Time) error {
	tx, err := client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("loopregistry: begin tx: %w", err)
	}
	defer tx.Rollback()

	row, err := tx.Loop.Get(ctx, loopID)
	if err != nil {
		return fmt.Errorf("loopregistry: load loop: %w", err)
	}

	if _, err := tx.Loop.UpdateOne(row).
		Where(loop.StateEQ(row.State)).
		SetState(loop.StateStopped).
		SetStopReason(reason).
		SetUpdatedAt(now).
		Save(ctx); err != nil {
		if ent.IsNotFound(err) || ent.IsConstraintError(err) {
			return nil // raced with a concurrent terminal transition; nothing to do
		}
		return fmt.Errorf("loopregistry: set stopped: %w", err)
	}

	pending, err := tx.OutboxRow.Query().
		Where(outboxrow.LoopID(loopID), outboxrow.StatusIn(outboxrow.StatusPending, outboxrow.StatusRunning)).
		All(ctx)
	if err != nil {
		return fmt.Errorf("loopregistry: query pending outbox rows: %w", err)
	}
	for _, p := range pending {
		if _, err := tx.OutboxRow.UpdateOne(p).
			SetStatus(outboxrow.StatusCanceled).
			SetCanceledReason("canceled_due_to_stop").
			SetUpdatedAt(now).
			Save(ctx); err != nil {
			return fmt.Errorf("loopregistry: cancel outbox row %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}
