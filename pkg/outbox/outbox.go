// Package outbox implements the transactional outbox: enqueue with
// supersession of interchangeable pending/running siblings, lease-scoped
// claim ordered by transitionSeq, and exponential-backoff completion with
// an append-only attempt ledger.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/sdlcloop/controller/ent"
	"github.com/sdlcloop/controller/ent/looplease"
	"github.com/sdlcloop/controller/ent/outboxattempt"
	"github.com/sdlcloop/controller/ent/outboxrow"
)

const maxErrorMessageLen = 1000

// EnqueueInput describes one outbox action to admit.
type EnqueueInput struct {
	LoopID        string
	TransitionSeq int
	ActionType    ActionType
	ActionKey     string
	Payload       map[string]any
	Now           time.Time
}

// Enqueue upserts the row by (loopId, actionKey) to a fresh pending state
// and cancels every other pending/running row in the same supersession
// group whose transitionSeq <= the new row's, all inside one transaction,
// so no worker can observe the new row as claimable before its
// now-superseded siblings are canceled.
func Enqueue(ctx context.Context, client *ent.Client, in EnqueueInput) (*ent.OutboxRow, error) {
	group := SupersessionGroupFor(in.ActionType)

	tx, err := client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("outbox: begin tx: %w", err)
	}
	defer tx.Rollback()

	existing, err := tx.OutboxRow.Query().
		Where(outboxrow.LoopID(in.LoopID), outboxrow.ActionKey(in.ActionKey)).
		Only(ctx)
	var row *ent.OutboxRow
	switch {
	case ent.IsNotFound(err):
		row, err = tx.OutboxRow.Create().
			SetID(uuid.NewString()).
			SetLoopID(in.LoopID).
			SetTransitionSeq(in.TransitionSeq).
			SetActionType(outboxrow.ActionType(in.ActionType)).
			SetSupersessionGroup(outboxrow.SupersessionGroup(group)).
			SetActionKey(in.ActionKey).
			SetPayload(in.Payload).
			SetStatus(outboxrow.StatusPending).
			SetAttemptCount(0).
			SetCreatedAt(in.Now).
			SetUpdatedAt(in.Now).
			Save(ctx)
		if err != nil {
			return nil, fmt.Errorf("outbox: create row: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("outbox: query existing row: %w", err)
	default:
		row, err = tx.OutboxRow.UpdateOne(existing).
			SetTransitionSeq(in.TransitionSeq).
			SetPayload(in.Payload).
			SetStatus(outboxrow.StatusPending).
			SetAttemptCount(0).
			ClearNextRetryAt().
			ClearClaimedBy().
			ClearClaimedAt().
			ClearCompletedAt().
			ClearLastErrorClass().
			ClearLastErrorCode().
			ClearLastErrorMessage().
			ClearSupersededByOutboxID().
			ClearCanceledReason().
			SetUpdatedAt(in.Now).
			Save(ctx)
		if err != nil {
			return nil, fmt.Errorf("outbox: refresh row: %w", err)
		}
	}

	siblings, err := tx.OutboxRow.Query().
		Where(
			outboxrow.LoopID(in.LoopID),
			outboxrow.SupersessionGroupEQ(outboxrow.SupersessionGroup(group)),
			outboxrow.IDNEQ(row.ID),
			outboxrow.StatusIn(outboxrow.StatusPending, outboxrow.StatusRunning),
			outboxrow.TransitionSeqLTE(in.TransitionSeq),
		).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("outbox: query superseded siblings: %w", err)
	}
	for _, sib := range siblings {
		if _, err := tx.OutboxRow.UpdateOne(sib).
			SetStatus(outboxrow.StatusCanceled).
			SetCanceledReason("superseded_by_newer_transition").
			SetSupersededByOutboxID(row.ID).
			SetUpdatedAt(in.Now).
			Save(ctx); err != nil {
			return nil, fmt.Errorf("outbox: cancel superseded row %s: %w", sib.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("outbox: commit: %w", err)
	}
	return row, nil
}

// ClaimInput scopes a claim attempt to a lease and optional action-type
// allowlist.
type ClaimInput struct {
	LoopID            string
	LeaseOwner        string
	LeaseEpoch        int
	AllowedActionTypes []ActionType
	Now               time.Time
}

var ErrLeaseInvalid = fmt.Errorf("outbox: lease not held by caller or expired")

// Claim verifies the caller's lease is current, then CAS-claims the oldest
// eligible pending row (ordered transitionSeq, createdAt) into running,
// incrementing attemptCount. Returns (nil, nil) when nothing is claimable
// or the claim raced away — both are legitimate "try again later" results,
// not errors.
func Claim(ctx context.Context, client *ent.Client, in ClaimInput) (*ent.OutboxRow, error) {
	lease, err := client.LoopLease.Query().Where(looplease.LoopID(in.LoopID)).Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrLeaseInvalid
		}
		return nil, fmt.Errorf("outbox: load lease: %w", err)
	}
	if lease.LeaseOwner == nil || *lease.LeaseOwner != in.LeaseOwner ||
		lease.LeaseEpoch != in.LeaseEpoch ||
		lease.LeaseExpiresAt == nil || !lease.LeaseExpiresAt.After(in.Now) {
		return nil, ErrLeaseInvalid
	}

	tx, err := client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("outbox: begin tx: %w", err)
	}
	defer tx.Rollback()

	q := tx.OutboxRow.Query().
		Where(
			outboxrow.LoopID(in.LoopID),
			outboxrow.StatusEQ(outboxrow.StatusPending),
		).
		Order(ent.Asc(outboxrow.FieldTransitionSeq), ent.Asc(outboxrow.FieldCreatedAt)).
		ForUpdate(sql.WithLockAction(sql.SkipLocked))
	if len(in.AllowedActionTypes) > 0 {
		types := make([]outboxrow.ActionType, len(in.AllowedActionTypes))
		for i, at := range in.AllowedActionTypes {
			types[i] = outboxrow.ActionType(at)
		}
		q = q.Where(outboxrow.ActionTypeIn(types...))
	}

	candidate, err := q.First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("outbox: find claimable row: %w", err)
	}
	if candidate.NextRetryAt != nil && candidate.NextRetryAt.After(in.Now) {
		return nil, nil
	}

	claimed, err := tx.OutboxRow.UpdateOne(candidate).
		Where(outboxrow.StatusEQ(outboxrow.StatusPending)).
		SetStatus(outboxrow.StatusRunning).
		SetClaimedBy(in.LeaseOwner).
		SetClaimedAt(in.Now).
		SetAttemptCount(candidate.AttemptCount + 1).
		SetUpdatedAt(in.Now).
		Save(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil // raced away
		}
		return nil, fmt.Errorf("outbox: CAS claim: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("outbox: commit claim: %w", err)
	}
	return claimed, nil
}

// CompleteInput describes the outcome of one claimed attempt.
type CompleteInput struct {
	OutboxID      string
	LeaseOwner    string
	Succeeded     bool
	Retriable     bool
	ErrorClass    string
	ErrorCode     string
	ErrorMessage  string
	MaxAttempts   int
	BaseBackoffMs int64
	MaxBackoffMs  int64
	Now           time.Time
}

var (
	ErrOutboxNotFound           = fmt.Errorf("outbox: row not found")
	ErrNotRunningOrNotOwner     = fmt.Errorf("outbox: row not running or not owned by caller")
)

func truncate(s string) string {
	if len(s) <= maxErrorMessageLen {
		return s
	}
	return strings.TrimSpace(s[:maxErrorMessageLen])
}

func defaultInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func defaultInt64(v, fallback int64) int64 {
	if v <= 0 {
		return fallback
	}
	return v
}

// Complete refuses unless the row is running and owned by the caller, then
// either marks it completed or schedules/exhausts a retry, appending an
// immutable attempt record either way.
func Complete(ctx context.Context, client *ent.Client, in CompleteInput) error {
	maxAttempts := defaultInt(in.MaxAttempts, 5)
	baseBackoffMs := defaultInt64(in.BaseBackoffMs, 30_000)
	maxBackoffMs := defaultInt64(in.MaxBackoffMs, 1_800_000)

	tx, err := client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("outbox: begin tx: %w", err)
	}
	defer tx.Rollback()

	row, err := tx.OutboxRow.Get(ctx, in.OutboxID)
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrOutboxNotFound
		}
		return fmt.Errorf("outbox: load row: %w", err)
	}
	if row.Status != outboxrow.StatusRunning || row.ClaimedBy == nil || *row.ClaimedBy != in.LeaseOwner {
		return ErrNotRunningOrNotOwner
	}

	attemptUpdate := tx.OutboxAttempt.Create().
		SetID(uuid.NewString()).
		SetOutboxID(row.ID).
		SetAttemptNumber(row.AttemptCount).
		SetCreatedAt(in.Now)

	if in.Succeeded {
		if _, err := tx.OutboxRow.UpdateOne(row).
			SetStatus(outboxrow.StatusCompleted).
			SetCompletedAt(in.Now).
			SetUpdatedAt(in.Now).
			Save(ctx); err != nil {
			return fmt.Errorf("outbox: mark completed: %w", err)
		}
		if _, err := attemptUpdate.SetStatus(outboxattempt.StatusCompleted).Save(ctx); err != nil {
			return fmt.Errorf("outbox: append completed attempt: %w", err)
		}
		return tx.Commit()
	}

	errMsg := truncate(in.ErrorMessage)
	willRetry := in.Retriable && row.AttemptCount < maxAttempts
	rowUpdate := tx.OutboxRow.UpdateOne(row).
		SetLastErrorClass(in.ErrorClass).
		SetLastErrorCode(in.ErrorCode).
		SetLastErrorMessage(errMsg).
		SetUpdatedAt(in.Now)

	if willRetry {
		retryAt := ComputeBackoff(in.Now, row.AttemptCount, baseBackoffMs, maxBackoffMs)
		rowUpdate = rowUpdate.SetStatus(outboxrow.StatusPending).SetNextRetryAt(retryAt)
		attemptUpdate = attemptUpdate.SetStatus(outboxattempt.StatusRetryScheduled).SetRetryAt(retryAt)
	} else {
		rowUpdate = rowUpdate.SetStatus(outboxrow.StatusFailed)
		attemptUpdate = attemptUpdate.SetStatus(outboxattempt.StatusFailed)
	}
	attemptUpdate = attemptUpdate.
		SetErrorClass(in.ErrorClass).
		SetErrorCode(in.ErrorCode).
		SetErrorMessage(errMsg)

	if _, err := rowUpdate.Save(ctx); err != nil {
		return fmt.Errorf("outbox: update failed/retry row: %w", err)
	}
	if _, err := attemptUpdate.Save(ctx); err != nil {
		return fmt.Errorf("outbox: append failure attempt: %w", err)
	}

	slog.Warn("outbox attempt did not succeed", "outbox_id", row.ID, "will_retry", willRetry, "error_class", in.ErrorClass, "error_code", in.ErrorCode)

	return tx.Commit()
}
