// Package webhookclaim implements exactly-once admission of external
// webhook deliveries: claim with a configurable TTL and stale-steal,
// idempotent completion, and graceful release.
package webhookclaim

import (
	"context"
	"fmt"
	"time"

	"github.com/sdlcloop/controller/ent"
	"github.com/sdlcloop/controller/ent/webhookdelivery"
)

// DefaultTTL is the claim lifetime used when a caller does not supply one
// (zero); a claim older than this with no completion is eligible for
// stale-steal by another worker.
const DefaultTTL = 5 * time.Minute

// Outcome is the deterministic result of a claim attempt.
type Outcome string

const (
	OutcomeClaimedNew       Outcome = "claimed_new"
	OutcomeAlreadyCompleted Outcome = "already_completed"
	OutcomeInProgressFresh  Outcome = "in_progress_fresh"
	OutcomeStaleStolen      Outcome = "stale_stolen"
)

// ShouldProcess reports whether the caller owns the claim and must process
// the delivery; only claimed_new and stale_stolen are true.
func (o Outcome) ShouldProcess() bool {
	return o == OutcomeClaimedNew || o == OutcomeStaleStolen
}

// HTTPStatus maps the outcome to the response code a webhook receiver
// returns to the sending partner: already_completed is 200 (nothing to
// retry); every other outcome is 202, since even in_progress_fresh means
// another worker is already handling it and the partner should not retry
// immediately but the delivery itself was accepted.
func (o Outcome) HTTPStatus() int {
	if o == OutcomeAlreadyCompleted {
		return 200
	}
	return 202
}

// ClaimResult reports the outcome and, on success, the claimed row.
type ClaimResult struct {
	Outcome Outcome
	Row     *ent.WebhookDelivery
}

// Claim admits deliveryId under claimantToken. A delivery never seen before
// is inserted fresh; one already completed is rejected outright; one
// claimed by a still-fresh TTL is rejected as in-progress; one whose TTL
// has expired without completion is stolen via a CAS update guarded on the
// row's current claimant_token, so two racing stealers can't both succeed.
// ttl of zero falls back to DefaultTTL.
func Claim(ctx context.Context, client *ent.Client, deliveryID, claimantToken, eventType string, ttl time.Duration, now time.Time) (ClaimResult, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	existing, err := client.WebhookDelivery.Get(ctx, deliveryID)
	switch {
	case ent.IsNotFound(err):
		row, err := client.WebhookDelivery.Create().
			SetID(deliveryID).
			SetClaimantToken(claimantToken).
			SetClaimExpiresAt(now.Add(ttl)).
			SetEventType(eventType).
			SetCreatedAt(now).
			SetUpdatedAt(now).
			Save(ctx)
		if err != nil {
			if ent.IsConstraintError(err) {
				// Lost the insert race; fall through to a fresh read so the
				// caller still gets a deterministic outcome for this delivery.
				return reevaluate(ctx, client, deliveryID, now)
			}
			return ClaimResult{}, fmt.Errorf("webhookclaim: create row: %w", err)
		}
		return ClaimResult{Outcome: OutcomeClaimedNew, Row: row}, nil

	case err != nil:
		return ClaimResult{}, fmt.Errorf("webhookclaim: load row: %w", err)

	default:
		return evaluateExisting(ctx, client, existing, claimantToken, ttl, now)
	}
}

func reevaluate(ctx context.Context, client *ent.Client, deliveryID string, now time.Time) (ClaimResult, error) {
	row, err := client.WebhookDelivery.Get(ctx, deliveryID)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("webhookclaim: reload after race: %w", err)
	}
	return ClaimResult{Outcome: OutcomeInProgressFresh, Row: row}, nil
}

func evaluateExisting(ctx context.Context, client *ent.Client, existing *ent.WebhookDelivery, claimantToken string, ttl time.Duration, now time.Time) (ClaimResult, error) {
	if existing.CompletedAt != nil {
		return ClaimResult{Outcome: OutcomeAlreadyCompleted, Row: existing}, nil
	}
	if existing.ClaimExpiresAt.After(now) {
		return ClaimResult{Outcome: OutcomeInProgressFresh, Row: existing}, nil
	}

	stolen, err := client.WebhookDelivery.UpdateOne(existing).
		Where(webhookdelivery.ClaimantToken(existing.ClaimantToken)).
		SetClaimantToken(claimantToken).
		SetClaimExpiresAt(now.Add(ttl)).
		SetUpdatedAt(now).
		Save(ctx)
	if err != nil {
		if ent.IsNotFound(err) || ent.IsConstraintError(err) {
			// Another worker stole it first; the delivery is handled either
			// way, so report in-progress rather than erroring the caller.
			return reevaluate(ctx, client, existing.ID, now)
		}
		return ClaimResult{}, fmt.Errorf("webhookclaim: steal stale claim: %w", err)
	}
	return ClaimResult{Outcome: OutcomeStaleStolen, Row: stolen}, nil
}

// Complete marks deliveryId completed iff it is still claimed by
// claimantToken and not already completed. Returns whether a row was
// updated; re-delivery of an already-completed claim is a no-op, making
// completion idempotent.
func Complete(ctx context.Context, client *ent.Client, deliveryID, claimantToken string, now time.Time) (bool, error) {
	n, err := client.WebhookDelivery.Update().
		Where(
			webhookdelivery.ID(deliveryID),
			webhookdelivery.ClaimantToken(claimantToken),
			webhookdelivery.CompletedAtIsNil(),
		).
		SetCompletedAt(now).
		SetUpdatedAt(now).
		Save(ctx)
	if err != nil {
		return false, fmt.Errorf("webhookclaim: complete: %w", err)
	}
	return n > 0, nil
}

// Release expires the claim in-place so another worker may retry without
// waiting out the TTL, iff the row still matches claimantToken and has no
// completion. Returns whether a row was updated.
func Release(ctx context.Context, client *ent.Client, deliveryID, claimantToken string, now time.Time) (bool, error) {
	n, err := client.WebhookDelivery.Update().
		Where(
			webhookdelivery.ID(deliveryID),
			webhookdelivery.ClaimantToken(claimantToken),
			webhookdelivery.CompletedAtIsNil(),
		).
		SetClaimExpiresAt(now.Add(-time.Second)).
		SetUpdatedAt(now).
		Save(ctx)
	if err != nil {
		return false, fmt.Errorf("webhookclaim: release: %w", err)
	}
	return n > 0, nil
}
