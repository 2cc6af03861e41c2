package signalinbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sdlcloop/controller/ent"
	"github.com/sdlcloop/controller/ent/signalinboxrow"
	"github.com/sdlcloop/controller/pkg/causeid"
)

// EnqueueSignal admits one external event into a loop's inbox, deduplicated
// on (loopId, canonicalCauseId): a re-delivery of the same event (GitHub
// retries on timeout, or a second worker racing the same insert) is
// idempotent and returns the existing row unchanged rather than erroring.
func EnqueueSignal(ctx context.Context, client *ent.Client, loopID string, in causeid.Input, payload map[string]interface{}, now time.Time) (*ent.SignalInboxRow, error) {
	cause, err := causeid.Construct(in)
	if err != nil {
		return nil, fmt.Errorf("signalinbox: construct cause: %w", err)
	}

	existing, err := client.SignalInboxRow.Query().
		Where(signalinboxrow.LoopID(loopID), signalinboxrow.CanonicalCauseID(cause.CanonicalCauseID)).
		Only(ctx)
	switch {
	case ent.IsNotFound(err):
		row, createErr := client.SignalInboxRow.Create().
			SetID(uuid.NewString()).
			SetLoopID(loopID).
			SetCauseType(string(cause.CauseType)).
			SetCanonicalCauseID(cause.CanonicalCauseID).
			SetCauseIdentityVersion(cause.CauseIdentityVersion).
			SetPayload(payload).
			SetReceivedAt(now).
			Save(ctx)
		if createErr != nil {
			if ent.IsConstraintError(createErr) {
				// Lost the insert race to another worker handling the same
				// re-delivery; the signal is admitted either way.
				return client.SignalInboxRow.Query().
					Where(signalinboxrow.LoopID(loopID), signalinboxrow.CanonicalCauseID(cause.CanonicalCauseID)).
					Only(ctx)
			}
			return nil, fmt.Errorf("signalinbox: create row: %w", createErr)
		}
		return row, nil

	case err != nil:
		return nil, fmt.Errorf("signalinbox: query existing row: %w", err)

	default:
		return existing, nil
	}
}
