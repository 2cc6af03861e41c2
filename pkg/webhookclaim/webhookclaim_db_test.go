package webhookclaim_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdlcloop/controller/internal/testdb"
	"github.com/sdlcloop/controller/pkg/webhookclaim"
)

func TestClaim_FirstDeliveryClaimsFresh(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	result, err := webhookclaim.Claim(ctx, client.Client, "delivery-1", "claimant-a", "check_run", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, webhookclaim.OutcomeClaimedNew, result.Outcome)
	assert.True(t, result.Outcome.ShouldProcess())
}

func TestClaim_FreshClaimByOtherIsInProgress(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := webhookclaim.Claim(ctx, client.Client, "delivery-2", "claimant-a", "check_run", time.Minute, now)
	require.NoError(t, err)

	result, err := webhookclaim.Claim(ctx, client.Client, "delivery-2", "claimant-b", "check_run", time.Minute, now.Add(10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, webhookclaim.OutcomeInProgressFresh, result.Outcome)
	assert.False(t, result.Outcome.ShouldProcess())
}

func TestClaim_StaleClaimIsStolen(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := webhookclaim.Claim(ctx, client.Client, "delivery-3", "claimant-a", "check_run", time.Minute, now)
	require.NoError(t, err)

	result, err := webhookclaim.Claim(ctx, client.Client, "delivery-3", "claimant-b", "check_run", time.Minute, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, webhookclaim.OutcomeStaleStolen, result.Outcome)
	assert.True(t, result.Outcome.ShouldProcess())
}

func TestClaim_ZeroTTLFallsBackToDefault(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	result, err := webhookclaim.Claim(ctx, client.Client, "delivery-4", "claimant-a", "check_run", 0, now)
	require.NoError(t, err)
	require.Equal(t, webhookclaim.OutcomeClaimedNew, result.Outcome)
	assert.Equal(t, now.Add(webhookclaim.DefaultTTL), result.Row.ClaimExpiresAt)
}

func TestComplete_ThenReDeliveryIsAlreadyCompleted(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := webhookclaim.Claim(ctx, client.Client, "delivery-5", "claimant-a", "check_run", time.Minute, now)
	require.NoError(t, err)

	updated, err := webhookclaim.Complete(ctx, client.Client, "delivery-5", "claimant-a", now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, updated)

	result, err := webhookclaim.Claim(ctx, client.Client, "delivery-5", "claimant-b", "check_run", time.Minute, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, webhookclaim.OutcomeAlreadyCompleted, result.Outcome)
	assert.Equal(t, 200, result.Outcome.HTTPStatus())
	assert.False(t, result.Outcome.ShouldProcess())
}

func TestComplete_NoOpForWrongClaimant(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := webhookclaim.Claim(ctx, client.Client, "delivery-6", "claimant-a", "check_run", time.Minute, now)
	require.NoError(t, err)

	updated, err := webhookclaim.Complete(ctx, client.Client, "delivery-6", "claimant-wrong", now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestRelease_ExpiresClaimForImmediateRetry(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := webhookclaim.Claim(ctx, client.Client, "delivery-7", "claimant-a", "check_run", 5*time.Minute, now)
	require.NoError(t, err)

	released, err := webhookclaim.Release(ctx, client.Client, "delivery-7", "claimant-a", now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, released)

	result, err := webhookclaim.Claim(ctx, client.Client, "delivery-7", "claimant-b", "check_run", 5*time.Minute, now.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, webhookclaim.OutcomeStaleStolen, result.Outcome)
}
