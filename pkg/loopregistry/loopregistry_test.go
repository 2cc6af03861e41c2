package loopregistry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdlcloop/controller/ent/loop"
	"github.com/sdlcloop/controller/internal/testdb"
	"github.com/sdlcloop/controller/pkg/loopregistry"
)

func TestEnroll_CreatesLoopAndLeaseInPlanning(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	row, err := loopregistry.Enroll(ctx, client.Client, loopregistry.EnrollInput{
		UserID:       "user-1",
		RepoFullName: "acme/widgets",
		ThreadID:     "thread-1",
		Now:          now,
	})
	require.NoError(t, err)
	assert.Equal(t, loop.StatePlanning, row.State)

	lease, err := client.LoopLease.Get(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, lease.LeaseEpoch)
}

func TestEnroll_RejectsSecondActiveLoopForSameThread(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := loopregistry.Enroll(ctx, client.Client, loopregistry.EnrollInput{
		UserID:   "user-1",
		ThreadID: "thread-1",
		Now:      now,
	})
	require.NoError(t, err)

	_, err = loopregistry.Enroll(ctx, client.Client, loopregistry.EnrollInput{
		UserID:   "user-1",
		ThreadID: "thread-1",
		Now:      now.Add(time.Minute),
	})
	assert.ErrorIs(t, err, loopregistry.ErrActiveLoopExists)
}

func TestEnroll_AllowsReenrollmentOnceThreadPriorLoopIsTerminal(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := loopregistry.Enroll(ctx, client.Client, loopregistry.EnrollInput{
		UserID:   "user-1",
		ThreadID: "thread-1",
		Now:      now,
	})
	require.NoError(t, err)

	_, err = client.Loop.UpdateOneID(first.ID).SetState(loop.StateDone).SetUpdatedAt(now).Save(ctx)
	require.NoError(t, err)

	second, err := loopregistry.Enroll(ctx, client.Client, loopregistry.EnrollInput{
		UserID:   "user-1",
		ThreadID: "thread-1",
		Now:      now.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestEnroll_DifferentThreadsDoNotCollide(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := loopregistry.Enroll(ctx, client.Client, loopregistry.EnrollInput{
		UserID:   "user-1",
		ThreadID: "thread-1",
		Now:      now,
	})
	require.NoError(t, err)

	_, err = loopregistry.Enroll(ctx, client.Client, loopregistry.EnrollInput{
		UserID:   "user-1",
		ThreadID: "thread-2",
		Now:      now,
	})
	assert.NoError(t, err)
}

func TestGetActiveLoopForThread_NilWhenNoneActive(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	row, err := loopregistry.GetActiveLoopForThread(ctx, client.Client, "user-x", "thread-x")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestManualStop_TransitionsAndCancelsPendingOutbox(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	row, err := loopregistry.Enroll(ctx, client.Client, loopregistry.EnrollInput{
		UserID:   "user-1",
		ThreadID: "thread-1",
		Now:      now,
	})
	require.NoError(t, err)

	_, err = client.OutboxRow.Create().
		SetID("outbox-stop-1").
		SetLoopID(row.ID).
		SetTransitionSeq(0).
		SetActionType("publish_status_comment").
		SetSupersessionGroup("publication_status").
		SetActionKey("manual-stop-test").
		SetPayload(map[string]interface{}{}).
		SetCreatedAt(now).
		SetUpdatedAt(now).
		Save(ctx)
	require.NoError(t, err)

	err = loopregistry.ManualStop(ctx, client.Client, row.ID, "user_requested", now.Add(time.Minute))
	require.NoError(t, err)

	stopped, err := client.Loop.Get(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, loop.StateStopped, stopped.State)
	require.NotNil(t, stopped.StopReason)
	assert.Equal(t, "user_requested", *stopped.StopReason)

	canceled, err := client.OutboxRow.Get(ctx, "outbox-stop-1")
	require.NoError(t, err)
	assert.Equal(t, "canceled", string(canceled.Status))
	require.NotNil(t, canceled.CanceledReason)
	assert.Equal(t, "canceled_due_to_stop", *canceled.CanceledReason)
}
