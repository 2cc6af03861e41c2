package realtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdlcloop/controller/internal/testdb"
	"github.com/sdlcloop/controller/pkg/realtime"
)

// TestNotifyListener_CrossReplicaDelivery exercises the scenario two
// NotifyListeners are built for: one process publishes a loop event, and a
// second process — its own connection pool, its own LISTEN connection,
// sharing only the underlying PostgreSQL database — receives the NOTIFY.
func TestNotifyListener_CrossReplicaDelivery(t *testing.T) {
	shared := testdb.NewSharedTestDB(t)

	publisherClient := shared.NewClient(t)
	subscriberClient := shared.NewClient(t)

	manager := realtime.NewConnectionManager(nil, 5*time.Second)
	listener := realtime.NewNotifyListener(shared.ConnString(), manager)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	require.NoError(t, listener.Start(ctx))
	defer listener.Stop(ctx)

	loopID := "loop-multireplica-1"
	channel := realtime.LoopChannel(loopID)

	received := make(chan []byte, 1)
	listener.RegisterHandler(channel, func(payload []byte) {
		received <- payload
	})
	require.NoError(t, listener.Subscribe(ctx, channel))

	publisher := realtime.NewEventPublisher(publisherClient.DB())
	err := publisher.PublishLoopStateChanged(ctx, loopID, realtime.LoopStateChangedPayload{
		Type:        "loop.state_changed",
		LoopID:      loopID,
		FromState:   "coding",
		ToState:     "ci_running",
		Event:       "commit_pushed",
		LoopVersion: 2,
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
	})
	require.NoError(t, err)

	select {
	case payload := <-received:
		assert.Contains(t, string(payload), loopID)
		assert.Contains(t, string(payload), "ci_running")
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for cross-replica NOTIFY delivery")
	}

	// The row persisted by the publisher's pool must be visible through the
	// subscriber's independent pool, proving both share the test schema
	// rather than each seeing its own.
	var count int
	err = subscriberClient.DB().QueryRowContext(ctx,
		`SELECT count(*) FROM realtime_events WHERE loop_id = $1 AND channel = $2`,
		loopID, channel,
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
