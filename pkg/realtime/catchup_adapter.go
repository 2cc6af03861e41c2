package realtime

import (
	"context"

	"github.com/sdlcloop/controller/ent"
	"github.com/sdlcloop/controller/ent/realtimeevent"
)

// eventQuerier abstracts the event query method needed by EventServiceAdapter.
type eventQuerier interface {
	GetEventsSince(ctx context.Context, channel string, sinceID, limit int) ([]*ent.RealtimeEvent, error)
}

// EventServiceAdapter wraps an eventQuerier to implement CatchupQuerier.
type EventServiceAdapter struct {
	querier eventQuerier
}

// NewEventServiceAdapter creates a CatchupQuerier backed by an ent client.
func NewEventServiceAdapter(client *ent.Client) *EventServiceAdapter {
	return &EventServiceAdapter{querier: &entEventQuerier{client: client}}
}

// GetCatchupEvents queries events since sinceID up to limit for the catchup mechanism.
func (a *EventServiceAdapter) GetCatchupEvents(ctx context.Context, channel string, sinceID, limit int) ([]CatchupEvent, error) {
	events, err := a.querier.GetEventsSince(ctx, channel, sinceID, limit)
	if err != nil {
		return nil, err
	}

	result := make([]CatchupEvent, len(events))
	for i, evt := range events {
		result[i] = CatchupEvent{
			ID:      evt.ID,
			Payload: evt.Payload,
		}
	}
	return result, nil
}

type entEventQuerier struct {
	client *ent.Client
}

func (q *entEventQuerier) GetEventsSince(ctx context.Context, channel string, sinceID, limit int) ([]*ent.RealtimeEvent, error) {
	return q.client.RealtimeEvent.Query().
		Where(realtimeevent.ChannelEQ(channel), realtimeevent.IDGT(sinceID)).
		Order(ent.Asc(realtimeevent.FieldID)).
		Limit(limit).
		All(ctx)
}
