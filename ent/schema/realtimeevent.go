package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// RealtimeEvent holds the schema definition for a persisted real-time event:
// the durable side of a NOTIFY broadcast, queried by late WebSocket
// subscribers to catch up on everything missed since their last_event_id.
type RealtimeEvent struct {
	ent.Schema
}

func (RealtimeEvent) Fields() []ent.Field {
	return []ent.Field{
		field.Int("id"),
		field.String("loop_id").
			Immutable(),
		field.String("channel").
			Immutable(),
		field.JSON("payload", map[string]interface{}{}).
			Immutable(),
		field.Time("created_at").
			Immutable(),
	}
}

func (RealtimeEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("channel", "id"),
	}
}
