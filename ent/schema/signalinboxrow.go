package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// SignalInboxRow holds the schema definition for a per-(loop, canonical
// cause) inbound signal awaiting processing.
type SignalInboxRow struct {
	ent.Schema
}

func (SignalInboxRow) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("signal_id").
			Unique().
			Immutable(),
		field.String("loop_id").
			Immutable(),
		field.String("cause_type").
			Immutable(),
		field.String("canonical_cause_id").
			Immutable(),
		field.Int("cause_identity_version").
			Default(1).
			Immutable(),
		field.JSON("payload", map[string]interface{}{}),
		field.Time("received_at").
			Immutable(),
		field.Time("processed_at").
			Optional().
			Nillable(),
	}
}

func (SignalInboxRow) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("loop", Loop.Type).
			Ref("signals").
			Field("loop_id").
			Unique().
			Required().
			Immutable(),
	}
}

func (SignalInboxRow) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("loop_id", "canonical_cause_id").
			Unique(),
		index.Fields("loop_id", "processed_at"),
	}
}
