package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// OutboxAttempt holds the schema definition for an append-only per-attempt
// audit row of an outbox action.
type OutboxAttempt struct {
	ent.Schema
}

func (OutboxAttempt) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("outbox_attempt_id").
			Unique().
			Immutable(),
		field.String("outbox_id").
			Immutable(),
		field.Int("attempt_number").
			Immutable(),
		field.Enum("status").
			Values("completed", "retry_scheduled", "failed").
			Immutable(),
		field.String("error_class").
			Optional().
			Nillable().
			Immutable(),
		field.String("error_code").
			Optional().
			Nillable().
			Immutable(),
		field.String("error_message").
			Optional().
			Nillable().
			Immutable().
			Comment("truncated to 1000 characters"),
		field.Time("retry_at").
			Optional().
			Nillable().
			Immutable(),
		field.Time("created_at").
			Immutable(),
	}
}

func (OutboxAttempt) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("outbox_row", OutboxRow.Type).
			Ref("attempts").
			Field("outbox_id").
			Unique().
			Required().
			Immutable(),
	}
}

func (OutboxAttempt) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("outbox_id", "attempt_number"),
	}
}
