package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
)

// LoopLease holds the schema definition for the LoopLease entity: a
// per-loop mutex with TTL and monotonic epoch.
type LoopLease struct {
	ent.Schema
}

func (LoopLease) Fields() []ent.Field {
	return []ent.Field{
		field.String("loop_id").
			StorageKey("loop_id").
			Unique().
			Immutable(),
		field.String("lease_owner").
			Optional().
			Nillable(),
		field.Int("lease_epoch").
			Default(0),
		field.Time("lease_expires_at").
			Optional().
			Nillable(),
	}
}

func (LoopLease) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("loop", Loop.Type).
			Ref("lease").
			Field("loop_id").
			Unique().
			Required().
			Immutable(),
	}
}
