package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Finding holds the schema definition for a single blocking/non-blocking
// finding produced by the deep-review or Carmack-review gate, keyed by
// (loopId, headSha, stableFindingId).
type Finding struct {
	ent.Schema
}

func (Finding) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("finding_id").
			Unique().
			Immutable(),
		field.String("loop_id").
			Immutable(),
		field.String("head_sha").
			Immutable(),
		field.Enum("gate_kind").
			Values("deep_review", "carmack_review").
			Immutable(),
		field.String("stable_finding_id").
			Immutable(),
		field.Enum("severity").
			Values("critical", "high", "medium", "low"),
		field.String("category"),
		field.String("title"),
		field.String("detail"),
		field.String("suggested_fix").
			Optional().
			Nillable(),
		field.Bool("is_blocking").
			Default(true),
		field.Time("resolved_at").
			Optional().
			Nillable(),
		field.String("resolved_by_event_id").
			Optional().
			Nillable(),
		field.Time("created_at").
			Immutable(),
	}
}

func (Finding) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("loop_id", "head_sha", "gate_kind", "stable_finding_id").
			Unique(),
	}
}
