package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// DeepReviewGateRun holds the schema definition for a deep-review LLM gate
// evaluation, keyed by (loopId, headSha).
type DeepReviewGateRun struct {
	ent.Schema
}

func (DeepReviewGateRun) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("deep_review_gate_run_id").
			Unique().
			Immutable(),
		field.String("loop_id").
			Immutable(),
		field.String("head_sha").
			Immutable(),
		field.Int("loop_version"),
		field.Enum("status").
			Values("passed", "blocked", "invalid_output"),
		field.Bool("gate_passed"),
		field.Bool("invalid_output").
			Default(false),
		field.String("error_code").
			Optional().
			Nillable(),
		field.String("trigger_event").
			Optional().
			Nillable(),
		field.Time("created_at").
			Immutable(),
		field.Time("updated_at"),
	}
}

func (DeepReviewGateRun) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("loop_id", "head_sha").
			Unique(),
	}
}
