package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ReviewThreadGateRun holds the schema definition for a review-thread gate
// evaluation, keyed by (loopId, headSha).
type ReviewThreadGateRun struct {
	ent.Schema
}

func (ReviewThreadGateRun) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("review_thread_gate_run_id").
			Unique().
			Immutable(),
		field.String("loop_id").
			Immutable(),
		field.String("head_sha").
			Immutable(),
		field.Int("loop_version"),
		field.Enum("status").
			Values("passed", "blocked", "transient_error"),
		field.Bool("gate_passed"),
		field.Int("unresolved_thread_count").
			Default(0),
		field.String("unresolved_thread_count_source").
			Optional().
			Nillable(),
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

func (ReviewThreadGateRun) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("loop_id", "head_sha").
			Unique(),
	}
}
