package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// CIGateRun holds the schema definition for a CI gate evaluation, keyed by
// (loopId, headSha).
type CIGateRun struct {
	ent.Schema
}

func (CIGateRun) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("ci_gate_run_id").
			Unique().
			Immutable(),
		field.String("loop_id").
			Immutable(),
		field.String("head_sha").
			Immutable(),
		field.Int("loop_version"),
		field.Enum("status").
			Values("passed", "blocked", "capability_error"),
		field.Bool("gate_passed"),
		field.Strings("required_checks").
			Optional(),
		field.Strings("failing_required_checks").
			Optional(),
		field.Enum("required_check_source").
			Values("ruleset", "branch_protection", "allowlist", "no_required").
			Optional().
			Nillable(),
		field.Enum("capability_state").
			Values("supported", "forbidden", "unsupported", "transient_error").
			Default("supported"),
		field.String("trigger_event").
			Optional().
			Nillable(),
		field.Time("created_at").
			Immutable(),
		field.Time("updated_at"),
	}
}

func (CIGateRun) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("loop_id", "head_sha").
			Unique(),
	}
}
