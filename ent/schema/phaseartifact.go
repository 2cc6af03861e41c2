package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// PhaseArtifact holds the schema definition for a generated artifact of one
// loop phase (plan, snapshot, review, UI, PR-linking, babysit).
type PhaseArtifact struct {
	ent.Schema
}

func (PhaseArtifact) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("artifact_id").
			Unique().
			Immutable(),
		field.String("loop_id").
			Immutable(),
		field.Enum("phase").
			Values("planning", "implementing", "reviewing", "ui_testing", "pr_linking", "pr_babysitting").
			Immutable(),
		field.String("artifact_type"),
		field.String("head_sha").
			Optional().
			Nillable().
			Comment("null only for planning and pr_linking"),
		field.Int("loop_version"),
		field.Enum("status").
			Values("generated", "approved", "accepted", "superseded").
			Default("generated"),
		field.String("generated_by"),
		field.JSON("payload", map[string]interface{}{}),
		field.String("approved_by_user_id").
			Optional().
			Nillable(),
		field.Time("created_at").
			Immutable(),
		field.Time("updated_at"),
	}
}

func (PhaseArtifact) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("loop", Loop.Type).
			Ref("artifacts").
			Field("loop_id").
			Unique().
			Required().
			Immutable(),
		edge.To("plan_tasks", PlanTask.Type),
	}
}

func (PhaseArtifact) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("loop_id", "phase", "head_sha"),
	}
}
