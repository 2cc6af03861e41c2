package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// PlanTask holds the schema definition for a single task within a plan
// artifact, keyed by (artifactId, stableTaskId).
type PlanTask struct {
	ent.Schema
}

func (PlanTask) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("plan_task_id").
			Unique().
			Immutable(),
		field.String("artifact_id").
			Immutable(),
		field.String("stable_task_id").
			Immutable(),
		field.String("title"),
		field.String("description").
			Optional(),
		field.Strings("acceptance_criteria").
			Optional(),
		field.Enum("status").
			Values("todo", "in_progress", "done", "skipped", "blocked").
			Default("todo"),
		field.Time("completed_at").
			Optional().
			Nillable(),
		field.Enum("completed_by").
			Values("agent", "human").
			Optional().
			Nillable(),
		field.JSON("completion_evidence", map[string]interface{}{}).
			Optional().
			Nillable(),
		field.Time("created_at").
			Immutable(),
		field.Time("updated_at"),
	}
}

func (PlanTask) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("artifact", PhaseArtifact.Type).
			Ref("plan_tasks").
			Field("artifact_id").
			Unique().
			Required().
			Immutable(),
	}
}

func (PlanTask) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("artifact_id", "stable_task_id").
			Unique(),
	}
}
