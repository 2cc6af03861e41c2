package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// OutboxRow holds the schema definition for a transactional outbox entry.
type OutboxRow struct {
	ent.Schema
}

func (OutboxRow) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("outbox_id").
			Unique().
			Immutable(),
		field.String("loop_id").
			Immutable(),
		field.Int("transition_seq").
			Immutable(),
		field.Enum("action_type").
			Values("publish_status_comment", "publish_check_summary", "enqueue_fix_task", "publish_video_link", "emit_telemetry").
			Immutable(),
		field.Enum("supersession_group").
			Values("publication_status", "fix_task_enqueue", "publication_video", "telemetry").
			Immutable(),
		field.String("action_key").
			Comment("unique within loop"),
		field.JSON("payload", map[string]interface{}{}),
		field.Enum("status").
			Values("pending", "running", "completed", "failed", "canceled").
			Default("pending"),
		field.Int("attempt_count").
			Default(0),
		field.Time("next_retry_at").
			Optional().
			Nillable(),
		field.String("claimed_by").
			Optional().
			Nillable(),
		field.Time("claimed_at").
			Optional().
			Nillable(),
		field.Time("completed_at").
			Optional().
			Nillable(),
		field.String("last_error_class").
			Optional().
			Nillable(),
		field.String("last_error_code").
			Optional().
			Nillable(),
		field.String("last_error_message").
			Optional().
			Nillable(),
		field.String("superseded_by_outbox_id").
			Optional().
			Nillable(),
		field.String("canceled_reason").
			Optional().
			Nillable(),
		field.Time("created_at").
			Immutable(),
		field.Time("updated_at"),
	}
}

func (OutboxRow) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("loop", Loop.Type).
			Ref("outbox_rows").
			Field("loop_id").
			Unique().
			Required().
			Immutable(),
		edge.To("attempts", OutboxAttempt.Type),
	}
}

func (OutboxRow) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("loop_id", "action_key").
			Unique(),
		index.Fields("loop_id", "supersession_group", "status"),
		index.Fields("status", "next_retry_at"),
	}
}
