package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Loop holds the schema definition for the Loop entity: the persistent
// coordinator for a single PR under automated iteration.
type Loop struct {
	ent.Schema
}

func (Loop) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("loop_id").
			Unique().
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.String("repo_full_name").
			Comment("owner/name"),
		field.Int("pr_number").
			Optional().
			Nillable(),
		field.String("thread_id"),

		field.Enum("state").
			Values(
				"planning", "implementing", "reviewing", "ui_testing", "pr_babysitting",
				"enrolled", "gates_running", "video_pending", "human_review_ready",
				"video_degraded_ready", "blocked_on_agent_fixes", "blocked_on_ci",
				"blocked_on_review_threads", "blocked_on_human_feedback",
				"terminated_pr_closed", "terminated_pr_merged", "done", "stopped",
			).
			Default("planning"),

		field.Enum("plan_approval_policy").
			Values("auto", "human_required").
			Default("auto"),

		field.String("current_head_sha").
			Optional().
			Nillable(),
		field.Int("loop_version").
			Default(0).
			Comment("monotonically non-decreasing, bumped on each head-SHA change"),

		field.Int("fix_attempt_count").
			Default(0),
		field.Int("max_fix_attempts").
			Default(3),

		field.String("active_planning_artifact_id").
			Optional().
			Nillable(),
		field.String("active_implementing_artifact_id").
			Optional().
			Nillable(),
		field.String("active_reviewing_artifact_id").
			Optional().
			Nillable(),
		field.String("active_ui_testing_artifact_id").
			Optional().
			Nillable(),
		field.String("active_pr_linking_artifact_id").
			Optional().
			Nillable(),
		field.String("active_pr_babysitting_artifact_id").
			Optional().
			Nillable(),

		field.String("canonical_status_comment_id").
			Optional().
			Nillable(),
		field.String("canonical_check_run_id").
			Optional().
			Nillable(),

		field.Enum("video_capture_status").
			Values("none", "pending", "succeeded", "failed", "degraded").
			Default("none"),
		field.String("latest_video_artifact_r2_key").
			Optional().
			Nillable(),
		field.Time("latest_video_captured_at").
			Optional().
			Nillable(),
		field.Enum("latest_video_failure_class").
			Values("auth", "quota", "script", "infra").
			Optional().
			Nillable(),
		field.String("latest_video_failure_message").
			Optional().
			Nillable(),
		field.Time("latest_video_failed_at").
			Optional().
			Nillable(),

		field.String("stop_reason").
			Optional().
			Nillable(),

		field.Time("created_at").
			Immutable(),
		field.Time("updated_at"),
	}
}

func (Loop) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("signals", SignalInboxRow.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("outbox_rows", OutboxRow.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("artifacts", PhaseArtifact.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("lease", LoopLease.Type).
			Unique().
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

func (Loop) Indexes() []ent.Index {
	return []ent.Index{
		// at most one active row per (userId, threadId): a partial unique
		// index over every non-terminal state, backstopped by a pre-check
		// inside Enroll's transaction for a clean error instead of a raw
		// constraint violation.
		index.Fields("user_id", "thread_id").
			Unique().
			Annotations(entsql.IndexWhere("state NOT IN ('terminated_pr_closed','terminated_pr_merged','done','stopped')")),
		index.Fields("repo_full_name", "pr_number"),
	}
}
