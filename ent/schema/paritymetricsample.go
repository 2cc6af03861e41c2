package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ParityMetricSample holds the schema definition for an append-only parity
// telemetry sample used to gate the cutover/rollback decision between the
// legacy and new coordinator implementations.
type ParityMetricSample struct {
	ent.Schema
}

func (ParityMetricSample) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("parity_sample_id").
			Unique().
			Immutable(),
		field.String("cause_type").
			Immutable(),
		field.String("target_class").
			Immutable(),
		field.Bool("matched").
			Immutable(),
		field.Bool("eligible").
			Default(true).
			Immutable(),
		field.Time("observed_at").
			Immutable(),
	}
}

func (ParityMetricSample) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("cause_type", "target_class", "observed_at"),
	}
}
