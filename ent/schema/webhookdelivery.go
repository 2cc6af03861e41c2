package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
)

// WebhookDelivery holds the schema definition for the webhook claim ledger
// row backing exactly-once admission of an external delivery.
type WebhookDelivery struct {
	ent.Schema
}

func (WebhookDelivery) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("delivery_id").
			Unique().
			Immutable(),
		field.String("claimant_token"),
		field.Time("claim_expires_at"),
		field.Time("completed_at").
			Optional().
			Nillable(),
		field.String("event_type").
			Immutable(),
		field.Time("created_at").
			Immutable(),
		field.Time("updated_at"),
	}
}
