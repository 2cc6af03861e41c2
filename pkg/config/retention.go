package config

import "time"

// RetentionConfig controls data retention and cleanup behavior.
type RetentionConfig struct {
	// TerminatedLoopRetentionDays is how many days to keep a loop (and its
	// cascaded signals/outbox rows/artifacts) after it reaches a terminal
	// state before hard-deleting the row.
	TerminatedLoopRetentionDays int `yaml:"terminated_loop_retention_days"`

	// WebhookDeliveryRetention is the maximum age of a completed
	// WebhookDelivery claim-ledger row before deletion.
	WebhookDeliveryRetention time.Duration `yaml:"webhook_delivery_retention"`

	// RealtimeEventTTL is the maximum age of a persisted realtime_events
	// row before deletion. realtime_events rows carry no foreign key to
	// loops, so deleting a loop does not remove them; this TTL does.
	RealtimeEventTTL time.Duration `yaml:"realtime_event_ttl"`

	// ParityMetricSampleRetentionDays bounds how long parity samples are
	// kept; the cutover/rollback SLO only ever evaluates a recent window.
	ParityMetricSampleRetentionDays int `yaml:"parity_metric_sample_retention_days"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		TerminatedLoopRetentionDays:     90,
		WebhookDeliveryRetention:        7 * 24 * time.Hour,
		RealtimeEventTTL:                1 * time.Hour,
		ParityMetricSampleRetentionDays: 30,
		CleanupInterval:                 12 * time.Hour,
	}
}
