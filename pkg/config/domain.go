package config

import "time"

// LoopDefaultsConfig holds the defaults applied to a newly enrolled loop
// when the caller doesn't specify an override.
type LoopDefaultsConfig struct {
	PlanApprovalPolicy string `yaml:"plan_approval_policy"` // "auto" or "human_required"
	MaxFixAttempts     int    `yaml:"max_fix_attempts"`
}

// DefaultLoopDefaultsConfig returns the built-in loop defaults.
func DefaultLoopDefaultsConfig() *LoopDefaultsConfig {
	return &LoopDefaultsConfig{
		PlanApprovalPolicy: "auto",
		MaxFixAttempts:     3,
	}
}

// GuardrailsConfig feeds guardrails.Input's process-wide fields (the
// per-loop fields — lease validity, terminal state, iteration count — are
// always derived live from the loop row, never configured).
type GuardrailsConfig struct {
	KillSwitchEnabled          bool          `yaml:"kill_switch_enabled"`
	CooldownWindow             time.Duration `yaml:"cooldown_window"`
	MaxIterationsDefault       int           `yaml:"max_iterations_default"`
	ManualIntentAllowedDefault bool          `yaml:"manual_intent_allowed_default"`
}

// DefaultGuardrailsConfig returns the built-in guardrails defaults.
func DefaultGuardrailsConfig() *GuardrailsConfig {
	return &GuardrailsConfig{
		KillSwitchEnabled:          false,
		CooldownWindow:             30 * time.Second,
		MaxIterationsDefault:       50,
		ManualIntentAllowedDefault: true,
	}
}

// WebhookClaimConfig controls the exactly-once webhook delivery ledger.
type WebhookClaimConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// DefaultWebhookClaimConfig returns the built-in webhook claim defaults,
// matching webhookclaim.DefaultTTL.
func DefaultWebhookClaimConfig() *WebhookClaimConfig {
	return &WebhookClaimConfig{TTL: 5 * time.Minute}
}

// LoopLeaseConfig controls the per-loop worker mutex.
type LoopLeaseConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// DefaultLoopLeaseConfig returns the built-in loop lease defaults.
func DefaultLoopLeaseConfig() *LoopLeaseConfig {
	return &LoopLeaseConfig{TTL: 2 * time.Minute}
}

// OutboxConfig feeds outbox.CompleteInput's retry/backoff parameters.
type OutboxConfig struct {
	MaxAttempts   int   `yaml:"max_attempts"`
	BaseBackoffMs int64 `yaml:"base_backoff_ms"`
	MaxBackoffMs  int64 `yaml:"max_backoff_ms"`
}

// DefaultOutboxConfig returns the built-in outbox retry defaults.
func DefaultOutboxConfig() *OutboxConfig {
	return &OutboxConfig{
		MaxAttempts:   5,
		BaseBackoffMs: 30_000,
		MaxBackoffMs:  1_800_000,
	}
}

// ParityConfig feeds parity.SloEvaluationInput's thresholds and bounds the
// window GetParityBucketStats scans.
type ParityConfig struct {
	CutoverThreshold  float64       `yaml:"cutover_threshold"`
	RollbackThreshold float64       `yaml:"rollback_threshold"`
	EvaluationWindow  time.Duration `yaml:"evaluation_window"`
}

// DefaultParityConfig returns the built-in parity SLO defaults, matching
// parity.DefaultCutoverThreshold/DefaultRollbackThreshold.
func DefaultParityConfig() *ParityConfig {
	return &ParityConfig{
		CutoverThreshold:  0.999,
		RollbackThreshold: 0.99,
		EvaluationWindow:  1 * time.Hour,
	}
}

// ReviewThreadSourcesConfig lists the review-thread-count sources trusted
// to authorize an optimistic review-thread-gate pass from a webhook signal
// alone, without a fresh authoritative recount.
type ReviewThreadSourcesConfig struct {
	Authoritative []string `yaml:"authoritative"`
}

// DefaultReviewThreadSourcesConfig returns the built-in authoritative
// source allowlist.
func DefaultReviewThreadSourcesConfig() *ReviewThreadSourcesConfig {
	return &ReviewThreadSourcesConfig{Authoritative: []string{"github_reviews_api"}}
}
