package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sdlcloop/controller/pkg/database"
)

func validConfig() *Config {
	return &Config{
		System:              &SystemConfig{ListenAddr: ":8080"},
		Database:            database.Config{Host: "localhost", Database: "sdlcloop"},
		Queue:               DefaultQueueConfig(),
		LoopDefaults:        DefaultLoopDefaultsConfig(),
		Guardrails:          DefaultGuardrailsConfig(),
		WebhookClaim:        DefaultWebhookClaimConfig(),
		LoopLease:           DefaultLoopLeaseConfig(),
		Outbox:              DefaultOutboxConfig(),
		Parity:              DefaultParityConfig(),
		ReviewThreadSources: DefaultReviewThreadSourcesConfig(),
		Retention:           DefaultRetentionConfig(),
	}
}

func TestValidateAll_AcceptsDefaults(t *testing.T) {
	assert.NoError(t, NewValidator(validConfig()).ValidateAll())
}

func TestValidateAll_RejectsInvalidPlanApprovalPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.LoopDefaults.PlanApprovalPolicy = "sometimes"
	assert.Error(t, NewValidator(cfg).ValidateAll())
}

func TestValidateAll_RejectsRollbackAboveCutover(t *testing.T) {
	cfg := validConfig()
	cfg.Parity.RollbackThreshold = 0.9999
	cfg.Parity.CutoverThreshold = 0.99
	assert.Error(t, NewValidator(cfg).ValidateAll())
}

func TestValidateAll_RejectsOrphanThresholdNotAboveDetectionInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Queue.OrphanThreshold = cfg.Queue.OrphanDetectionInterval
	assert.Error(t, NewValidator(cfg).ValidateAll())
}

func TestValidateAll_RejectsMissingDatabaseName(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Database = ""
	assert.Error(t, NewValidator(cfg).ValidateAll())
}
