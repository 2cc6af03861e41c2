package config

import "github.com/sdlcloop/controller/pkg/database"

// Config is the umbrella configuration object returned by Initialize and
// threaded through cmd/sdlcloopd's bootstrap.
type Config struct {
	configDir string

	System              *SystemConfig
	Database            database.Config
	Queue               *QueueConfig
	LoopDefaults        *LoopDefaultsConfig
	Guardrails          *GuardrailsConfig
	WebhookClaim        *WebhookClaimConfig
	LoopLease           *LoopLeaseConfig
	Outbox              *OutboxConfig
	Parity              *ParityConfig
	ReviewThreadSources *ReviewThreadSourcesConfig
	Retention           *RetentionConfig
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}
