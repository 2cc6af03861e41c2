package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/sdlcloop/controller/pkg/database"
)

// LoopYAMLConfig represents the complete loop.yaml file structure.
// Every section is optional; omitted sections fall back to built-in
// defaults via mergo.Merge(defaults, user, mergo.WithOverride).
type LoopYAMLConfig struct {
	System              *SystemYAMLConfig          `yaml:"system"`
	Queue               *QueueConfig               `yaml:"queue"`
	LoopDefaults        *LoopDefaultsConfig        `yaml:"loop_defaults"`
	Guardrails          *GuardrailsConfig          `yaml:"guardrails"`
	WebhookClaim        *WebhookClaimConfig        `yaml:"webhook_claim"`
	LoopLease           *LoopLeaseConfig           `yaml:"loop_lease"`
	Outbox              *OutboxConfig              `yaml:"outbox"`
	Parity              *ParityConfig              `yaml:"parity"`
	ReviewThreadSources *ReviewThreadSourcesConfig `yaml:"review_thread_sources"`
	Retention           *RetentionConfig           `yaml:"retention"`
}

// SystemYAMLConfig groups system-wide infrastructure settings.
type SystemYAMLConfig struct {
	ListenAddr       string            `yaml:"listen_addr"`
	DashboardURL     string            `yaml:"dashboard_url"`
	AllowedWSOrigins []string          `yaml:"allowed_ws_origins"`
	GitHub           *GitHubYAMLConfig `yaml:"github"`
}

// GitHubYAMLConfig holds GitHub integration settings from YAML.
type GitHubYAMLConfig struct {
	TokenEnv         string `yaml:"token_env,omitempty"`          // Defaults to "GITHUB_TOKEN" if omitted
	WebhookSecretEnv string `yaml:"webhook_secret_env,omitempty"` // Defaults to "GITHUB_WEBHOOK_SECRET" if omitted
}

// Initialize loads, merges, and validates configuration from configDir and
// the process environment. This is the primary entry point used by
// cmd/sdlcloopd.
//
// Steps performed:
//  1. Load loop.yaml from configDir (expanding ${VAR} references first)
//  2. Merge each section onto its built-in defaults (user config wins)
//  3. Load the database DSN from the environment (pkg/database's own env
//     loader — connection credentials never live in a checked-in YAML file)
//  4. Validate the merged configuration
//  5. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"worker_count", cfg.Queue.WorkerCount,
		"max_concurrent_loops", cfg.Queue.MaxConcurrentLoops)

	_ = ctx
	return cfg, nil
}

func load(configDir string) (*Config, error) {
	yamlCfg, err := loadSdlcloopYAML(configDir)
	if err != nil {
		return nil, NewLoadError("loop.yaml", err)
	}

	queue := DefaultQueueConfig()
	if yamlCfg.Queue != nil {
		if err := mergo.Merge(queue, yamlCfg.Queue, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge queue config: %w", err)
		}
	}

	loopDefaults := DefaultLoopDefaultsConfig()
	if yamlCfg.LoopDefaults != nil {
		if err := mergo.Merge(loopDefaults, yamlCfg.LoopDefaults, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge loop defaults: %w", err)
		}
	}

	guardrailsCfg := DefaultGuardrailsConfig()
	if yamlCfg.Guardrails != nil {
		if err := mergo.Merge(guardrailsCfg, yamlCfg.Guardrails, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge guardrails config: %w", err)
		}
	}

	webhookClaim := DefaultWebhookClaimConfig()
	if yamlCfg.WebhookClaim != nil {
		if err := mergo.Merge(webhookClaim, yamlCfg.WebhookClaim, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge webhook claim config: %w", err)
		}
	}

	loopLease := DefaultLoopLeaseConfig()
	if yamlCfg.LoopLease != nil {
		if err := mergo.Merge(loopLease, yamlCfg.LoopLease, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge loop lease config: %w", err)
		}
	}

	outboxCfg := DefaultOutboxConfig()
	if yamlCfg.Outbox != nil {
		if err := mergo.Merge(outboxCfg, yamlCfg.Outbox, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge outbox config: %w", err)
		}
	}

	parityCfg := DefaultParityConfig()
	if yamlCfg.Parity != nil {
		if err := mergo.Merge(parityCfg, yamlCfg.Parity, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge parity config: %w", err)
		}
	}

	reviewThreadSources := DefaultReviewThreadSourcesConfig()
	if yamlCfg.ReviewThreadSources != nil && len(yamlCfg.ReviewThreadSources.Authoritative) > 0 {
		reviewThreadSources = yamlCfg.ReviewThreadSources
	}

	retentionCfg := DefaultRetentionConfig()
	if yamlCfg.Retention != nil {
		if err := mergo.Merge(retentionCfg, yamlCfg.Retention, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge retention config: %w", err)
		}
	}

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load database config from environment: %w", err)
	}

	return &Config{
		configDir:           configDir,
		System:              resolveSystemConfig(yamlCfg.System),
		Database:            dbCfg,
		Queue:               queue,
		LoopDefaults:        loopDefaults,
		Guardrails:          guardrailsCfg,
		WebhookClaim:        webhookClaim,
		LoopLease:           loopLease,
		Outbox:              outboxCfg,
		Parity:              parityCfg,
		ReviewThreadSources: reviewThreadSources,
		Retention:           retentionCfg,
	}, nil
}

func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}

func loadSdlcloopYAML(configDir string) (*LoopYAMLConfig, error) {
	path := filepath.Join(configDir, "loop.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// An entirely absent config file is valid — every section
			// falls back to its built-in default.
			return &LoopYAMLConfig{}, nil
		}
		return nil, err
	}

	data = ExpandEnv(data)

	var cfg LoopYAMLConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return &cfg, nil
}

func resolveSystemConfig(sys *SystemYAMLConfig) *SystemConfig {
	cfg := &SystemConfig{
		ListenAddr:   ":8080",
		DashboardURL: "http://localhost:5173",
		GitHub:       &GitHubConfig{TokenEnv: "GITHUB_TOKEN", WebhookSecretEnv: "GITHUB_WEBHOOK_SECRET"},
	}

	if sys == nil {
		return cfg
	}

	if sys.ListenAddr != "" {
		cfg.ListenAddr = sys.ListenAddr
	}
	if sys.DashboardURL != "" {
		cfg.DashboardURL = sys.DashboardURL
	}
	cfg.AllowedWSOrigins = sys.AllowedWSOrigins
	if sys.GitHub != nil {
		if sys.GitHub.TokenEnv != "" {
			cfg.GitHub.TokenEnv = sys.GitHub.TokenEnv
		}
		if sys.GitHub.WebhookSecretEnv != "" {
			cfg.GitHub.WebhookSecretEnv = sys.GitHub.WebhookSecretEnv
		}
	}

	return cfg
}
