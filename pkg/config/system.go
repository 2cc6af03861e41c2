package config

// GitHubConfig holds resolved GitHub integration configuration.
type GitHubConfig struct {
	TokenEnv         string // Env var name containing the GitHub PAT (default: "GITHUB_TOKEN")
	WebhookSecretEnv string // Env var name containing the webhook HMAC secret (default: "GITHUB_WEBHOOK_SECRET")
}

// SystemConfig groups process-wide infrastructure settings that don't
// belong to a specific subsystem's config.
type SystemConfig struct {
	ListenAddr       string
	DashboardURL     string
	AllowedWSOrigins []string
	GitHub           *GitHubConfig
}
