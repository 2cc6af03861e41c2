package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setDBEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PASSWORD", "test-password")
	t.Setenv("DB_NAME", "sdlcloop_test")
}

func TestLoad_AbsentYAMLFallsBackToDefaults(t *testing.T) {
	setDBEnv(t)

	cfg, err := load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultQueueConfig(), cfg.Queue)
	assert.Equal(t, DefaultLoopDefaultsConfig(), cfg.LoopDefaults)
	assert.Equal(t, DefaultGuardrailsConfig(), cfg.Guardrails)
	assert.Equal(t, DefaultWebhookClaimConfig(), cfg.WebhookClaim)
	assert.Equal(t, DefaultLoopLeaseConfig(), cfg.LoopLease)
	assert.Equal(t, DefaultOutboxConfig(), cfg.Outbox)
	assert.Equal(t, DefaultParityConfig(), cfg.Parity)
	assert.Equal(t, DefaultReviewThreadSourcesConfig(), cfg.ReviewThreadSources)
	assert.Equal(t, DefaultRetentionConfig(), cfg.Retention)
	assert.Equal(t, ":8080", cfg.System.ListenAddr)
}

func TestLoad_UserYAMLOverridesDefaults(t *testing.T) {
	setDBEnv(t)

	dir := t.TempDir()
	yamlContent := `
queue:
  worker_count: 20
guardrails:
  kill_switch_enabled: true
parity:
  cutover_threshold: 0.995
system:
  listen_addr: ":9090"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loop.yaml"), []byte(yamlContent), 0o644))

	cfg, err := load(dir)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Queue.WorkerCount)
	assert.Equal(t, DefaultQueueConfig().MaxConcurrentLoops, cfg.Queue.MaxConcurrentLoops, "unset fields keep their default")
	assert.True(t, cfg.Guardrails.KillSwitchEnabled)
	assert.Equal(t, 0.995, cfg.Parity.CutoverThreshold)
	assert.Equal(t, ":9090", cfg.System.ListenAddr)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	setDBEnv(t)
	t.Setenv("SDLCLOOP_DASHBOARD_URL", "https://dashboard.example.com")

	dir := t.TempDir()
	yamlContent := `
system:
  dashboard_url: "${SDLCLOOP_DASHBOARD_URL}"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loop.yaml"), []byte(yamlContent), 0o644))

	cfg, err := load(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://dashboard.example.com", cfg.System.DashboardURL)
}

func TestInitialize_ValidatesMergedConfig(t *testing.T) {
	setDBEnv(t)

	dir := t.TempDir()
	yamlContent := `
queue:
  worker_count: -1
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loop.yaml"), []byte(yamlContent), 0o644))

	_, err := Initialize(nil, dir) //nolint:staticcheck // nil context acceptable in this offline test
	assert.Error(t, err)
}

func TestInitialize_MissingDBPasswordFails(t *testing.T) {
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("DB_NAME", "sdlcloop_test")

	_, err := Initialize(nil, t.TempDir()) //nolint:staticcheck
	assert.Error(t, err)
}
