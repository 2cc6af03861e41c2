package cleanup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sdlcloop/controller/pkg/config"
)

func TestDefaultRetentionConfig_HasSaneDefaults(t *testing.T) {
	cfg := config.DefaultRetentionConfig()
	assert.Greater(t, cfg.TerminatedLoopRetentionDays, 0)
	assert.Greater(t, cfg.WebhookDeliveryRetention.Hours(), float64(0))
	assert.Greater(t, cfg.RealtimeEventTTL.Seconds(), float64(0))
	assert.Greater(t, cfg.ParityMetricSampleRetentionDays, 0)
	assert.Greater(t, cfg.CleanupInterval.Hours(), float64(0))
}
