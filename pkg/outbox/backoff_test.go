package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeBackoff_RetryThenSuccessScenario(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 4, 0, time.UTC)
	retryAt := ComputeBackoff(now, 1, 30_000, 1_800_000)
	want := time.Date(2026, 1, 1, 0, 0, 34, 0, time.UTC)
	assert.Equal(t, want, retryAt)
}

func TestComputeBackoff_ExponentialGrowth(t *testing.T) {
	now := time.Unix(0, 0).UTC()
	assert.Equal(t, 30_000*time.Millisecond, ComputeBackoff(now, 1, 30_000, 1_800_000).Sub(now))
	assert.Equal(t, 60_000*time.Millisecond, ComputeBackoff(now, 2, 30_000, 1_800_000).Sub(now))
	assert.Equal(t, 120_000*time.Millisecond, ComputeBackoff(now, 3, 30_000, 1_800_000).Sub(now))
}

func TestComputeBackoff_CapsAtMaxBackoff(t *testing.T) {
	now := time.Unix(0, 0).UTC()
	got := ComputeBackoff(now, 20, 30_000, 1_800_000)
	assert.Equal(t, 1_800_000*time.Millisecond, got.Sub(now))
}

func TestComputeBackoff_AttemptZeroOrOneAreEquivalent(t *testing.T) {
	now := time.Unix(0, 0).UTC()
	assert.Equal(t, ComputeBackoff(now, 0, 30_000, 1_800_000), ComputeBackoff(now, 1, 30_000, 1_800_000))
}

func TestSupersessionGroupFor(t *testing.T) {
	assert.Equal(t, GroupPublicationStatus, SupersessionGroupFor(ActionPublishStatusComment))
	assert.Equal(t, GroupPublicationStatus, SupersessionGroupFor(ActionPublishCheckSummary))
	assert.Equal(t, GroupFixTaskEnqueue, SupersessionGroupFor(ActionEnqueueFixTask))
	assert.Equal(t, GroupPublicationVideo, SupersessionGroupFor(ActionPublishVideoLink))
	assert.Equal(t, GroupTelemetry, SupersessionGroupFor(ActionEmitTelemetry))
}
