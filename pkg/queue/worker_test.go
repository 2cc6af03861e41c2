package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sdlcloop/controller/pkg/config"
)

func TestWorker_PollInterval_NoJitterReturnsBase(t *testing.T) {
	w := &Worker{queueCfg: &config.QueueConfig{PollInterval: 2 * time.Second}}
	assert.Equal(t, 2*time.Second, w.pollInterval())
}

func TestWorker_PollInterval_StaysWithinJitterRange(t *testing.T) {
	w := &Worker{queueCfg: &config.QueueConfig{PollInterval: 1 * time.Second, PollIntervalJitter: 200 * time.Millisecond}}
	for i := 0; i < 50; i++ {
		d := w.pollInterval()
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}
