package config

import "time"

// QueueConfig contains worker-pool configuration. These values control how
// loops are polled, leased, and ticked.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica/pod.
	// Each worker independently claims a loop lease and ticks it.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentLoops is the global limit of loops being actively
	// ticked at once across ALL replicas/pods. Enforced by the lease
	// table's row count, not a separate counter.
	MaxConcurrentLoops int `yaml:"max_concurrent_loops"`

	// PollInterval is the base interval for checking leasable loops.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// LoopTickTimeout bounds a single signal-inbox tick + outbox drain
	// pass for one loop.
	LoopTickTimeout time.Duration `yaml:"loop_tick_timeout"`

	// GracefulShutdownTimeout is the max time to wait for in-flight
	// ticks to complete during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// OrphanDetectionInterval is how often to scan for leases whose
	// lease_expires_at has passed without being renewed or released.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// OrphanThreshold is how long a lease can sit expired before the
	// orphan sweep force-releases it.
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             5,
		MaxConcurrentLoops:      50,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		LoopTickTimeout:         30 * time.Second,
		GracefulShutdownTimeout: 30 * time.Second,
		OrphanDetectionInterval: 1 * time.Minute,
		OrphanThreshold:         2 * time.Minute,
	}
}
