// Package queue implements the worker pool that ticks loops: polling for
// leasable loops, draining their signal inbox and outbox, and recovering
// leases orphaned by a crashed worker.
package queue

import (
	"errors"
	"time"
)

// Sentinel errors for queue operations.
var (
	// ErrNoLoopsAvailable indicates no non-terminal loop exists to poll.
	ErrNoLoopsAvailable = errors.New("no loops available")

	// ErrAtCapacity indicates the global concurrent-loop limit has been reached.
	ErrAtCapacity = errors.New("at capacity")
)

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	DBReachable      bool           `json:"db_reachable"`
	DBError          string         `json:"db_error,omitempty"`
	PodID            string         `json:"pod_id"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	ActiveLeases     int            `json:"active_leases"`
	MaxConcurrent    int            `json:"max_concurrent"`
	OutboxBacklog    int            `json:"outbox_backlog"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"` // "idle" or "working"
	CurrentLoopID  string    `json:"current_loop_id,omitempty"`
	TicksProcessed int       `json:"ticks_processed"`
	LastActivity   time.Time `json:"last_activity"`
}
