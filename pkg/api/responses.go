package api

import "time"

// LoopResponse is the wire representation of a loop row, returned by the
// enroll and active-loop-lookup endpoints.
type LoopResponse struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	RepoFullName       string    `json:"repo_full_name"`
	PRNumber           *int      `json:"pr_number,omitempty"`
	ThreadID           string    `json:"thread_id"`
	State              string    `json:"state"`
	PlanApprovalPolicy string    `json:"plan_approval_policy"`
	CurrentHeadSha     *string   `json:"current_head_sha,omitempty"`
	FixAttemptCount    int       `json:"fix_attempt_count"`
	MaxFixAttempts     int       `json:"max_fix_attempts"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// WebhookAckResponse is returned by the GitHub webhook receiver endpoint.
type WebhookAckResponse struct {
	DeliveryID string `json:"delivery_id"`
	Outcome    string `json:"outcome"`
}

// ManualStopResponse is returned by POST /api/v1/loops/:id/manual-stop.
type ManualStopResponse struct {
	LoopID  string `json:"loop_id"`
	Message string `json:"message"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string                 `json:"status"`
	Version    string                 `json:"version"`
	Checks     map[string]HealthCheck `json:"checks"`
	WorkerPool *PoolHealthResponse    `json:"worker_pool,omitempty"`
}

// HealthCheck represents the status of a single health check component.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// PoolHealthResponse mirrors queue.PoolHealth for the health endpoint; kept
// as a distinct wire type rather than embedding queue.PoolHealth directly so
// the response shape does not change silently if the internal struct does.
type PoolHealthResponse struct {
	IsHealthy     bool `json:"is_healthy"`
	ActiveWorkers int  `json:"active_workers"`
	TotalWorkers  int  `json:"total_workers"`
	ActiveLeases  int  `json:"active_leases"`
	OutboxBacklog int  `json:"outbox_backlog"`
}
