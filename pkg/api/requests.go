package api

// EnrollRequest is the HTTP request body for POST /api/v1/loops.
type EnrollRequest struct {
	UserID             string `json:"user_id"`
	RepoFullName       string `json:"repo_full_name"`
	PRNumber           *int   `json:"pr_number,omitempty"`
	ThreadID           string `json:"thread_id"`
	CurrentHeadSha     string `json:"current_head_sha,omitempty"`
	PlanApprovalPolicy string `json:"plan_approval_policy,omitempty"`
	MaxFixAttempts     int    `json:"max_fix_attempts,omitempty"`
}

// ApprovePlanRequest is the HTTP request body for POST /api/v1/loops/:id/approve-plan.
type ApprovePlanRequest struct {
	ArtifactID string `json:"artifact_id"`
	UserID     string `json:"user_id"`
}

// ManualStopRequest is the HTTP request body for POST /api/v1/loops/:id/manual-stop.
type ManualStopRequest struct {
	Reason string `json:"reason"`
}

// DaemonTerminalEventRequest is the HTTP request body for
// POST /api/v1/daemon-events/terminal, reported by the coding-agent daemon
// when its attached terminal session ends.
type DaemonTerminalEventRequest struct {
	EventID string `json:"event_id"`
	LoopID  string `json:"loop_id"`
}
