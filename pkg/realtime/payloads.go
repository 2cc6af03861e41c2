package realtime

// LoopStateChangedPayload is the payload for loop.state_changed events.
// Published on every accepted state-machine transition.
type LoopStateChangedPayload struct {
	Type        string `json:"type"` // always EventTypeLoopStateChanged
	LoopID      string `json:"loop_id"`
	FromState   string `json:"from_state"`
	ToState     string `json:"to_state"`
	Event       string `json:"event"`
	LoopVersion int    `json:"loop_version"`
	Timestamp   string `json:"timestamp"` // RFC3339Nano
}

// GateRunCompletedPayload is the payload for gate.run_completed events.
// Published whenever a CI, review-thread, deep-review, or Carmack-review
// gate evaluation is persisted.
type GateRunCompletedPayload struct {
	Type       string `json:"type"` // always EventTypeGateRunCompleted
	LoopID     string `json:"loop_id"`
	GateKind   string `json:"gate_kind"` // ci, review_thread, deep_review, carmack_review
	HeadSha    string `json:"head_sha"`
	Status     string `json:"status"`
	GatePassed bool   `json:"gate_passed"`
	Timestamp  string `json:"timestamp"`
}

// ArtifactStatusChangedPayload is the payload for artifact.status_changed
// events. Published on artifact creation, approval, and supersession.
type ArtifactStatusChangedPayload struct {
	Type       string `json:"type"` // always EventTypeArtifactStatusChanged
	LoopID     string `json:"loop_id"`
	ArtifactID string `json:"artifact_id"`
	Phase      string `json:"phase"`
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
}

// OutboxActionSettledPayload is the payload for outbox.action_settled
// events. Published by the queue worker when a dispatched outbox row
// reaches completed or failed; rows canceled by supersession or a manual
// stop are not published.
type OutboxActionSettledPayload struct {
	Type       string `json:"type"` // always EventTypeOutboxActionSettled
	LoopID     string `json:"loop_id"`
	OutboxID   string `json:"outbox_id"`
	ActionType string `json:"action_type"`
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
}

// SignalReceivedPayload is the payload for signal.received transient
// events — high frequency, ephemeral, used only to animate an "activity"
// indicator on the dashboard.
type SignalReceivedPayload struct {
	Type      string `json:"type"` // always EventTypeSignalReceived
	LoopID    string `json:"loop_id"`
	CauseType string `json:"cause_type"`
	Timestamp string `json:"timestamp"`
}
