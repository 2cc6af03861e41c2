// Package external declares the narrow outbound interfaces the core
// depends on but does not implement: follow-up delivery, publication, and
// the CI required-checks lookup. Concrete GitHub/Linear/chat clients are
// explicitly out of scope for this core; callers inject an implementation.
package external

import "context"

// MessagePart is one part of a follow-up message; the core only ever
// constructs text parts.
type MessagePart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Message is one role-tagged message in a follow-up.
type Message struct {
	Role  string        `json:"role"`
	Parts []MessagePart `json:"parts"`
}

// FollowUpRequest is the payload passed to enqueueFollowUp.
type FollowUpRequest struct {
	UserID       string
	ThreadID     string
	ThreadChatID string
	Messages     []Message
}

// FollowUpQueuer delivers a follow-up message into the loop's agent
// thread; the signal-inbox router's sole point of contact with the agent.
type FollowUpQueuer interface {
	EnqueueFollowUp(ctx context.Context, req FollowUpRequest) error
}

// CommentRef identifies a published comment or check run for later
// reference (e.g. canonicalStatusCommentId).
type CommentRef struct {
	ID  string
	URL string
}

// StatusPublisher publishes a status comment for a loop.
type StatusPublisher interface {
	PublishStatusComment(ctx context.Context, loopID string, payload map[string]any) (CommentRef, error)
}

// CheckSummaryPublisher publishes a CI check-run summary for a loop.
type CheckSummaryPublisher interface {
	PublishCheckSummary(ctx context.Context, loopID string, payload map[string]any) (CommentRef, error)
}

// VideoLinkPublisher publishes a UI-smoke-test video capture link.
type VideoLinkPublisher interface {
	PublishVideoLink(ctx context.Context, loopID string, payload map[string]any) (CommentRef, error)
}

// TelemetryEmitter emits an arbitrary telemetry event keyed by name.
type TelemetryEmitter interface {
	EmitTelemetry(ctx context.Context, loopID string, payload map[string]any) error
}

// RequiredChecks is the three-tiered required-check snapshot the CI gate
// evaluator consumes.
type RequiredChecks struct {
	Ruleset          []string
	BranchProtection []string
	Allowlist        []string
}

// RequiredChecksProvider resolves the currently-configured required checks
// for a PR, from whichever GitHub API tier answers first.
type RequiredChecksProvider interface {
	GetRequiredChecksForPR(ctx context.Context, repo string, pr int) (RequiredChecks, error)
}

// Publishers bundles every outbound publication interface a worker needs;
// kept as one injected value so action dispatch doesn't thread four
// separate parameters through the worker pool.
type Publishers struct {
	Status  StatusPublisher
	Checks  CheckSummaryPublisher
	Video   VideoLinkPublisher
	Telemetry TelemetryEmitter
}
