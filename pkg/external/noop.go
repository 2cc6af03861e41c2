package external

import (
	"context"
	"log/slog"
)

// NoopFollowUpQueuer logs and discards follow-up delivery requests. Used
// until a real coding-agent transport is wired in; the signal-inbox tick
// still advances correctly, it simply has nowhere to deliver the message.
type NoopFollowUpQueuer struct{}

func (NoopFollowUpQueuer) EnqueueFollowUp(ctx context.Context, req FollowUpRequest) error {
	slog.Info("noop follow-up queuer: discarding follow-up",
		"user_id", req.UserID, "thread_id", req.ThreadID, "message_count", len(req.Messages))
	return nil
}

// NoopPublisher implements StatusPublisher, CheckSummaryPublisher,
// VideoLinkPublisher and TelemetryEmitter as logging no-ops, so
// NewWorkerPool always has a non-nil Publishers bundle to call.
type NoopPublisher struct{}

func (NoopPublisher) PublishStatusComment(ctx context.Context, loopID string, payload map[string]any) (CommentRef, error) {
	slog.Info("noop publisher: status comment", "loop_id", loopID)
	return CommentRef{}, nil
}

func (NoopPublisher) PublishCheckSummary(ctx context.Context, loopID string, payload map[string]any) (CommentRef, error) {
	slog.Info("noop publisher: check summary", "loop_id", loopID)
	return CommentRef{}, nil
}

func (NoopPublisher) PublishVideoLink(ctx context.Context, loopID string, payload map[string]any) (CommentRef, error) {
	slog.Info("noop publisher: video link", "loop_id", loopID)
	return CommentRef{}, nil
}

func (NoopPublisher) EmitTelemetry(ctx context.Context, loopID string, payload map[string]any) error {
	slog.Info("noop publisher: telemetry", "loop_id", loopID)
	return nil
}

// DefaultPublishers bundles NoopPublisher into every publication slot.
func DefaultPublishers() Publishers {
	p := NoopPublisher{}
	return Publishers{Status: p, Checks: p, Video: p, Telemetry: p}
}
