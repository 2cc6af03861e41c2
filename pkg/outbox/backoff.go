package outbox

import "time"

// ComputeBackoff returns the retryAt for attempt k, per the fixed formula
// now + min(maxBackoffMs, baseBackoffMs * 2^max(0, k-1)).
func ComputeBackoff(now time.Time, attempt int, baseBackoffMs, maxBackoffMs int64) time.Time {
	exp := attempt - 1
	if exp < 0 {
		exp = 0
	}
	delayMs := baseBackoffMs
	for i := 0; i < exp && delayMs < maxBackoffMs; i++ {
		delayMs *= 2
	}
	if delayMs > maxBackoffMs {
		delayMs = maxBackoffMs
	}
	return now.Add(time.Duration(delayMs) * time.Millisecond)
}

// ActionType enumerates the outbox action kinds.
type ActionType string

const (
	ActionPublishStatusComment ActionType = "publish_status_comment"
	ActionPublishCheckSummary  ActionType = "publish_check_summary"
	ActionEnqueueFixTask       ActionType = "enqueue_fix_task"
	ActionPublishVideoLink     ActionType = "publish_video_link"
	ActionEmitTelemetry        ActionType = "emit_telemetry"
)

// SupersessionGroup enumerates the fixed equivalence classes of
// interchangeable outbox intent.
type SupersessionGroup string

const (
	GroupPublicationStatus SupersessionGroup = "publication_status"
	GroupFixTaskEnqueue    SupersessionGroup = "fix_task_enqueue"
	GroupPublicationVideo  SupersessionGroup = "publication_video"
	GroupTelemetry         SupersessionGroup = "telemetry"
)

// SupersessionGroupFor derives the fixed supersession group for an action
// type: publish_status_comment and publish_check_summary share
// publication_status; the others map one-to-one.
func SupersessionGroupFor(actionType ActionType) SupersessionGroup {
	switch actionType {
	case ActionPublishStatusComment, ActionPublishCheckSummary:
		return GroupPublicationStatus
	case ActionEnqueueFixTask:
		return GroupFixTaskEnqueue
	case ActionPublishVideoLink:
		return GroupPublicationVideo
	case ActionEmitTelemetry:
		return GroupTelemetry
	default:
		return GroupTelemetry
	}
}
