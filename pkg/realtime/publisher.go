package realtime

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventPublisher publishes loop lifecycle events for WebSocket delivery.
// Persistent events are stored in the realtime_events table then broadcast
// via NOTIFY. Transient events (signal-received pings) are broadcast via
// NOTIFY only.
//
// Each public method accepts a specific typed payload struct — see
// payloads.go. Internally, payloads are marshaled to JSON and routed to the
// appropriate channel (derived from loopID) via persistAndNotify or
// notifyOnly.
type EventPublisher struct {
	db *sql.DB
}

// NewEventPublisher creates a new EventPublisher.
// The db parameter should be the *sql.DB from database.Client.DB().
func NewEventPublisher(db *sql.DB) *EventPublisher {
	return &EventPublisher{db: db}
}

// PublishLoopStateChanged persists and broadcasts a loop.state_changed
// event to the loop's channel and, transiently, to the global loops
// channel that feeds the active-loop dashboard.
func (p *EventPublisher) PublishLoopStateChanged(ctx context.Context, loopID string, payload LoopStateChangedPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal LoopStateChangedPayload: %w", err)
	}
	var firstErr error
	if err := p.persistAndNotify(ctx, loopID, LoopChannel(loopID), payloadJSON); err != nil {
		firstErr = err
	}
	if err := p.notifyOnly(ctx, GlobalLoopsChannel, payloadJSON); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// PublishGateRunCompleted persists and broadcasts a gate.run_completed event.
func (p *EventPublisher) PublishGateRunCompleted(ctx context.Context, loopID string, payload GateRunCompletedPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal GateRunCompletedPayload: %w", err)
	}
	return p.persistAndNotify(ctx, loopID, LoopChannel(loopID), payloadJSON)
}

// PublishArtifactStatusChanged persists and broadcasts an
// artifact.status_changed event.
func (p *EventPublisher) PublishArtifactStatusChanged(ctx context.Context, loopID string, payload ArtifactStatusChangedPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal ArtifactStatusChangedPayload: %w", err)
	}
	return p.persistAndNotify(ctx, loopID, LoopChannel(loopID), payloadJSON)
}

// PublishOutboxActionSettled persists and broadcasts an
// outbox.action_settled event.
func (p *EventPublisher) PublishOutboxActionSettled(ctx context.Context, loopID string, payload OutboxActionSettledPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal OutboxActionSettledPayload: %w", err)
	}
	return p.persistAndNotify(ctx, loopID, LoopChannel(loopID), payloadJSON)
}

// PublishSignalReceived broadcasts a signal.received transient event (no DB
// persistence) — fired by the queue worker after a signal-inbox tick has
// processed a signal.
func (p *EventPublisher) PublishSignalReceived(ctx context.Context, loopID string, payload SignalReceivedPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal SignalReceivedPayload: %w", err)
	}
	return p.notifyOnly(ctx, LoopChannel(loopID), payloadJSON)
}

// --- Internal core methods ---

// persistAndNotify persists a pre-marshaled event to the database and broadcasts
// via NOTIFY in a single transaction (pg_notify is transactional — held until COMMIT).
func (p *EventPublisher) persistAndNotify(ctx context.Context, loopID, channel string, payloadJSON []byte) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var eventID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO realtime_events (loop_id, channel, payload, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		loopID, channel, payloadJSON, time.Now(),
	).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	notifyPayload, err := injectDBEventIDAndTruncate(payloadJSON, eventID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload)
	if err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event transaction: %w", err)
	}

	return nil
}

// notifyOnly broadcasts a pre-marshaled event via NOTIFY without persisting to DB.
func (p *EventPublisher) notifyOnly(ctx context.Context, channel string, payloadJSON []byte) error {
	notifyPayload, err := truncateIfNeeded(string(payloadJSON))
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload)
	if err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// --- Internal helpers ---

// injectDBEventIDAndTruncate adds db_event_id to the JSON payload for NOTIFY
// delivery and applies truncation if the result exceeds PostgreSQL's limit.
func injectDBEventIDAndTruncate(payloadJSON []byte, dbEventID int64) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(payloadJSON, &m); err != nil {
		return "", fmt.Errorf("failed to unmarshal payload for db_event_id injection: %w", err)
	}
	m["db_event_id"] = dbEventID

	enrichedBytes, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal enriched NOTIFY payload: %w", err)
	}

	return truncateIfNeeded(string(enrichedBytes))
}

// truncateIfNeeded returns the payload string as-is if it fits within
// PostgreSQL's 8000-byte NOTIFY limit, otherwise returns a minimal
// truncation envelope with only routing fields.
func truncateIfNeeded(payloadStr string) (string, error) {
	if len(payloadStr) <= 7900 {
		return payloadStr, nil
	}
	return buildTruncatedPayload([]byte(payloadStr))
}

// buildTruncatedPayload creates a minimal truncation envelope from the full
// JSON payload bytes, extracting only the routing fields the client needs
// to fetch the complete event from the database.
func buildTruncatedPayload(payloadBytes []byte) (string, error) {
	var routing struct {
		Type      string `json:"type"`
		LoopID    string `json:"loop_id"`
		DBEventID *int64 `json:"db_event_id,omitempty"`
	}
	if err := json.Unmarshal(payloadBytes, &routing); err != nil {
		return "", fmt.Errorf("failed to extract routing fields for truncation: %w", err)
	}

	truncated := map[string]any{
		"type":      routing.Type,
		"loop_id":   routing.LoopID,
		"truncated": true,
	}
	if routing.DBEventID != nil {
		truncated["db_event_id"] = *routing.DBEventID
	}

	truncBytes, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated payload: %w", err)
	}
	return string(truncBytes), nil
}
