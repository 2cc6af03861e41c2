package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sdlcloop/controller/ent"
	"github.com/sdlcloop/controller/ent/loop"
	"github.com/sdlcloop/controller/ent/outboxrow"
	"github.com/sdlcloop/controller/pkg/config"
	"github.com/sdlcloop/controller/pkg/external"
	"github.com/sdlcloop/controller/pkg/looplease"
	"github.com/sdlcloop/controller/pkg/outbox"
	"github.com/sdlcloop/controller/pkg/realtime"
	"github.com/sdlcloop/controller/pkg/signalinbox"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

var nonTerminalStates = []loop.State{
	loop.StatePlanning, loop.StateImplementing, loop.StateReviewing,
	loop.StateUiTesting, loop.StatePrBabysitting,
	loop.StateEnrolled, loop.StateGatesRunning, loop.StateVideoPending,
	loop.StateHumanReviewReady, loop.StateVideoDegradedReady,
	loop.StateBlockedOnAgentFixes, loop.StateBlockedOnCi,
	loop.StateBlockedOnReviewThreads, loop.StateBlockedOnHumanFeedback,
}

// Worker is a single queue worker: it polls for a leasable loop, drains one
// signal-inbox tick, then drains one outbox action, each under its own
// self-contained lease acquire/release cycle (the concurrency control unit
// is the loop lease, not a row-level DB lock on the loop itself).
type Worker struct {
	id            string
	podID         string
	client        *ent.Client
	leaseDB       looplease.Querier
	queueCfg      *config.QueueConfig
	guardrailsCfg *config.GuardrailsConfig
	outboxCfg     *config.OutboxConfig
	tickDeps      signalinbox.Deps
	publishers    external.Publishers
	events        *realtime.EventPublisher // nil disables realtime broadcast
	pool          LeaseRegistry
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup

	mu             sync.RWMutex
	status         WorkerStatus
	currentLoopID  string
	ticksProcessed int
	lastActivity   time.Time
}

// LeaseRegistry is the subset of WorkerPool used by Worker to record which
// loop it is currently ticking.
type LeaseRegistry interface {
	RegisterActiveLoop(loopID string)
	UnregisterActiveLoop(loopID string)
}

// NewWorker creates a new queue worker.
func NewWorker(
	id, podID string,
	client *ent.Client,
	leaseDB looplease.Querier,
	queueCfg *config.QueueConfig,
	guardrailsCfg *config.GuardrailsConfig,
	outboxCfg *config.OutboxConfig,
	tickDeps signalinbox.Deps,
	publishers external.Publishers,
	events *realtime.EventPublisher,
	pool LeaseRegistry,
) *Worker {
	return &Worker{
		id:            id,
		podID:         podID,
		client:        client,
		leaseDB:       leaseDB,
		queueCfg:      queueCfg,
		guardrailsCfg: guardrailsCfg,
		outboxCfg:     outboxCfg,
		tickDeps:      tickDeps,
		publishers:    publishers,
		events:        events,
		pool:          pool,
		stopCh:        make(chan struct{}),
		status:        WorkerStatusIdle,
		lastActivity:  time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:             w.id,
		Status:         string(w.status),
		CurrentLoopID:  w.currentLoopID,
		TicksProcessed: w.ticksProcessed,
		LastActivity:   w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoLoopsAvailable) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing loop", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.queueCfg.PollInterval
	jitter := w.queueCfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// pollAndProcess checks capacity, picks a candidate loop, runs one
// signal-inbox tick, then attempts to drain one outbox action.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	activeLeases, err := w.client.LoopLease.Query().
		Where(looplease.LeaseOwnerNotNil()).
		Count(ctx)
	if err != nil {
		return fmt.Errorf("checking active leases: %w", err)
	}
	if activeLeases >= w.queueCfg.MaxConcurrentLoops {
		return ErrAtCapacity
	}

	loopRow, err := w.pickCandidateLoop(ctx)
	if err != nil {
		return err
	}

	log := slog.With("loop_id", loopRow.ID, "worker_id", w.id)

	w.setStatus(WorkerStatusWorking, loopRow.ID)
	defer w.setStatus(WorkerStatusIdle, "")
	w.pool.RegisterActiveLoop(loopRow.ID)
	defer w.pool.UnregisterActiveLoop(loopRow.ID)

	tickCtx, cancel := context.WithTimeout(ctx, w.queueCfg.LoopTickTimeout)
	defer cancel()

	now := time.Now()
	guardrailRuntime := &signalinbox.GuardrailRuntimeInput{
		KillSwitchEnabled:   w.guardrailsCfg.KillSwitchEnabled,
		IterationCount:      loopRow.FixAttemptCount,
		MaxIterations:       &w.guardrailsCfg.MaxIterationsDefault,
		ManualIntentAllowed: w.guardrailsCfg.ManualIntentAllowedDefault,
	}

	result, err := signalinbox.RunBestEffortSignalInboxTick(tickCtx, w.client, w.tickDeps, loopRow.ID, w.id, guardrailRuntime, now)
	if err != nil {
		return fmt.Errorf("signal inbox tick: %w", err)
	}

	if result.Processed {
		log.Info("Signal processed", "signal_id", result.SignalID, "cause_type", result.CauseType, "runtime_action", result.RuntimeAction)
		w.publishSignalReceived(tickCtx, loopRow.ID, result.CauseType)
		w.mu.Lock()
		w.ticksProcessed++
		w.mu.Unlock()
	} else {
		log.Debug("Tick did not process a signal", "reason", result.Reason)
	}

	if err := w.drainOneOutboxAction(tickCtx, loopRow.ID); err != nil {
		log.Warn("Outbox drain attempt failed", "error", err)
	}

	return nil
}

// pickCandidateLoop selects the least-recently-touched non-terminal loop.
// Contention between workers targeting the same loop is resolved by the
// loop lease inside RunBestEffortSignalInboxTick (a lease_held outcome is
// not an error), not by a row-level lock here.
func (w *Worker) pickCandidateLoop(ctx context.Context) (*ent.Loop, error) {
	row, err := w.client.Loop.Query().
		Where(loop.StateIn(nonTerminalStates...)).
		Order(ent.Asc(loop.FieldUpdatedAt)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNoLoopsAvailable
		}
		return nil, fmt.Errorf("query candidate loop: %w", err)
	}
	return row, nil
}

// drainOneOutboxAction acquires the loop lease, claims at most one pending
// outbox row, dispatches it to the matching publisher, and completes it —
// all within one self-contained lease cycle, mirroring the signal-inbox
// tick's own acquire/use/release pattern.
func (w *Worker) drainOneOutboxAction(ctx context.Context, loopID string) error {
	now := time.Now()
	acquire, err := looplease.Acquire(ctx, w.leaseDB, loopID, w.id, w.queueCfg.LoopTickTimeout, now)
	if err != nil {
		return fmt.Errorf("acquire lease for outbox drain: %w", err)
	}
	if !acquire.Acquired {
		return nil
	}
	defer func() {
		if _, relErr := looplease.Release(ctx, w.leaseDB, loopID, w.id, time.Now()); relErr != nil {
			slog.Warn("failed to release lease after outbox drain", "loop_id", loopID, "error", relErr)
		}
	}()

	claimed, err := outbox.Claim(ctx, w.client, outbox.ClaimInput{
		LoopID:     loopID,
		LeaseOwner: w.id,
		LeaseEpoch: acquire.LeaseEpoch,
		Now:        now,
	})
	if err != nil {
		if errors.Is(err, outbox.ErrLeaseInvalid) {
			return nil
		}
		return fmt.Errorf("claim outbox row: %w", err)
	}
	if claimed == nil {
		return nil
	}

	ref, dispatchErr := w.dispatchOutboxAction(ctx, claimed)

	complete := outbox.CompleteInput{
		OutboxID:      claimed.ID,
		LeaseOwner:    w.id,
		Succeeded:     dispatchErr == nil,
		Retriable:     dispatchErr != nil,
		MaxAttempts:   w.outboxCfg.MaxAttempts,
		BaseBackoffMs: w.outboxCfg.BaseBackoffMs,
		MaxBackoffMs:  w.outboxCfg.MaxBackoffMs,
		Now:           time.Now(),
	}
	if dispatchErr != nil {
		complete.ErrorClass = "dispatch_error"
		complete.ErrorMessage = dispatchErr.Error()
	}
	_ = ref

	if err := outbox.Complete(ctx, w.client, complete); err != nil {
		return fmt.Errorf("complete outbox row %s: %w", claimed.ID, err)
	}

	settled, err := w.client.OutboxRow.Get(ctx, claimed.ID)
	if err != nil {
		return fmt.Errorf("reload outbox row %s: %w", claimed.ID, err)
	}
	if settled.Status == outboxrow.StatusPending {
		// Rescheduled for retry; not settled yet.
		return nil
	}
	w.publishOutboxSettled(ctx, loopID, claimed, settled.Status)

	return nil
}

// dispatchOutboxAction routes a claimed outbox row to the matching
// publisher interface.
func (w *Worker) dispatchOutboxAction(ctx context.Context, row *ent.OutboxRow) (external.CommentRef, error) {
	switch row.ActionType {
	case outboxrow.ActionTypePublishStatusComment:
		if w.publishers.Status == nil {
			return external.CommentRef{}, fmt.Errorf("no StatusPublisher wired")
		}
		return w.publishers.Status.PublishStatusComment(ctx, row.LoopID, row.Payload)
	case outboxrow.ActionTypePublishCheckSummary:
		if w.publishers.Checks == nil {
			return external.CommentRef{}, fmt.Errorf("no CheckSummaryPublisher wired")
		}
		return w.publishers.Checks.PublishCheckSummary(ctx, row.LoopID, row.Payload)
	case outboxrow.ActionTypePublishVideoLink:
		if w.publishers.Video == nil {
			return external.CommentRef{}, fmt.Errorf("no VideoLinkPublisher wired")
		}
		return w.publishers.Video.PublishVideoLink(ctx, row.LoopID, row.Payload)
	case outboxrow.ActionTypeEmitTelemetry:
		if w.publishers.Telemetry == nil {
			return external.CommentRef{}, fmt.Errorf("no TelemetryEmitter wired")
		}
		return external.CommentRef{}, w.publishers.Telemetry.EmitTelemetry(ctx, row.LoopID, row.Payload)
	case outboxrow.ActionTypeEnqueueFixTask:
		if w.tickDeps.FollowUpQueuer == nil {
			return external.CommentRef{}, fmt.Errorf("no FollowUpQueuer wired")
		}
		userID, _ := row.Payload["userId"].(string)
		threadID, _ := row.Payload["threadId"].(string)
		text, _ := row.Payload["text"].(string)
		return external.CommentRef{}, w.tickDeps.FollowUpQueuer.EnqueueFollowUp(ctx, external.FollowUpRequest{
			UserID:   userID,
			ThreadID: threadID,
			Messages: []external.Message{
				{Role: "user", Parts: []external.MessagePart{{Type: "text", Text: text}}},
			},
		})
	default:
		return external.CommentRef{}, fmt.Errorf("unknown outbox action type %q", row.ActionType)
	}
}

func (w *Worker) publishSignalReceived(ctx context.Context, loopID, causeType string) {
	if w.events == nil {
		return
	}
	if err := w.events.PublishSignalReceived(ctx, loopID, realtime.SignalReceivedPayload{
		Type:      realtime.EventTypeSignalReceived,
		LoopID:    loopID,
		CauseType: causeType,
		Timestamp: time.Now().Format(time.RFC3339Nano),
	}); err != nil {
		slog.Warn("failed to publish signal received event", "loop_id", loopID, "error", err)
	}
}

func (w *Worker) publishOutboxSettled(ctx context.Context, loopID string, row *ent.OutboxRow, status outboxrow.Status) {
	if w.events == nil {
		return
	}
	if err := w.events.PublishOutboxActionSettled(ctx, loopID, realtime.OutboxActionSettledPayload{
		Type:       realtime.EventTypeOutboxActionSettled,
		LoopID:     loopID,
		OutboxID:   row.ID,
		ActionType: string(row.ActionType),
		Status:     string(status),
		Timestamp:  time.Now().Format(time.RFC3339Nano),
	}); err != nil {
		slog.Warn("failed to publish outbox settled event", "loop_id", loopID, "error", err)
	}
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, loopID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentLoopID = loopID
	w.lastActivity = time.Now()
}
