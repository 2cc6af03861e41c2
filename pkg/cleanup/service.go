// Package cleanup provides data retention and cleanup services.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/sdlcloop/controller/ent"
	"github.com/sdlcloop/controller/ent/loop"
	"github.com/sdlcloop/controller/ent/paritymetricsample"
	"github.com/sdlcloop/controller/ent/realtimeevent"
	"github.com/sdlcloop/controller/ent/webhookdelivery"
	"github.com/sdlcloop/controller/pkg/config"
)

var terminalStates = []loop.State{
	loop.StateTerminatedPrClosed, loop.StateTerminatedPrMerged,
	loop.StateDone, loop.StateStopped,
}

// Service periodically enforces retention policies:
//   - Hard-deletes loops that have sat in a terminal state past the
//     retention window (cascades to their signals/outbox rows/artifacts)
//   - Removes completed WebhookDelivery rows past their retention window
//   - Removes RealtimeEvent rows older than their TTL
//   - Trims ParityMetricSample rows outside the configured window
//
// All operations are idempotent and safe to run from multiple pods.
type Service struct {
	config *config.RetentionConfig
	client *ent.Client

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, client *ent.Client) *Service {
	return &Service{config: cfg, client: client}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"terminated_loop_retention_days", s.config.TerminatedLoopRetentionDays,
		"webhook_delivery_retention", s.config.WebhookDeliveryRetention,
		"realtime_event_ttl", s.config.RealtimeEventTTL,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.deleteOldTerminatedLoops(ctx)
	s.deleteOldWebhookDeliveries(ctx)
	s.deleteOrphanedRealtimeEvents(ctx)
	s.trimParitySamples(ctx)
}

func (s *Service) deleteOldTerminatedLoops(ctx context.Context) {
	cutoff := time.Now().Add(-time.Duration(s.config.TerminatedLoopRetentionDays) * 24 * time.Hour)
	count, err := s.client.Loop.Delete().
		Where(loop.StateIn(terminalStates...), loop.UpdatedAtLT(cutoff)).
		Exec(ctx)
	if err != nil {
		slog.Error("Retention: terminated loop cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted terminated loops", "count", count)
	}
}

func (s *Service) deleteOldWebhookDeliveries(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.WebhookDeliveryRetention)
	count, err := s.client.WebhookDelivery.Delete().
		Where(webhookdelivery.CompletedAtNotNil(), webhookdelivery.CompletedAtLT(cutoff)).
		Exec(ctx)
	if err != nil {
		slog.Error("Retention: webhook delivery cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted completed webhook deliveries", "count", count)
	}
}

func (s *Service) deleteOrphanedRealtimeEvents(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.RealtimeEventTTL)
	count, err := s.client.RealtimeEvent.Delete().
		Where(realtimeevent.CreatedAtLT(cutoff)).
		Exec(ctx)
	if err != nil {
		slog.Error("Retention: realtime event cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted orphaned realtime events", "count", count)
	}
}

func (s *Service) trimParitySamples(ctx context.Context) {
	cutoff := time.Now().Add(-time.Duration(s.config.ParityMetricSampleRetentionDays) * 24 * time.Hour)
	count, err := s.client.ParityMetricSample.Delete().
		Where(paritymetricsample.ObservedAtLT(cutoff)).
		Exec(ctx)
	if err != nil {
		slog.Error("Retention: parity sample cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: trimmed parity metric samples", "count", count)
	}
}
