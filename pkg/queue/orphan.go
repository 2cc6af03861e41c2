package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sdlcloop/controller/ent/looplease"
)

// orphanState tracks orphan detection metrics (thread-safe).
type orphanState struct {
	mu               sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// runOrphanDetection periodically scans for loop leases whose
// lease_expires_at has passed without renewal and force-releases them.
// All pods run this independently — the release is a CAS-free clear of
// lease_owner, idempotent across concurrent scanners.
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Queue.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.detectAndRecoverOrphans(ctx); err != nil {
				slog.Error("Orphan detection failed", "error", err)
			}
		}
	}
}

// detectAndRecoverOrphans clears lease_owner on every lease whose
// lease_expires_at has been in the past for longer than OrphanThreshold —
// this operationalizes the loop lease's steal semantics as a background
// sweep rather than leaving a dead worker's loop stuck until some other
// worker happens to poll it (Acquire already steals an expired lease on
// contact, but a loop nobody polls otherwise sits leased-but-abandoned).
func (p *WorkerPool) detectAndRecoverOrphans(ctx context.Context) error {
	threshold := time.Now().Add(-p.cfg.Queue.OrphanThreshold)

	n, err := p.client.LoopLease.Update().
		Where(looplease.LeaseOwnerNotNil(), looplease.LeaseExpiresAtLT(threshold)).
		ClearLeaseOwner().
		Save(ctx)

	p.orphans.mu.Lock()
	p.orphans.lastOrphanScan = time.Now()
	if err == nil {
		p.orphans.orphansRecovered += n
	}
	p.orphans.mu.Unlock()

	if err != nil {
		return err
	}
	if n > 0 {
		slog.Warn("Recovered orphaned loop leases", "count", n)
	}
	return nil
}
