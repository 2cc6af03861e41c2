package queue

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sdlcloop/controller/ent"
	"github.com/sdlcloop/controller/ent/looplease"
	"github.com/sdlcloop/controller/ent/outboxrow"
	"github.com/sdlcloop/controller/pkg/config"
	"github.com/sdlcloop/controller/pkg/external"
	llease "github.com/sdlcloop/controller/pkg/looplease"
	"github.com/sdlcloop/controller/pkg/realtime"
	"github.com/sdlcloop/controller/pkg/signalinbox"
)

// WorkerPool manages a pool of queue workers ticking loops for one
// pod/replica. Global concurrency across pods is bounded by the loop
// lease table's row count, not a separate in-memory counter.
type WorkerPool struct {
	podID      string
	client     *ent.Client
	leaseDB    llease.Querier
	cfg        *config.Config
	tickDeps   signalinbox.Deps
	publishers external.Publishers
	events     *realtime.EventPublisher

	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	activeLoops map[string]struct{}
	mu          sync.RWMutex
	started     bool

	orphans orphanState
}

// NewWorkerPool creates a new worker pool. leaseDB is a raw *sql.DB (or
// equivalent) used by pkg/looplease's hand-rolled CAS queries; events may
// be nil to disable realtime broadcast (e.g. in tests).
func NewWorkerPool(
	podID string,
	client *ent.Client,
	leaseDB *sql.DB,
	cfg *config.Config,
	tickDeps signalinbox.Deps,
	publishers external.Publishers,
	events *realtime.EventPublisher,
) *WorkerPool {
	return &WorkerPool{
		podID:       podID,
		client:      client,
		leaseDB:     leaseDB,
		cfg:         cfg,
		tickDeps:    tickDeps,
		publishers:  publishers,
		events:      events,
		workers:     make([]*Worker, 0, cfg.Queue.WorkerCount),
		stopCh:      make(chan struct{}),
		activeLoops: make(map[string]struct{}),
	}
}

// Start spawns worker goroutines and the orphan detection background task.
// Safe to call multiple times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return nil
	}
	p.started = true

	slog.Info("Starting worker pool", "pod_id", p.podID, "worker_count", p.cfg.Queue.WorkerCount)

	for i := 0; i < p.cfg.Queue.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		worker := NewWorker(
			workerID, p.podID, p.client, p.leaseDB,
			p.cfg.Queue, p.cfg.Guardrails, p.cfg.Outbox,
			p.tickDeps, p.publishers, p.events, p,
		)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanDetection(ctx)
	}()

	slog.Info("Worker pool started")
	return nil
}

// Stop signals all workers and the orphan scan to stop, and waits for them
// to finish. Workers finish their current tick before exiting.
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")

	active := p.getActiveLoopIDs()
	if len(active) > 0 {
		slog.Info("Waiting for active loop ticks to complete", "count", len(active), "loop_ids", active)
	}

	for _, worker := range p.workers {
		worker.Stop()
	}

	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("Worker pool stopped gracefully")
}

// RegisterActiveLoop records that a loop is currently being ticked by this pod.
func (p *WorkerPool) RegisterActiveLoop(loopID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeLoops[loopID] = struct{}{}
}

// UnregisterActiveLoop removes a loop from the active set once its tick ends.
func (p *WorkerPool) UnregisterActiveLoop(loopID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeLoops, loopID)
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health() *PoolHealth {
	ctx := context.Background()

	activeLeases, errL := p.client.LoopLease.Query().
		Where(looplease.LeaseOwnerNotNil()).
		Count(ctx)
	if errL != nil {
		slog.Error("Failed to query active leases for health check", "pod_id", p.podID, "error", errL)
	}

	outboxBacklog, errO := p.client.OutboxRow.Query().
		Where(outboxrow.StatusEQ(outboxrow.StatusPending)).
		Count(ctx)
	if errO != nil {
		slog.Error("Failed to query outbox backlog for health check", "pod_id", p.podID, "error", errO)
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	dbHealthy := errL == nil && errO == nil
	isHealthy := len(p.workers) > 0 && dbHealthy

	p.orphans.mu.Lock()
	lastOrphanScan := p.orphans.lastOrphanScan
	orphansRecovered := p.orphans.orphansRecovered
	p.orphans.mu.Unlock()

	var dbError string
	if !dbHealthy {
		if errL != nil {
			dbError = fmt.Sprintf("active lease query failed: %v", errL)
		} else if errO != nil {
			dbError = fmt.Sprintf("outbox backlog query failed: %v", errO)
		}
	}

	return &PoolHealth{
		IsHealthy:        isHealthy,
		DBReachable:      dbHealthy,
		DBError:          dbError,
		PodID:            p.podID,
		ActiveWorkers:    activeWorkers,
		TotalWorkers:     len(p.workers),
		ActiveLeases:     activeLeases,
		MaxConcurrent:    p.cfg.Queue.MaxConcurrentLoops,
		OutboxBacklog:    outboxBacklog,
		WorkerStats:      workerStats,
		LastOrphanScan:   lastOrphanScan,
		OrphansRecovered: orphansRecovered,
	}
}

// getActiveLoopIDs returns IDs of loops currently being ticked (for logging).
func (p *WorkerPool) getActiveLoopIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.activeLoops))
	for id := range p.activeLoops {
		ids = append(ids, id)
	}
	return ids
}
