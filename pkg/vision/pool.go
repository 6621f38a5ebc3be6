package vision

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bodybroker/core/pkg/bus"
	"github.com/bodybroker/core/pkg/metrics"
)

// PoolHealth is the worker pool's point-in-time health snapshot.
type PoolHealth struct {
	IsHealthy     bool
	TotalWorkers  int
	ActiveWorkers int
	WorkerStats   []WorkerHealth
	Degraded      bool
	QueueDepth    int
}

// Pool manages a fixed-size set of vision Workers, mirroring the
// teacher's WorkerPool start/stop symmetry (pkg/queue/pool.go) against
// the analysis_queue lease instead of alert sessions.
type Pool struct {
	repo            Repository
	registry        *Registry
	bus             bus.Publisher
	metrics         *metrics.Metrics
	workerCount     int
	pollInterval    time.Duration
	orphanThreshold time.Duration
	logger          *zap.Logger

	workers     []*Worker
	stopCh      chan struct{}
	sweepWG     sync.WaitGroup
	stopOnce    sync.Once
	started     bool
	mu          sync.Mutex
}

// NewPool builds a Pool. m may be nil, in which case workers simply
// don't record per-finding/per-segment metrics.
func NewPool(repo Repository, registry *Registry, b bus.Publisher, m *metrics.Metrics, workerCount int, pollInterval, orphanThreshold time.Duration, logger *zap.Logger) *Pool {
	return &Pool{
		repo:            repo,
		registry:        registry,
		bus:             b,
		metrics:         m,
		workerCount:     workerCount,
		pollInterval:    pollInterval,
		orphanThreshold: orphanThreshold,
		logger:          logger,
		workers:         make([]*Worker, 0, workerCount),
		stopCh:          make(chan struct{}),
	}
}

// Start spawns workerCount goroutines. Safe to call once; subsequent
// calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		p.logger.Warn("vision pool already started, ignoring duplicate Start call")
		return
	}
	p.started = true

	p.logger.Info("starting vision worker pool", zap.Int("worker_count", p.workerCount))
	for i := 0; i < p.workerCount; i++ {
		w := NewWorker(fmt.Sprintf("vision-worker-%d", i), p.repo, p.registry, p.bus, p.pollInterval, p.metrics, p.logger)
		p.workers = append(p.workers, w)
		w.Start(ctx)
	}

	p.sweepWG.Add(1)
	go p.runOrphanSweep(ctx)
}

// runOrphanSweep periodically reclaims processing rows whose lease
// has gone stale (a worker crashed mid-segment), mirroring the
// teacher's ticker-driven orphan detection loop.
func (p *Pool) runOrphanSweep(ctx context.Context) {
	defer p.sweepWG.Done()
	ticker := time.NewTicker(p.orphanThreshold)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			n, err := p.repo.ResetStaleLeases(ctx, time.Now().Add(-p.orphanThreshold))
			if err != nil {
				p.logger.Error("vision pool: orphan sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				p.logger.Warn("vision pool: reclaimed stale leases", zap.Int("count", n))
			}
		}
	}
}

// Stop signals every worker to stop and waits for in-flight work to
// finish before returning (§4.6's shutdown contract).
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("stopping vision worker pool")
		close(p.stopCh)
		for _, w := range p.workers {
			w.Stop()
		}
		p.sweepWG.Wait()
		p.logger.Info("vision worker pool stopped")
	})
}

// Health aggregates per-worker health; queueDepth is supplied by the
// caller since counting pending rows needs a repository round trip the
// pool itself doesn't own.
func (p *Pool) Health(queueDepth, degradedThreshold int) PoolHealth {
	stats := make([]WorkerHealth, len(p.workers))
	active := 0
	for i, w := range p.workers {
		h := w.Health()
		stats[i] = h
		if h.Status == WorkerStatusWorking {
			active++
		}
	}
	degraded := queueDepth > degradedThreshold
	return PoolHealth{
		IsHealthy:     len(p.workers) > 0 && !degraded,
		TotalWorkers:  len(p.workers),
		ActiveWorkers: active,
		WorkerStats:   stats,
		Degraded:      degraded,
		QueueDepth:    queueDepth,
	}
}
