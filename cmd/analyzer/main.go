// Command analyzer runs the 4D Vision Analyzer service: the
// admission handler, the leased-queue worker pool fanning out to the
// six shipped detectors, and scene-summary aggregation, wired onto the
// shared bus/database runtime (§4.6-§4.9).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bodybroker/core/pkg/bus"
	"github.com/bodybroker/core/pkg/config"
	"github.com/bodybroker/core/pkg/database"
	"github.com/bodybroker/core/pkg/health"
	"github.com/bodybroker/core/pkg/logging"
	"github.com/bodybroker/core/pkg/metrics"
	"github.com/bodybroker/core/pkg/runtime"
	"github.com/bodybroker/core/pkg/vision"
	"github.com/bodybroker/core/pkg/vision/detector"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "analyzer: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	logger, err := logging.New("analyzer")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.LoadAnalyzerConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.NewClient(ctx, database.Config{URL: cfg.Repo.URL, MinConns: cfg.Repo.MinConns, MaxConns: cfg.Repo.MaxConns})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	messageBus, err := bus.Connect(cfg.Bus.URL, logger)
	if err != nil {
		db.Close()
		return fmt.Errorf("connect bus: %w", err)
	}

	m := metrics.New()

	repo := vision.NewPgxRepository(db.Pool())

	registry := vision.NewRegistry()
	detector.RegisterDefaults(registry)
	registry.Build([]string{"animation", "physics", "rendering", "lighting", "performance", "flow"}, nil)

	admission := vision.NewAdmissionHandler(repo, logger)
	pool := vision.NewPool(repo, registry, messageBus, m, cfg.WorkerCount, cfg.PollInterval, cfg.OrphanThreshold, logger)

	svc := runtime.New("analyzer", logger, messageBus, db, m, ":9091", cfg.GracePeriod)

	if err := svc.Subscribe(bus.VisionAnalyzeRequest, bus.VisionAnalyzeWorkersGroup, admission.Handle); err != nil {
		return fmt.Errorf("subscribe analyze requests: %w", err)
	}

	poolCtx, cancelPool := context.WithCancel(ctx)
	pool.Start(poolCtx)
	svc.Register("vision-worker-pool", func() {
		cancelPool()
		pool.Stop()
	})

	checker := func(checkCtx context.Context) health.Record {
		depth, err := repo.PendingCount(checkCtx)
		if err != nil {
			return health.Record{Service: "analyzer", Status: health.StatusUnhealthy, Issues: []string{"queue depth check failed: " + err.Error()}}
		}
		m.QueueDepth.Set(float64(depth))

		h := pool.Health(depth, cfg.DegradedQueueDepth)
		m.WorkersLive.Set(float64(h.ActiveWorkers))

		status := health.StatusHealthy
		var issues []string
		if h.Degraded {
			status = health.StatusDegraded
			issues = append(issues, fmt.Sprintf("queue depth %d exceeds degraded threshold %d", depth, cfg.DegradedQueueDepth))
		}
		if !h.IsHealthy && !h.Degraded {
			status = health.StatusUnhealthy
			issues = append(issues, "no active workers")
		}
		active := h.ActiveWorkers
		return health.Record{
			Service:     "analyzer",
			Status:      status,
			Issues:      issues,
			QueueDepth:  &depth,
			WorkersLive: &active,
		}
	}
	publisher := health.NewPublisher(messageBus, checker, bus.VisionHealth, bus.SysHealth4DVision, logger)
	publisherCtx, cancelPublisher := context.WithCancel(ctx)
	go publisher.Run(publisherCtx)
	svc.Register("health-publisher", cancelPublisher)

	logger.Info("analyzer service starting")
	return svc.Run(ctx)
}
