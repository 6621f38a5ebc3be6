// Command storymemory runs the Story Memory service: the per-player
// narrative state manager, event ingestor, drift/conflict detector,
// and multi-tier snapshot cache, wired onto the shared bus/database
// runtime (§4.1-§4.5).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/bodybroker/core/pkg/bus"
	"github.com/bodybroker/core/pkg/cache"
	"github.com/bodybroker/core/pkg/config"
	"github.com/bodybroker/core/pkg/database"
	"github.com/bodybroker/core/pkg/health"
	"github.com/bodybroker/core/pkg/logging"
	"github.com/bodybroker/core/pkg/metrics"
	"github.com/bodybroker/core/pkg/runtime"
	"github.com/bodybroker/core/pkg/story"
	"github.com/bodybroker/core/pkg/story/drift"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "storymemory: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	logger, err := logging.New("storymemory")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.LoadStoryConfig()
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

	repo := story.NewPgxRepository(db.Pool())

	// The cache's Loader reads straight through EnsurePlayer+GetSnapshot
	// on repo directly rather than through Manager.GetSnapshot, since
	// Manager needs the cache itself as its invalidator — constructing
	// a throwaway Manager just to get this method value would only add
	// indirection for the same two repo calls.
	loadSnapshot := func(ctx context.Context, playerID string) (*story.Snapshot, error) {
		if err := repo.EnsurePlayer(ctx, playerID, story.DarkWorldFamilies); err != nil {
			return nil, err
		}
		return repo.GetSnapshot(ctx, playerID)
	}
	redisOpts, err := redis.ParseURL(cfg.Cache.L2URL)
	if err != nil {
		return fmt.Errorf("parse CACHE_L2_URL: %w", err)
	}
	l2 := cache.NewRedisStore(redis.NewClient(redisOpts))

	snapshotCache, err := cache.New[*story.Snapshot](cache.Config{
		L1Capacity: cfg.Cache.L1Max,
		TTL:        cfg.Cache.TTL(),
		KeyPrefix:  "story:snapshot:",
	}, l2, loadSnapshot, m)
	if err != nil {
		return fmt.Errorf("build snapshot cache: %w", err)
	}
	manager := story.NewManager(repo, snapshotCache, messageBus, logger)

	ingestor := story.NewIngestor(manager, messageBus, logger)
	detector := drift.NewDetector(repo, messageBus, drift.Config{
		Tangential: cfg.Drift.Tangential,
		OffTheme:   cfg.Drift.OffTheme,
		ThemeMin:   cfg.Drift.ThemeMin,
	}, nil, cfg.DriftSuppress, m, logger)
	queryServer := story.NewQueryServer(manager, detector, snapshotCache, logger)

	svc := runtime.New("storymemory", logger, messageBus, db, m, ":9090", cfg.GracePeriod)

	if err := svc.Subscribe(bus.StoryEventsWildcard, "", ingestor.Handle); err != nil {
		return fmt.Errorf("subscribe story events: %w", err)
	}

	replySubjects := map[string]bus.ReplyHandler{
		bus.StoryGetSnapshot:                         queryServer.GetSnapshot,
		bus.StoryGetArcProgress:                       queryServer.GetArcProgress,
		bus.StoryGetRelationships:                     queryServer.GetRelationships,
		bus.StoryGetDarkWorldStanding:                 queryServer.GetDarkWorldStandings,
		bus.StoryCheckDrift:                           queryServer.CheckDrift,
		bus.StoryUpdatePrefix + "arc_progress":        queryServer.UpdateArcProgress,
		bus.StoryUpdatePrefix + "relationship":        queryServer.UpdateRelationship,
		bus.StoryUpdatePrefix + "dark_world_standing": queryServer.UpdateDarkWorldStanding,
	}
	for subject, handler := range replySubjects {
		if err := svc.SubscribeReply(subject, handler); err != nil {
			return fmt.Errorf("subscribe reply %s: %w", subject, err)
		}
	}

	driftCtx, cancelDrift := context.WithCancel(ctx)
	svc.RunPeriodic(driftCtx, cfg.DriftSuppress, detector.RunPeriodic)
	svc.Register("drift-periodic-sweep", cancelDrift)

	checker := func(checkCtx context.Context) health.Record {
		issues := []string(nil)
		status := health.StatusHealthy
		if err := db.Pool().Ping(checkCtx); err != nil {
			status = health.StatusUnhealthy
			issues = append(issues, "database unreachable: "+err.Error())
		}
		return health.Record{Service: "storymemory", Status: status, Issues: issues}
	}
	publisher := health.NewPublisher(messageBus, checker, bus.StoryHealth, "", logger)
	publisherCtx, cancelPublisher := context.WithCancel(ctx)
	go publisher.Run(publisherCtx)
	svc.Register("health-publisher", cancelPublisher)

	logger.Info("storymemory service starting")
	return svc.Run(ctx)
}
