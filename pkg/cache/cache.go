// Package cache implements the two-tier story snapshot cache (§4.3):
// a bounded in-process LRU backed by an external KV store with TTL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// KVStore is the L2 external store contract; satisfied by a thin
// go-redis wrapper (see redis.go).
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Loader fetches the current value from the owning state manager on a
// full cache miss (§4.3 step 3).
type Loader[T any] func(ctx context.Context, playerID string) (T, error)

// Metrics receives per-get outcomes so the caller can expose
// hit/miss counts and p50/p95/p99 get latency (§4.3 observability).
type Metrics interface {
	ObserveGet(hit bool, latency time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveGet(bool, time.Duration) {}

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// SnapshotCache is the two-tier cache from §4.3, generic over the
// cached value so it can wrap any state manager's snapshot type
// without pkg/cache depending on that type's package.
type SnapshotCache[T any] struct {
	mu       sync.Mutex
	l1       *lru.Cache[string, entry[T]]
	l1Cap    int
	l2       KVStore
	ttl      time.Duration

	keyPrefix string
	load      Loader[T]
	metrics   Metrics
}

// Config configures a SnapshotCache instance.
type Config struct {
	L1Capacity int
	TTL        time.Duration
	KeyPrefix  string
}

// New builds a SnapshotCache. load is called on a full miss (L1 and L2
// both empty or expired).
func New[T any](cfg Config, l2 KVStore, load Loader[T], metrics Metrics) (*SnapshotCache[T], error) {
	l1, err := lru.New[string, entry[T]](cfg.L1Capacity)
	if err != nil {
		return nil, fmt.Errorf("cache: new L1: %w", err)
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &SnapshotCache[T]{
		l1:        l1,
		l1Cap:     cfg.L1Capacity,
		l2:        l2,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		load:      load,
		metrics:   metrics,
	}, nil
}

func (c *SnapshotCache[T]) l2Key(playerID string) string {
	return c.keyPrefix + playerID
}

// Get implements §4.3's get(player_id, force_refresh).
func (c *SnapshotCache[T]) Get(ctx context.Context, playerID string, forceRefresh bool) (T, error) {
	start := time.Now()
	var zero T

	if !forceRefresh {
		if v, ok := c.getL1(playerID); ok {
			c.metrics.ObserveGet(true, time.Since(start))
			return v, nil
		}

		if raw, err := c.l2.Get(ctx, c.l2Key(playerID)); err == nil && raw != nil {
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				c.putL1(playerID, v)
				c.metrics.ObserveGet(true, time.Since(start))
				return v, nil
			}
		}
	}

	v, err := c.load(ctx, playerID)
	if err != nil {
		c.metrics.ObserveGet(false, time.Since(start))
		return zero, err
	}

	raw, err := json.Marshal(v)
	if err == nil {
		_ = c.l2.Set(ctx, c.l2Key(playerID), raw, c.ttl)
	}
	c.putL1(playerID, v)
	c.metrics.ObserveGet(false, time.Since(start))
	return v, nil
}

func (c *SnapshotCache[T]) getL1(playerID string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.l1.Get(playerID)
	if !ok {
		var zero T
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		c.l1.Remove(playerID)
		var zero T
		return zero, false
	}
	return e.value, true
}

// putL1 inserts playerID, evicting the entry with the earliest
// expires_at when the cache is full and this key is not already
// present (§4.3: "remove the entry with the earliest expires_at").
func (c *SnapshotCache[T]) putL1(playerID string, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry[T]{value: v, expiresAt: time.Now().Add(c.ttl)}

	_, present := c.l1.Peek(playerID)
	if !present && c.l1.Len() >= c.l1Cap {
		c.evictEarliestExpiry()
	}
	c.l1.Add(playerID, e)
}

func (c *SnapshotCache[T]) evictEarliestExpiry() {
	var oldestKey string
	var oldest time.Time
	first := true
	for _, key := range c.l1.Keys() {
		e, ok := c.l1.Peek(key)
		if !ok {
			continue
		}
		if first || e.expiresAt.Before(oldest) {
			oldest = e.expiresAt
			oldestKey = key
			first = false
		}
	}
	if !first {
		c.l1.Remove(oldestKey)
	}
}

// Invalidate drops playerID from both tiers immediately (§4.3).
func (c *SnapshotCache[T]) Invalidate(ctx context.Context, playerID string) error {
	c.mu.Lock()
	c.l1.Remove(playerID)
	c.mu.Unlock()
	return c.l2.Del(ctx, c.l2Key(playerID))
}

// Warm fans out a forced refresh across playerIDs (§4.3).
func (c *SnapshotCache[T]) Warm(ctx context.Context, playerIDs []string) {
	var wg sync.WaitGroup
	for _, id := range playerIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = c.Get(ctx, id, true)
		}(id)
	}
	wg.Wait()
}
