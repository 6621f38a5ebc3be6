package story

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bodybroker/core/pkg/bus"
)

func mustJSON(v map[string]any) []byte {
	raw, _ := json.Marshal(v)
	return raw
}

// Invalidator drops a player's snapshot from the cache; satisfied by
// cache.SnapshotCache[Snapshot].Invalidate (§4.3).
type Invalidator interface {
	Invalidate(ctx context.Context, playerID string) error
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, string) error { return nil }

// Manager owns all reads and writes against the story repository
// (§4.2). Every mutation serializes per player. The snapshot-state
// mutations also invalidate the snapshot cache and publish a domain
// event after commit; UpdateArcProgress publishes only when the arc
// reaches completed, and AppendEvent neither invalidates nor publishes.
type Manager struct {
	repo    Repository
	cache   Invalidator
	bus     bus.Publisher
	logger  *zap.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewManager builds a Manager. cache may be nil, in which case
// invalidation is a no-op (useful for tests exercising the manager in
// isolation from the cache tier).
func NewManager(repo Repository, cache Invalidator, b bus.Publisher, logger *zap.Logger) *Manager {
	if cache == nil {
		cache = noopInvalidator{}
	}
	return &Manager{
		repo:   repo,
		cache:  cache,
		bus:    b,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// withPlayerLock serializes all write paths for one player so
// concurrent mutations produce the same result as some serial order
// (§4.2 concurrency note).
func (m *Manager) withPlayerLock(playerID string, fn func() error) error {
	m.locksMu.Lock()
	lock, ok := m.locks[playerID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[playerID] = lock
	}
	m.locksMu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn()
}

func (m *Manager) publish(ctx context.Context, subject string, data []byte) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, subject, data); err != nil {
		m.logger.Warn("story: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

// GetSnapshot returns a fully populated snapshot, lazily initializing
// the player on first access (§4.2).
func (m *Manager) GetSnapshot(ctx context.Context, playerID string) (*Snapshot, error) {
	if err := m.repo.EnsurePlayer(ctx, playerID, DarkWorldFamilies); err != nil {
		return nil, err
	}
	return m.repo.GetSnapshot(ctx, playerID)
}

// UpdateArcProgress upserts arc state for a player (§4.2).
func (m *Manager) UpdateArcProgress(ctx context.Context, playerID, arcID string, role ArcRole, state ProgressState, lastBeatID string) error {
	return m.withPlayerLock(playerID, func() error {
		if err := m.repo.EnsurePlayer(ctx, playerID, DarkWorldFamilies); err != nil {
			return err
		}
		if err := m.repo.UpsertArcProgress(ctx, playerID, ArcProgress{
			ArcID: arcID, ArcRole: role, ProgressState: state, LastBeatID: lastBeatID, UpdatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		_ = m.cache.Invalidate(ctx, playerID)
		if state == ProgressCompleted {
			m.publish(ctx, bus.StoryArcCompletedOut, mustJSON(map[string]any{"player_id": playerID, "arc_id": arcID}))
		}
		return nil
	})
}

// RecordDecision appends a decision and applies its moral delta
// (§4.2). sessionID is accepted for parity with the spec signature but
// not currently persisted separately from the decision row.
func (m *Manager) RecordDecision(ctx context.Context, playerID string, d Decision, sessionID string) error {
	return m.withPlayerLock(playerID, func() error {
		if err := m.repo.EnsurePlayer(ctx, playerID, DarkWorldFamilies); err != nil {
			return err
		}
		if d.Timestamp.IsZero() {
			d.Timestamp = time.Now().UTC()
		}
		if err := m.repo.RecordDecision(ctx, playerID, d); err != nil {
			return err
		}
		_ = m.cache.Invalidate(ctx, playerID)
		m.publish(ctx, bus.StoryUpdatePrefix+"decision", mustJSON(map[string]any{"player_id": playerID, "decision_id": d.DecisionID}))
		return nil
	})
}

// UpdateRelationship upserts a relationship with read-modify-write
// clamping and flag merging (§4.2).
func (m *Manager) UpdateRelationship(ctx context.Context, playerID, entityID string, entityType EntityType, scoreDelta float64, newFlags []string, interaction *string) error {
	return m.withPlayerLock(playerID, func() error {
		if err := m.repo.EnsurePlayer(ctx, playerID, DarkWorldFamilies); err != nil {
			return err
		}
		if err := m.repo.UpsertRelationship(ctx, playerID, entityID, entityType, scoreDelta, newFlags, interaction); err != nil {
			return err
		}
		_ = m.cache.Invalidate(ctx, playerID)
		m.publish(ctx, bus.StoryUpdatePrefix+"relationship", mustJSON(map[string]any{"player_id": playerID, "entity_id": entityID}))
		return nil
	})
}

// UpdateDarkWorldStanding upserts a dark-world standing with
// floor-at-zero counters and set-merged statuses (§4.2).
func (m *Manager) UpdateDarkWorldStanding(ctx context.Context, playerID, family string, deltas StandingDeltas, betrayal bool, specialStatus []string) error {
	return m.withPlayerLock(playerID, func() error {
		if err := m.repo.EnsurePlayer(ctx, playerID, DarkWorldFamilies); err != nil {
			return err
		}
		if err := m.repo.UpsertDarkWorldStanding(ctx, playerID, family, deltas, betrayal, specialStatus); err != nil {
			return err
		}
		_ = m.cache.Invalidate(ctx, playerID)
		m.publish(ctx, bus.StoryUpdatePrefix+"dark_world_standing", mustJSON(map[string]any{"player_id": playerID, "family": family}))
		return nil
	})
}

// AppendEvent records one audit-log entry under the player's lock,
// advancing the sequence counter before insert (§4.4 idempotency).
func (m *Manager) AppendEvent(ctx context.Context, playerID, eventType string, payload map[string]any) (int64, error) {
	var seq int64
	err := m.withPlayerLock(playerID, func() error {
		if err := m.repo.EnsurePlayer(ctx, playerID, DarkWorldFamilies); err != nil {
			return err
		}
		s, err := m.repo.AppendEvent(ctx, playerID, eventType, payload)
		if err != nil {
			return err
		}
		seq = s
		return nil
	})
	return seq, err
}
