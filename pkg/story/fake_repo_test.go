package story

import (
	"context"
	"time"
)

// fakeRepo is a minimal in-memory Repository double, the same shape as
// drift's own fakeRepo test double, for exercising Manager/QueryServer
// without a database.
type fakeRepo struct {
	snapshots     map[string]*Snapshot
	snapshotCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{snapshots: make(map[string]*Snapshot)}
}

func (r *fakeRepo) EnsurePlayer(ctx context.Context, playerID string, families []string) error {
	if _, ok := r.snapshots[playerID]; !ok {
		standings := make([]DarkWorldStanding, len(families))
		for i, f := range families {
			standings[i] = DarkWorldStanding{Family: f}
		}
		r.snapshots[playerID] = &Snapshot{PlayerID: playerID, DarkWorldStandings: standings}
	}
	return nil
}

func (r *fakeRepo) GetSnapshot(ctx context.Context, playerID string) (*Snapshot, error) {
	r.snapshotCalls++
	snap, ok := r.snapshots[playerID]
	if !ok {
		return &Snapshot{PlayerID: playerID}, nil
	}
	return snap, nil
}

func (r *fakeRepo) UpsertArcProgress(ctx context.Context, playerID string, p ArcProgress) error {
	snap := r.snapshots[playerID]
	snap.ArcProgress = append(snap.ArcProgress, p)
	return nil
}

func (r *fakeRepo) RecordDecision(ctx context.Context, playerID string, d Decision) error {
	snap := r.snapshots[playerID]
	snap.Decisions = append(snap.Decisions, d)
	return nil
}

func (r *fakeRepo) UpsertRelationship(ctx context.Context, playerID, entityID string, entityType EntityType, scoreDelta float64, newFlags []string, interaction *string) error {
	snap := r.snapshots[playerID]
	snap.Relationships = append(snap.Relationships, Relationship{EntityID: entityID, EntityType: entityType, Score: scoreDelta, Flags: newFlags})
	return nil
}

func (r *fakeRepo) UpsertDarkWorldStanding(ctx context.Context, playerID, family string, deltas StandingDeltas, betrayal bool, specialStatus []string) error {
	return nil
}

func (r *fakeRepo) AppendEvent(ctx context.Context, playerID string, eventType string, payload map[string]any) (int64, error) {
	return 1, nil
}

func (r *fakeRepo) NextSequence(ctx context.Context, playerID string) (int64, error) {
	return 1, nil
}

func (r *fakeRepo) EventsSince(ctx context.Context, playerID string, since time.Time) ([]Event, error) {
	return nil, nil
}

func (r *fakeRepo) PlayersWithEventsSince(ctx context.Context, since time.Time) ([]string, error) {
	return nil, nil
}

func (r *fakeRepo) RelationshipByEntity(ctx context.Context, playerID, entityID string) (*Relationship, bool, error) {
	return nil, false, nil
}

func (r *fakeRepo) UpsertExperience(ctx context.Context, playerID, experienceID string, status ExperienceStatus, emotionalImpact map[string]float64) error {
	return nil
}

func (r *fakeRepo) SaveConflictAlert(ctx context.Context, a ConflictAlert) error {
	return nil
}

func (r *fakeRepo) SaveDriftAlert(ctx context.Context, playerID, driftType, severity string, driftScore float64, metrics map[string]any, remediation string) error {
	return nil
}
