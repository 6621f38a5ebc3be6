package drift

import (
	"context"
	"time"

	"github.com/bodybroker/core/pkg/story"
)

// fakeRepo is a minimal in-memory story.Repository double used across
// this package's tests. Only the methods the drift detector actually
// calls carry real behavior; the rest are no-ops satisfying the
// interface.
type fakeRepo struct {
	events         map[string][]story.Event
	snapshots      map[string]*story.Snapshot
	relationships  map[string]map[string]story.Relationship
	conflictAlerts []story.ConflictAlert
	driftAlerts    []driftAlertRecord
	activePlayers  []string
}

type driftAlertRecord struct {
	PlayerID    string
	DriftType   string
	Severity    string
	DriftScore  float64
	Metrics     map[string]any
	Remediation string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		events:        make(map[string][]story.Event),
		snapshots:     make(map[string]*story.Snapshot),
		relationships: make(map[string]map[string]story.Relationship),
	}
}

func (r *fakeRepo) EnsurePlayer(ctx context.Context, playerID string, families []string) error {
	return nil
}

func (r *fakeRepo) GetSnapshot(ctx context.Context, playerID string) (*story.Snapshot, error) {
	if snap, ok := r.snapshots[playerID]; ok {
		return snap, nil
	}
	return &story.Snapshot{PlayerID: playerID}, nil
}

func (r *fakeRepo) UpsertArcProgress(ctx context.Context, playerID string, p story.ArcProgress) error {
	return nil
}

func (r *fakeRepo) RecordDecision(ctx context.Context, playerID string, d story.Decision) error {
	return nil
}

func (r *fakeRepo) UpsertRelationship(ctx context.Context, playerID, entityID string, entityType story.EntityType, scoreDelta float64, newFlags []string, interaction *string) error {
	return nil
}

func (r *fakeRepo) UpsertDarkWorldStanding(ctx context.Context, playerID, family string, deltas story.StandingDeltas, betrayal bool, specialStatus []string) error {
	return nil
}

func (r *fakeRepo) AppendEvent(ctx context.Context, playerID string, eventType string, payload map[string]any) (int64, error) {
	seq := int64(len(r.events[playerID]) + 1)
	r.events[playerID] = append(r.events[playerID], story.Event{
		PlayerID: playerID, SequenceNum: seq, EventType: eventType, Payload: payload, OccurredAt: time.Now(),
	})
	return seq, nil
}

func (r *fakeRepo) NextSequence(ctx context.Context, playerID string) (int64, error) {
	return int64(len(r.events[playerID]) + 1), nil
}

func (r *fakeRepo) EventsSince(ctx context.Context, playerID string, since time.Time) ([]story.Event, error) {
	var out []story.Event
	for _, e := range r.events[playerID] {
		if e.OccurredAt.After(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeRepo) PlayersWithEventsSince(ctx context.Context, since time.Time) ([]string, error) {
	return r.activePlayers, nil
}

func (r *fakeRepo) RelationshipByEntity(ctx context.Context, playerID, entityID string) (*story.Relationship, bool, error) {
	byEntity, ok := r.relationships[playerID]
	if !ok {
		return nil, false, nil
	}
	rel, ok := byEntity[entityID]
	if !ok {
		return nil, false, nil
	}
	return &rel, true, nil
}

func (r *fakeRepo) UpsertExperience(ctx context.Context, playerID, experienceID string, status story.ExperienceStatus, emotionalImpact map[string]float64) error {
	return nil
}

func (r *fakeRepo) SaveConflictAlert(ctx context.Context, a story.ConflictAlert) error {
	r.conflictAlerts = append(r.conflictAlerts, a)
	return nil
}

func (r *fakeRepo) SaveDriftAlert(ctx context.Context, playerID, driftType, severity string, driftScore float64, metrics map[string]any, remediation string) error {
	r.driftAlerts = append(r.driftAlerts, driftAlertRecord{
		PlayerID: playerID, DriftType: driftType, Severity: severity,
		DriftScore: driftScore, Metrics: metrics, Remediation: remediation,
	})
	return nil
}
