package story

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/bodybroker/core/pkg/bus"
	"github.com/bodybroker/core/pkg/cache"
	"github.com/bodybroker/core/pkg/story/drift"
)

// QueryServer answers the §6 story request/reply subjects
// (story.get.*, story.check.drift, story.update.*) over the bus,
// wrapping every response in bus.Reply's {success, error?,
// <payload-key>} envelope. It is a thin adapter: all state mutation
// and invariant enforcement stays in Manager/Repository; QueryServer
// only decodes requests and encodes replies. Reads go through the
// multi-tier snapshot cache (§4.3) when one is configured, since the
// cache's Loader is the only path that pulls a fresh Snapshot on a
// miss — Manager.GetSnapshot itself always reads straight through to
// the repository so writers never pay cache-fill latency.
type QueryServer struct {
	manager  *Manager
	detector *drift.Detector
	cache    *cache.SnapshotCache[*Snapshot]
	logger   *zap.Logger
}

// NewQueryServer builds a QueryServer. snapshotCache may be nil, in
// which case every read falls back to manager.GetSnapshot directly
// (useful for tests exercising the server without a Redis-backed L2).
func NewQueryServer(manager *Manager, detector *drift.Detector, snapshotCache *cache.SnapshotCache[*Snapshot], logger *zap.Logger) *QueryServer {
	return &QueryServer{manager: manager, detector: detector, cache: snapshotCache, logger: logger}
}

func (q *QueryServer) getSnapshot(ctx context.Context, playerID string, forceRefresh bool) (*Snapshot, error) {
	if q.cache == nil {
		return q.manager.GetSnapshot(ctx, playerID)
	}
	return q.cache.Get(ctx, playerID, forceRefresh)
}

type playerIDRequest struct {
	PlayerID     string `json:"player_id"`
	ForceRefresh bool   `json:"force_refresh"`
}

func encodeReply[T any](payloadKey string, payload T, err error) []byte {
	var reply bus.Reply[T]
	if err != nil {
		reply = bus.Err[T](payloadKey, err)
	} else {
		reply = bus.OK(payloadKey, payload)
	}
	data, marshalErr := json.Marshal(reply)
	if marshalErr != nil {
		return []byte(`{"success":false,"error":"marshal reply failed"}`)
	}
	return data
}

// GetSnapshot answers story.get.snapshot.
func (q *QueryServer) GetSnapshot(ctx context.Context, _ string, data []byte) []byte {
	var req playerIDRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return encodeReply("snapshot", (*Snapshot)(nil), err)
	}
	snap, err := q.getSnapshot(ctx, req.PlayerID, req.ForceRefresh)
	return encodeReply("snapshot", snap, err)
}

// GetArcProgress answers story.get.arc_progress with just the
// arc_progress slice of the player's snapshot.
func (q *QueryServer) GetArcProgress(ctx context.Context, _ string, data []byte) []byte {
	var req playerIDRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return encodeReply("arc_progress", []ArcProgress(nil), err)
	}
	snap, err := q.getSnapshot(ctx, req.PlayerID, req.ForceRefresh)
	if err != nil {
		return encodeReply("arc_progress", []ArcProgress(nil), err)
	}
	return encodeReply("arc_progress", snap.ArcProgress, nil)
}

// GetRelationships answers story.get.relationships.
func (q *QueryServer) GetRelationships(ctx context.Context, _ string, data []byte) []byte {
	var req playerIDRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return encodeReply("relationships", []Relationship(nil), err)
	}
	snap, err := q.getSnapshot(ctx, req.PlayerID, req.ForceRefresh)
	if err != nil {
		return encodeReply("relationships", []Relationship(nil), err)
	}
	return encodeReply("relationships", snap.Relationships, nil)
}

// GetDarkWorldStandings answers story.get.dark_world_standings.
func (q *QueryServer) GetDarkWorldStandings(ctx context.Context, _ string, data []byte) []byte {
	var req playerIDRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return encodeReply("dark_world_standings", []DarkWorldStanding(nil), err)
	}
	snap, err := q.getSnapshot(ctx, req.PlayerID, req.ForceRefresh)
	if err != nil {
		return encodeReply("dark_world_standings", []DarkWorldStanding(nil), err)
	}
	return encodeReply("dark_world_standings", snap.DarkWorldStandings, nil)
}

type checkDriftRequest struct {
	PlayerID    string `json:"player_id"`
	WindowHours int    `json:"window_hours"`
	Force       bool   `json:"force"`
}

// CheckDrift answers story.check.drift.
func (q *QueryServer) CheckDrift(ctx context.Context, _ string, data []byte) []byte {
	var req checkDriftRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return encodeReply("report", (*drift.Report)(nil), err)
	}
	windowHours := req.WindowHours
	if windowHours <= 0 {
		windowHours = 24
	}
	report, err := q.detector.CheckDrift(ctx, req.PlayerID, windowHours, req.Force)
	return encodeReply("report", report, err)
}

type updateArcProgressRequest struct {
	PlayerID   string `json:"player_id"`
	ArcID      string `json:"arc_id"`
	ArcRole    string `json:"arc_role"`
	State      string `json:"state"`
	LastBeatID string `json:"last_beat_id"`
}

// UpdateArcProgress answers story.update.arc_progress.
func (q *QueryServer) UpdateArcProgress(ctx context.Context, _ string, data []byte) []byte {
	var req updateArcProgressRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return encodeReply("updated", false, err)
	}
	err := q.manager.UpdateArcProgress(ctx, req.PlayerID, req.ArcID, ArcRole(req.ArcRole), ProgressState(req.State), req.LastBeatID)
	return encodeReply("updated", err == nil, err)
}

type updateRelationshipRequest struct {
	PlayerID    string   `json:"player_id"`
	EntityID    string   `json:"entity_id"`
	EntityType  string   `json:"entity_type"`
	ScoreDelta  float64  `json:"score_delta"`
	NewFlags    []string `json:"new_flags"`
	Interaction *string  `json:"interaction"`
}

// UpdateRelationship answers story.update.relationship.
func (q *QueryServer) UpdateRelationship(ctx context.Context, _ string, data []byte) []byte {
	var req updateRelationshipRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return encodeReply("updated", false, err)
	}
	err := q.manager.UpdateRelationship(ctx, req.PlayerID, req.EntityID, EntityType(req.EntityType), req.ScoreDelta, req.NewFlags, req.Interaction)
	return encodeReply("updated", err == nil, err)
}

type updateDarkWorldStandingRequest struct {
	PlayerID      string         `json:"player_id"`
	Family        string         `json:"family"`
	Deltas        StandingDeltas `json:"deltas"`
	Betrayal      bool           `json:"betrayal"`
	SpecialStatus []string       `json:"special_status"`
}

// UpdateDarkWorldStanding answers story.update.dark_world_standing.
func (q *QueryServer) UpdateDarkWorldStanding(ctx context.Context, _ string, data []byte) []byte {
	var req updateDarkWorldStandingRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return encodeReply("updated", false, err)
	}
	err := q.manager.UpdateDarkWorldStanding(ctx, req.PlayerID, req.Family, req.Deltas, req.Betrayal, req.SpecialStatus)
	return encodeReply("updated", err == nil, err)
}
