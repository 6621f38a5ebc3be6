package story

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPlayerNotFound is returned by read paths that require an existing
// player row outside of get_snapshot's lazy-init path.
var ErrPlayerNotFound = errors.New("story: player not found")

// StandingDeltas carries the additive changes update_dark_world_standing
// applies in one call (§4.2).
type StandingDeltas struct {
	ScoreDelta float64
	FavorsOwed int
	DebtsOwed  int
}

// Repository is the typed persistence contract the Manager drives;
// it never leaks SQL across its boundary (§4.2).
type Repository interface {
	// EnsurePlayer lazily creates a player row and one standing row per
	// configured family, idempotent under concurrent first access.
	EnsurePlayer(ctx context.Context, playerID string, families []string) error
	GetSnapshot(ctx context.Context, playerID string) (*Snapshot, error)

	UpsertArcProgress(ctx context.Context, playerID string, p ArcProgress) error
	RecordDecision(ctx context.Context, playerID string, d Decision) error
	UpsertRelationship(ctx context.Context, playerID, entityID string, entityType EntityType, scoreDelta float64, newFlags []string, interaction *string) error
	UpsertDarkWorldStanding(ctx context.Context, playerID, family string, deltas StandingDeltas, betrayal bool, specialStatus []string) error

	AppendEvent(ctx context.Context, playerID string, eventType string, payload map[string]any) (int64, error)
	NextSequence(ctx context.Context, playerID string) (int64, error)
	EventsSince(ctx context.Context, playerID string, since time.Time) ([]Event, error)
	PlayersWithEventsSince(ctx context.Context, since time.Time) ([]string, error)

	RelationshipByEntity(ctx context.Context, playerID, entityID string) (*Relationship, bool, error)
	UpsertExperience(ctx context.Context, playerID, experienceID string, status ExperienceStatus, emotionalImpact map[string]float64) error
	SaveConflictAlert(ctx context.Context, a ConflictAlert) error
	SaveDriftAlert(ctx context.Context, playerID, driftType, severity string, driftScore float64, metrics map[string]any, remediation string) error
}

// PgxRepository implements Repository against the schema in
// pkg/database/migrations.
type PgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) *PgxRepository {
	return &PgxRepository{pool: pool}
}

func (r *PgxRepository) EnsurePlayer(ctx context.Context, playerID string, families []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("story: begin ensure player: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO players (player_id) VALUES ($1)
		ON CONFLICT (player_id) DO NOTHING`, playerID); err != nil {
		return fmt.Errorf("story: insert player: %w", err)
	}

	for _, family := range families {
		if _, err := tx.Exec(ctx, `
			INSERT INTO dark_world_standings (player_id, family)
			VALUES ($1, $2)
			ON CONFLICT (player_id, family) DO NOTHING`, playerID, family); err != nil {
			return fmt.Errorf("story: insert standing %s: %w", family, err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgxRepository) GetSnapshot(ctx context.Context, playerID string) (*Snapshot, error) {
	snap := &Snapshot{PlayerID: playerID}

	var brokerRaw, debtRaw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT surgeon_butcher_score, broker_book_state, debt_of_flesh_state
		FROM players WHERE player_id = $1`, playerID).
		Scan(&snap.SurgeonButcherScore, &brokerRaw, &debtRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("story: load player: %w", err)
	}
	if err := json.Unmarshal(brokerRaw, &snap.BrokerBookState); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(debtRaw, &snap.DebtOfFleshState); err != nil {
		return nil, err
	}

	arcRows, err := r.pool.Query(ctx, `
		SELECT arc_id, arc_role, progress_state, last_beat_id, updated_at
		FROM arc_progress WHERE player_id = $1`, playerID)
	if err != nil {
		return nil, err
	}
	for arcRows.Next() {
		var a ArcProgress
		var lastBeat *string
		if err := arcRows.Scan(&a.ArcID, &a.ArcRole, &a.ProgressState, &lastBeat, &a.UpdatedAt); err != nil {
			arcRows.Close()
			return nil, err
		}
		if lastBeat != nil {
			a.LastBeatID = *lastBeat
		}
		snap.ArcProgress = append(snap.ArcProgress, a)
	}
	arcRows.Close()

	decRows, err := r.pool.Query(ctx, `
		SELECT decision_id, COALESCE(arc_id, ''), COALESCE(npc_id, ''),
		       choice_label, outcome_tags, moral_weight, occurred_at
		FROM decisions WHERE player_id = $1
		ORDER BY occurred_at DESC LIMIT $2`, playerID, maxRetainedDecisions)
	if err != nil {
		return nil, err
	}
	for decRows.Next() {
		var d Decision
		if err := decRows.Scan(&d.DecisionID, &d.ArcID, &d.NPCID, &d.ChoiceLabel, &d.OutcomeTags, &d.MoralWeight, &d.Timestamp); err != nil {
			decRows.Close()
			return nil, err
		}
		snap.Decisions = append(snap.Decisions, d)
	}
	decRows.Close()

	relRows, err := r.pool.Query(ctx, `
		SELECT entity_id, entity_type, score, flags, COALESCE(last_interaction, ''), last_interaction_at
		FROM relationships WHERE player_id = $1`, playerID)
	if err != nil {
		return nil, err
	}
	for relRows.Next() {
		var rel Relationship
		if err := relRows.Scan(&rel.EntityID, &rel.EntityType, &rel.Score, &rel.Flags, &rel.LastInteraction, &rel.LastInteractionAt); err != nil {
			relRows.Close()
			return nil, err
		}
		snap.Relationships = append(snap.Relationships, rel)
	}
	relRows.Close()

	standingRows, err := r.pool.Query(ctx, `
		SELECT family, score, favors_owed, debts_owed, betrayal_count, special_status, COALESCE(last_interaction, '')
		FROM dark_world_standings WHERE player_id = $1`, playerID)
	if err != nil {
		return nil, err
	}
	for standingRows.Next() {
		var s DarkWorldStanding
		if err := standingRows.Scan(&s.Family, &s.Score, &s.FavorsOwed, &s.DebtsOwed, &s.BetrayalCount, &s.SpecialStatus, &s.LastInteraction); err != nil {
			standingRows.Close()
			return nil, err
		}
		snap.DarkWorldStandings = append(snap.DarkWorldStandings, s)
	}
	standingRows.Close()

	expRows, err := r.pool.Query(ctx, `
		SELECT experience_id, status, emotional_impact, cross_references, started_at, completed_at
		FROM experiences WHERE player_id = $1`, playerID)
	if err != nil {
		return nil, err
	}
	for expRows.Next() {
		var e Experience
		var impactRaw []byte
		if err := expRows.Scan(&e.ExperienceID, &e.Status, &impactRaw, &e.CrossReferences, &e.StartedAt, &e.CompletedAt); err != nil {
			expRows.Close()
			return nil, err
		}
		if err := json.Unmarshal(impactRaw, &e.EmotionalImpact); err != nil {
			expRows.Close()
			return nil, err
		}
		snap.Experiences = append(snap.Experiences, e)
	}
	expRows.Close()

	return snap, nil
}

func (r *PgxRepository) UpsertArcProgress(ctx context.Context, playerID string, p ArcProgress) error {
	var lastBeat any
	if p.LastBeatID != "" {
		lastBeat = p.LastBeatID
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO arc_progress (player_id, arc_id, arc_role, progress_state, last_beat_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (player_id, arc_id) DO UPDATE SET
			arc_role = EXCLUDED.arc_role,
			progress_state = EXCLUDED.progress_state,
			last_beat_id = EXCLUDED.last_beat_id,
			updated_at = now()`,
		playerID, p.ArcID, p.ArcRole, p.ProgressState, lastBeat)
	return err
}

func (r *PgxRepository) RecordDecision(ctx context.Context, playerID string, d Decision) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if d.DecisionID == "" {
		d.DecisionID = uuid.NewString()
	}
	var arcID, npcID any
	if d.ArcID != "" {
		arcID = d.ArcID
	}
	if d.NPCID != "" {
		npcID = d.NPCID
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO decisions (decision_id, player_id, arc_id, npc_id, choice_label, outcome_tags, moral_weight, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.DecisionID, playerID, arcID, npcID, d.ChoiceLabel, d.OutcomeTags, d.MoralWeight, d.Timestamp); err != nil {
		return fmt.Errorf("story: insert decision: %w", err)
	}

	if abs(d.MoralWeight) > 0.01 {
		if _, err := tx.Exec(ctx, `
			UPDATE players SET
				surgeon_butcher_score = LEAST(GREATEST(surgeon_butcher_score + $2, $3), $4),
				updated_at = now()
			WHERE player_id = $1`,
			playerID, d.MoralWeight, scoreMin, scoreMax); err != nil {
			return fmt.Errorf("story: apply moral delta: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgxRepository) UpsertRelationship(ctx context.Context, playerID, entityID string, entityType EntityType, scoreDelta float64, newFlags []string, interaction *string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var existing Relationship
	var rawFlags []string
	err = tx.QueryRow(ctx, `
		SELECT score, flags FROM relationships
		WHERE player_id = $1 AND entity_id = $2 FOR UPDATE`, playerID, entityID).
		Scan(&existing.Score, &rawFlags)
	if errors.Is(err, pgx.ErrNoRows) {
		existing = Relationship{}
	} else if err != nil {
		return err
	}

	mergedFlags := mergeSet(rawFlags, newFlags)
	newScore := clamp(existing.Score+scoreDelta, relationshipScoreMin, relationshipScoreMax)

	var lastInteraction any
	var lastInteractionAt any
	if interaction != nil {
		lastInteraction = *interaction
		lastInteractionAt = time.Now().UTC()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO relationships (player_id, entity_id, entity_type, score, flags, last_interaction, last_interaction_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (player_id, entity_id) DO UPDATE SET
			score = EXCLUDED.score,
			flags = EXCLUDED.flags,
			last_interaction = COALESCE(EXCLUDED.last_interaction, relationships.last_interaction),
			last_interaction_at = COALESCE(EXCLUDED.last_interaction_at, relationships.last_interaction_at)`,
		playerID, entityID, entityType, newScore, mergedFlags, lastInteraction, lastInteractionAt)
	if err != nil {
		return fmt.Errorf("story: upsert relationship: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *PgxRepository) UpsertDarkWorldStanding(ctx context.Context, playerID, family string, deltas StandingDeltas, betrayal bool, specialStatus []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var existing DarkWorldStanding
	var rawStatus []string
	err = tx.QueryRow(ctx, `
		SELECT score, favors_owed, debts_owed, betrayal_count, special_status
		FROM dark_world_standings
		WHERE player_id = $1 AND family = $2 FOR UPDATE`, playerID, family).
		Scan(&existing.Score, &existing.FavorsOwed, &existing.DebtsOwed, &existing.BetrayalCount, &rawStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		existing = DarkWorldStanding{}
	} else if err != nil {
		return err
	}

	newScore := clamp(existing.Score+deltas.ScoreDelta, relationshipScoreMin, relationshipScoreMax)
	newFavors := floorZero(existing.FavorsOwed + deltas.FavorsOwed)
	newDebts := floorZero(existing.DebtsOwed + deltas.DebtsOwed)
	newBetrayals := existing.BetrayalCount
	if betrayal {
		newBetrayals++
	}
	mergedStatus := mergeSet(rawStatus, specialStatus)

	_, err = tx.Exec(ctx, `
		INSERT INTO dark_world_standings (player_id, family, score, favors_owed, debts_owed, betrayal_count, special_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (player_id, family) DO UPDATE SET
			score = EXCLUDED.score,
			favors_owed = EXCLUDED.favors_owed,
			debts_owed = EXCLUDED.debts_owed,
			betrayal_count = EXCLUDED.betrayal_count,
			special_status = EXCLUDED.special_status`,
		playerID, family, newScore, newFavors, newDebts, newBetrayals, mergedStatus)
	if err != nil {
		return fmt.Errorf("story: upsert standing: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *PgxRepository) AppendEvent(ctx context.Context, playerID string, eventType string, payload map[string]any) (int64, error) {
	seq, err := r.NextSequence(ctx, playerID)
	if err != nil {
		return 0, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO player_events (player_id, sequence_num, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (player_id, sequence_num) DO NOTHING`,
		playerID, seq, eventType, raw)
	if err != nil {
		return 0, fmt.Errorf("story: append event: %w", err)
	}
	return seq, nil
}

func (r *PgxRepository) NextSequence(ctx context.Context, playerID string) (int64, error) {
	var max int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence_num), 0) FROM player_events WHERE player_id = $1`, playerID).
		Scan(&max)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (r *PgxRepository) EventsSince(ctx context.Context, playerID string, since time.Time) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT player_id, sequence_num, event_type, payload, occurred_at
		FROM player_events
		WHERE player_id = $1 AND occurred_at >= $2
		ORDER BY sequence_num ASC`, playerID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var raw []byte
		if err := rows.Scan(&e.PlayerID, &e.SequenceNum, &e.EventType, &raw, &e.OccurredAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &e.Payload); err != nil {
			return nil, err
		}
		if at, ok := e.Payload["activity_type"].(string); ok {
			e.ActivityType = at
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *PgxRepository) PlayersWithEventsSince(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT player_id FROM player_events WHERE occurred_at >= $1`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PgxRepository) RelationshipByEntity(ctx context.Context, playerID, entityID string) (*Relationship, bool, error) {
	var rel Relationship
	err := r.pool.QueryRow(ctx, `
		SELECT entity_id, entity_type, score, flags, COALESCE(last_interaction, ''), last_interaction_at
		FROM relationships WHERE player_id = $1 AND entity_id = $2`, playerID, entityID).
		Scan(&rel.EntityID, &rel.EntityType, &rel.Score, &rel.Flags, &rel.LastInteraction, &rel.LastInteractionAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &rel, true, nil
}

// UpsertExperience sets an experience row to status (and, for
// completed, stamps completed_at and merges emotional impact), per
// the `experience.completed` routing rule (§4.4).
func (r *PgxRepository) UpsertExperience(ctx context.Context, playerID, experienceID string, status ExperienceStatus, emotionalImpact map[string]float64) error {
	raw, err := json.Marshal(emotionalImpact)
	if err != nil {
		return err
	}

	var completedAt any
	if status == ExperienceCompleted {
		completedAt = time.Now().UTC()
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO experiences (experience_id, player_id, status, emotional_impact, started_at, completed_at)
		VALUES ($1, $2, $3, $4, now(), $5)
		ON CONFLICT (experience_id) DO UPDATE SET
			status = EXCLUDED.status,
			emotional_impact = experiences.emotional_impact || EXCLUDED.emotional_impact,
			completed_at = COALESCE(EXCLUDED.completed_at, experiences.completed_at)`,
		experienceID, playerID, status, raw, completedAt)
	return err
}

// SaveConflictAlert persists one triggered conflict rule (§4.5).
func (r *PgxRepository) SaveConflictAlert(ctx context.Context, a ConflictAlert) error {
	if a.AlertID == "" {
		a.AlertID = uuid.NewString()
	}
	raw, err := json.Marshal(a.ConflictingFacts)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO conflict_alerts (alert_id, player_id, conflict_type, involved_entities, conflicting_facts, severity)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.AlertID, a.PlayerID, a.ConflictType, a.InvolvedEntities, raw, a.Severity)
	return err
}

// SaveDriftAlert persists one drift report produced by the drift
// detector's analyzers (§4.5).
func (r *PgxRepository) SaveDriftAlert(ctx context.Context, playerID, driftType, severity string, driftScore float64, metrics map[string]any, remediation string) error {
	raw, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO drift_alerts (alert_id, player_id, drift_type, severity, drift_score, metrics, remediation)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), playerID, driftType, severity, driftScore, raw, remediation)
	return err
}

func mergeSet(existing, additions []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(additions))
	var out []string
	for _, v := range existing {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	for _, v := range additions {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func floorZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
