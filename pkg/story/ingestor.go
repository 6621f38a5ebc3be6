package story

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bodybroker/core/pkg/bus"
)

// InboundEvent is the decoded payload of a message on any
// "story.events.<type>" subject (§4.4).
type InboundEvent struct {
	Type     bus.EventType  `json:"type"`
	PlayerID string         `json:"player_id"`
	Data     map[string]any `json:"data"`
}

// Ingestor is the typed event router of §4.4: one handler per event
// type. Snapshot-state writes take the Manager's per-player lock and
// invalidate the snapshot cache. handlePlayerDeath's marker event and
// handleWorldStateChanged's conflict alerts are written through the
// repository directly, outside the lock.
type Ingestor struct {
	manager *Manager
	bus     bus.Publisher
	logger  *zap.Logger
}

func NewIngestor(manager *Manager, b bus.Publisher, logger *zap.Logger) *Ingestor {
	return &Ingestor{manager: manager, bus: b, logger: logger}
}

// Handle is the bus.Handler entry point for the "story.events.>"
// subscription. Malformed or unroutable events are logged and
// dropped — they must never block the subscription (§4.4).
func (ig *Ingestor) Handle(ctx context.Context, subject string, data []byte) {
	var evt InboundEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		ig.logger.Warn("story ingestor: malformed event", zap.String("subject", subject), zap.Error(err))
		return
	}
	if evt.PlayerID == "" {
		ig.logger.Warn("story ingestor: event missing player_id", zap.String("subject", subject))
		return
	}

	if _, err := ig.manager.AppendEvent(ctx, evt.PlayerID, string(evt.Type), evt.Data); err != nil {
		ig.logger.Error("story ingestor: append event failed", zap.Error(err))
		return
	}

	var err error
	switch evt.Type {
	case bus.EventArcBeatReached:
		err = ig.handleArcBeatReached(ctx, evt)
	case bus.EventArcStarted:
		err = ig.handleArcStarted(ctx, evt)
	case bus.EventArcCompleted:
		err = ig.handleArcCompleted(ctx, evt)
	case bus.EventQuestCompleted:
		err = ig.handleQuestCompleted(ctx, evt)
	case bus.EventExperienceCompleted:
		err = ig.handleExperienceCompleted(ctx, evt)
	case bus.EventRelationshipChanged:
		err = ig.handleRelationshipChanged(ctx, evt)
	case bus.EventDecisionMade:
		err = ig.handleDecisionMade(ctx, evt)
	case bus.EventMoralChoice:
		err = ig.handleMoralChoice(ctx, evt)
	case bus.EventPlayerDeath:
		err = ig.handlePlayerDeath(ctx, evt)
	case bus.EventSoulEchoEncounter:
		err = ig.handleSoulEchoEncounter(ctx, evt)
	case bus.EventWorldStateChanged:
		err = ig.handleWorldStateChanged(ctx, evt)
	default:
		ig.logger.Warn("story ingestor: unroutable event type", zap.String("type", string(evt.Type)))
		return
	}
	if err != nil {
		ig.logger.Error("story ingestor: handler failed", zap.String("type", string(evt.Type)), zap.Error(err))
	}
}

func str(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func num(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}

// deriveProgressState applies the beat-id substring heuristic (§4.4).
// TODO: confirm with the narrative team whether beat ids reliably
// encode progress, or whether an explicit progress field should be
// added upstream instead of inferring it here.
func deriveProgressState(beatID string) ProgressState {
	lower := strings.ToLower(beatID)
	switch {
	case strings.Contains(lower, "intro"), strings.Contains(lower, "start"):
		return ProgressEarly
	case strings.Contains(lower, "climax"), strings.Contains(lower, "finale"):
		return ProgressLate
	case strings.Contains(lower, "complete"), strings.Contains(lower, "end"):
		return ProgressCompleted
	default:
		return ProgressMid
	}
}

func (ig *Ingestor) handleArcBeatReached(ctx context.Context, evt InboundEvent) error {
	arcID := str(evt.Data, "arc_id")
	beatID := str(evt.Data, "beat_id")
	return ig.manager.UpdateArcProgress(ctx, evt.PlayerID, arcID, ArcRoleMain, deriveProgressState(beatID), beatID)
}

func (ig *Ingestor) handleArcStarted(ctx context.Context, evt InboundEvent) error {
	arcID := str(evt.Data, "arc_id")
	role := ArcRole(str(evt.Data, "arc_role"))
	if role == "" {
		role = ArcRoleMain
	}
	return ig.manager.UpdateArcProgress(ctx, evt.PlayerID, arcID, role, ProgressEarly, "")
}

func (ig *Ingestor) handleArcCompleted(ctx context.Context, evt InboundEvent) error {
	arcID := str(evt.Data, "arc_id")
	role := ArcRole(str(evt.Data, "arc_role"))
	if role == "" {
		role = ArcRoleMain
	}
	return ig.manager.UpdateArcProgress(ctx, evt.PlayerID, arcID, role, ProgressCompleted, "")
}

func (ig *Ingestor) handleQuestCompleted(ctx context.Context, evt InboundEvent) error {
	questID := str(evt.Data, "quest_id")
	if strings.Contains(questID, "main") || strings.Contains(questID, "arc") {
		arcID := str(evt.Data, "arc_id")
		if arcID == "" {
			arcID = questID
		}
		return ig.manager.UpdateArcProgress(ctx, evt.PlayerID, arcID, ArcRoleMain, ProgressMid, "")
	}
	return nil
}

func (ig *Ingestor) handleExperienceCompleted(ctx context.Context, evt InboundEvent) error {
	experienceID := str(evt.Data, "experience_id")
	impact := make(map[string]float64)
	if raw, ok := evt.Data["emotional_impact"].(map[string]any); ok {
		for k, v := range raw {
			if f, ok := v.(float64); ok {
				impact[k] = f
			}
		}
	}
	return ig.manager.withPlayerLock(evt.PlayerID, func() error {
		if err := ig.manager.repo.UpsertExperience(ctx, evt.PlayerID, experienceID, ExperienceCompleted, impact); err != nil {
			return err
		}
		_ = ig.manager.cache.Invalidate(ctx, evt.PlayerID)
		return nil
	})
}

func (ig *Ingestor) handleRelationshipChanged(ctx context.Context, evt InboundEvent) error {
	entityID := str(evt.Data, "entity_id")
	entityType := EntityType(str(evt.Data, "entity_type"))
	if entityType == "" {
		entityType = EntityNPC
	}
	delta := num(evt.Data, "new_score") - num(evt.Data, "old_score")
	if math.Abs(delta) > 20 {
		ig.logger.Warn("story ingestor: large relationship delta",
			zap.String("player_id", evt.PlayerID), zap.String("entity_id", entityID), zap.Float64("delta", delta))
	}
	var interaction *string
	if v := str(evt.Data, "interaction"); v != "" {
		interaction = &v
	}
	return ig.manager.UpdateRelationship(ctx, evt.PlayerID, entityID, entityType, delta, nil, interaction)
}

func (ig *Ingestor) handleDecisionMade(ctx context.Context, evt InboundEvent) error {
	d := Decision{
		DecisionID:  str(evt.Data, "decision_id"),
		ArcID:       str(evt.Data, "arc_id"),
		NPCID:       str(evt.Data, "npc_id"),
		ChoiceLabel: str(evt.Data, "choice_label"),
		MoralWeight: num(evt.Data, "moral_weight"),
		Timestamp:   time.Now().UTC(),
	}
	if tags, ok := evt.Data["outcome_tags"].([]any); ok {
		for _, t := range tags {
			if s, ok := t.(string); ok {
				d.OutcomeTags = append(d.OutcomeTags, s)
			}
		}
	}
	sessionID := str(evt.Data, "session_id")
	return ig.manager.RecordDecision(ctx, evt.PlayerID, d, sessionID)
}

func (ig *Ingestor) handleMoralChoice(ctx context.Context, evt InboundEvent) error {
	return ig.handleDecisionMade(ctx, evt)
}

func (ig *Ingestor) handlePlayerDeath(ctx context.Context, evt InboundEvent) error {
	// The audit-log append already happened in Handle; this adds a
	// player.death.counted marker event. debt_of_flesh_state.death_count
	// is not changed.
	_, err := ig.manager.repo.AppendEvent(ctx, evt.PlayerID, "player.death.counted", map[string]any{"counted": true})
	return err
}

func (ig *Ingestor) handleSoulEchoEncounter(ctx context.Context, evt InboundEvent) error {
	_, err := ig.manager.AppendEvent(ctx, evt.PlayerID, "soul.echo.recorded", evt.Data)
	return err
}

// handleWorldStateChanged runs the cross-check named in §4.4: for
// every NPC in npc_deaths, a relationship touched in the last 10
// minutes is a story/world contradiction.
func (ig *Ingestor) handleWorldStateChanged(ctx context.Context, evt InboundEvent) error {
	deaths, _ := evt.Data["npc_deaths"].([]any)
	for _, raw := range deaths {
		npcID, ok := raw.(string)
		if !ok {
			continue
		}
		rel, found, err := ig.manager.repo.RelationshipByEntity(ctx, evt.PlayerID, npcID)
		if err != nil {
			return err
		}
		if !found || rel.LastInteractionAt == nil {
			continue
		}
		if time.Since(*rel.LastInteractionAt) > 10*time.Minute {
			continue
		}

		alert := ConflictAlert{
			PlayerID:         evt.PlayerID,
			ConflictType:     "npc_state",
			InvolvedEntities: []string{npcID},
			ConflictingFacts: map[string]any{
				"npc_id":              npcID,
				"last_interaction_at": rel.LastInteractionAt,
				"reported_dead_at":    time.Now().UTC(),
			},
			Severity: "major",
		}
		if err := ig.manager.repo.SaveConflictAlert(ctx, alert); err != nil {
			return err
		}
		payload, _ := json.Marshal(alert)
		if ig.bus != nil {
			if err := ig.bus.Publish(ctx, bus.StoryConflictOut, payload); err != nil {
				ig.logger.Warn("story ingestor: publish conflict alert failed", zap.Error(err))
			}
		}
	}
	return nil
}
