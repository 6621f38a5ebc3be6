package drift

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/bodybroker/core/pkg/bus"
	"github.com/bodybroker/core/pkg/story"
)

// contradictoryOutcomeTags lists outcome-tag pairs that can never both
// be true of the same arc (§4.5's quest-logic rule family). Data-driven
// in principle; fixed here since no external source of contradictory
// pairs is in scope.
var contradictoryOutcomeTags = [][2]string{
	{"sided_with_guild", "betrayed_guild"},
	{"spared_target", "killed_target"},
	{"joined_collective", "exposed_collective"},
}

// npcDeathTags marks a decision as having declared an NPC dead; a
// relationship touched after that point is a contradiction (§4.5's
// NPC-state rule family).
var npcDeathTags = map[string]struct{}{
	"killed_npc":     {},
	"npc_died":       {},
	"npc_terminated": {},
}

// ConflictEngine runs the NPC-state and quest-logic rule families
// against a player's current snapshot. World-vs-story is implemented
// reactively in Ingestor.handleWorldStateChanged since it is driven by
// the world.state.changed event itself rather than by a periodic scan.
type ConflictEngine struct {
	repo   story.Repository
	bus    bus.Publisher
	logger *zap.Logger
}

func NewConflictEngine(repo story.Repository, b bus.Publisher, logger *zap.Logger) *ConflictEngine {
	return &ConflictEngine{repo: repo, bus: b, logger: logger}
}

// Check runs both rule families for one player, persisting and
// publishing every triggered result.
func (e *ConflictEngine) Check(ctx context.Context, playerID string) error {
	snap, err := e.repo.GetSnapshot(ctx, playerID)
	if err != nil {
		return fmt.Errorf("conflict: load snapshot: %w", err)
	}

	results := e.npcStateRule(snap)
	results = append(results, e.questLogicRule(snap)...)

	for _, res := range results {
		if !res.Triggered {
			continue
		}
		alert := story.ConflictAlert{
			PlayerID:         playerID,
			ConflictType:     res.ConflictType,
			InvolvedEntities: res.InvolvedEntities,
			ConflictingFacts: res.ConflictingFacts,
			Severity:         res.Severity,
		}
		if err := e.repo.SaveConflictAlert(ctx, alert); err != nil {
			return fmt.Errorf("conflict: persist alert: %w", err)
		}
		if e.bus != nil {
			raw, err := json.Marshal(alert)
			if err != nil {
				return err
			}
			if err := e.bus.Publish(ctx, bus.StoryConflictOut, raw); err != nil {
				e.logger.Warn("conflict: publish alert failed", zap.Error(err))
			}
		}
	}
	return nil
}

// npcStateRule flags an NPC whose relationship was touched after a
// decision declared that NPC dead.
func (e *ConflictEngine) npcStateRule(snap *story.Snapshot) []ConflictRuleResult {
	var out []ConflictRuleResult
	for _, d := range snap.Decisions {
		if d.NPCID == "" || !hasAnyTag(d.OutcomeTags, npcDeathTags) {
			continue
		}
		for _, rel := range snap.Relationships {
			if rel.EntityID != d.NPCID || rel.LastInteractionAt == nil {
				continue
			}
			if !rel.LastInteractionAt.After(d.Timestamp) {
				continue
			}
			out = append(out, ConflictRuleResult{
				Triggered:        true,
				ConflictType:     "npc_state",
				InvolvedEntities: []string{d.NPCID},
				ConflictingFacts: map[string]any{
					"decision_id":         d.DecisionID,
					"declared_dead_at":    d.Timestamp,
					"last_interaction_at": rel.LastInteractionAt,
				},
				Severity: "major",
			})
		}
	}
	return out
}

// questLogicRule flags an arc whose recorded decisions carry two
// mutually exclusive outcome tags.
func (e *ConflictEngine) questLogicRule(snap *story.Snapshot) []ConflictRuleResult {
	tagsByArc := make(map[string]map[string]string)
	for _, d := range snap.Decisions {
		if d.ArcID == "" {
			continue
		}
		seen, ok := tagsByArc[d.ArcID]
		if !ok {
			seen = make(map[string]string)
			tagsByArc[d.ArcID] = seen
		}
		for _, tag := range d.OutcomeTags {
			seen[tag] = d.DecisionID
		}
	}

	var out []ConflictRuleResult
	for arcID, seen := range tagsByArc {
		for _, pair := range contradictoryOutcomeTags {
			a, okA := seen[pair[0]]
			b, okB := seen[pair[1]]
			if !okA || !okB {
				continue
			}
			out = append(out, ConflictRuleResult{
				Triggered:        true,
				ConflictType:     "quest_logic",
				InvolvedEntities: []string{arcID},
				ConflictingFacts: map[string]any{
					"arc_id":       arcID,
					pair[0]:       a,
					pair[1]:       b,
				},
				Severity: "moderate",
			})
		}
	}
	return out
}

func hasAnyTag(tags []string, set map[string]struct{}) bool {
	for _, t := range tags {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}
