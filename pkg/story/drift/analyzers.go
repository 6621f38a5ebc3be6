package drift

import (
	"github.com/bodybroker/core/pkg/story"
)

// TimeAllocationAnalyzer triggers when too much of a player's
// activity-logged time in the window falls into the configured
// off-theme activity set (§4.5).
type TimeAllocationAnalyzer struct {
	OffThemeActivities map[string]struct{}
	Threshold          float64
}

func NewTimeAllocationAnalyzer(offTheme []string, threshold float64) *TimeAllocationAnalyzer {
	set := make(map[string]struct{}, len(offTheme))
	for _, a := range offTheme {
		set[a] = struct{}{}
	}
	return &TimeAllocationAnalyzer{OffThemeActivities: set, Threshold: threshold}
}

func (a *TimeAllocationAnalyzer) Analyze(events []story.Event) AnalyzerResult {
	counts := make(map[string]int)
	total := 0
	for _, e := range events {
		if e.ActivityType == "" {
			continue
		}
		counts[e.ActivityType]++
		total++
	}

	if total == 0 {
		return AnalyzerResult{DriftType: "time_allocation", Metrics: map[string]any{"total_events": 0}}
	}

	offThemeCount := 0
	for activity, n := range counts {
		if _, ok := a.OffThemeActivities[activity]; ok {
			offThemeCount += n
		}
	}
	ratio := float64(offThemeCount) / float64(total)

	return AnalyzerResult{
		Triggered: ratio > a.Threshold,
		DriftType: "time_allocation",
		Signal:    ratio,
		Threshold: a.Threshold,
		Severity:  severityFor(ratio, a.Threshold),
		Metrics:   map[string]any{"off_theme_ratio": ratio, "distribution": counts},
	}
}

// QuestAllocationAnalyzer triggers when too much quest-completion
// activity in the window is tagged tangential (§4.5).
type QuestAllocationAnalyzer struct {
	Threshold float64
}

func NewQuestAllocationAnalyzer(threshold float64) *QuestAllocationAnalyzer {
	return &QuestAllocationAnalyzer{Threshold: threshold}
}

func (a *QuestAllocationAnalyzer) Analyze(events []story.Event) AnalyzerResult {
	counts := make(map[string]int)
	total := 0
	for _, e := range events {
		if e.EventType != "quest.completed" {
			continue
		}
		questType, _ := e.Payload["quest_type"].(string)
		if questType == "" {
			questType = "unknown"
		}
		counts[questType]++
		total++
	}

	if total == 0 {
		return AnalyzerResult{DriftType: "quest_allocation", Metrics: map[string]any{"total_quests": 0}}
	}

	ratio := float64(counts["tangential"]) / float64(total)

	return AnalyzerResult{
		Triggered: ratio > a.Threshold,
		DriftType: "quest_allocation",
		Signal:    ratio,
		Threshold: a.Threshold,
		Severity:  severityFor(ratio, a.Threshold),
		Metrics:   map[string]any{"tangential_ratio": ratio, "distribution": counts},
	}
}

// ThemeConsistencyAnalyzer is the placeholder contract named in §4.5:
// it accepts content identifiers from the window and returns a
// consistency score. Implementers may stub this as always-passing —
// this implementation does exactly that, since no content-similarity
// model is in scope for this module.
type ThemeConsistencyAnalyzer struct {
	Threshold float64
}

func NewThemeConsistencyAnalyzer(threshold float64) *ThemeConsistencyAnalyzer {
	return &ThemeConsistencyAnalyzer{Threshold: threshold}
}

// Analyze always reports a perfect consistency score of 1.0 — a
// documented stub (§4.5 permits this explicitly).
func (a *ThemeConsistencyAnalyzer) Analyze(_ []story.Event) AnalyzerResult {
	const score = 1.0
	return AnalyzerResult{
		Triggered: score < a.Threshold,
		DriftType: "theme_consistency",
		Signal:    score,
		Threshold: a.Threshold,
		Severity:  severityFor(a.Threshold-score, a.Threshold),
		Metrics:   map[string]any{"consistency_score": score, "stub": true},
	}
}
