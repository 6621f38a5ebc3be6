package drift

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bodybroker/core/pkg/story"
)

func evt(activityType, eventType string, payload map[string]any) story.Event {
	return story.Event{
		ActivityType: activityType,
		EventType:    eventType,
		Payload:      payload,
		OccurredAt:   time.Now(),
	}
}

func TestTimeAllocationAnalyzerTriggersOverThreshold(t *testing.T) {
	a := NewTimeAllocationAnalyzer([]string{"idle_emote_spam", "grinding_unrelated_zone"}, 0.25)
	events := []story.Event{
		evt("idle_emote_spam", "activity.logged", nil),
		evt("idle_emote_spam", "activity.logged", nil),
		evt("quest_progress", "activity.logged", nil),
		evt("quest_progress", "activity.logged", nil),
	}

	result := a.Analyze(events)

	assert.True(t, result.Triggered)
	assert.Equal(t, "time_allocation", result.DriftType)
	assert.InDelta(t, 0.5, result.Signal, 1e-9)
	assert.Equal(t, SeverityMajor, result.Severity)
}

func TestTimeAllocationAnalyzerUnderThresholdDoesNotTrigger(t *testing.T) {
	a := NewTimeAllocationAnalyzer([]string{"idle_emote_spam"}, 0.5)
	events := []story.Event{
		evt("idle_emote_spam", "activity.logged", nil),
		evt("quest_progress", "activity.logged", nil),
		evt("quest_progress", "activity.logged", nil),
	}

	result := a.Analyze(events)

	assert.False(t, result.Triggered)
}

func TestTimeAllocationAnalyzerEmptyWindow(t *testing.T) {
	a := NewTimeAllocationAnalyzer([]string{"idle_emote_spam"}, 0.25)
	result := a.Analyze(nil)

	assert.False(t, result.Triggered)
	assert.Equal(t, 0, result.Metrics["total_events"])
}

func TestQuestAllocationAnalyzerTriggersOnTangentialRatio(t *testing.T) {
	a := NewQuestAllocationAnalyzer(0.3)
	events := []story.Event{
		evt("", "quest.completed", map[string]any{"quest_type": "tangential"}),
		evt("", "quest.completed", map[string]any{"quest_type": "tangential"}),
		evt("", "quest.completed", map[string]any{"quest_type": "main"}),
		evt("", "decision.made", nil),
	}

	result := a.Analyze(events)

	assert.True(t, result.Triggered)
	assert.InDelta(t, 2.0/3.0, result.Signal, 1e-9)
}

func TestQuestAllocationAnalyzerIgnoresNonQuestEvents(t *testing.T) {
	a := NewQuestAllocationAnalyzer(0.3)
	result := a.Analyze([]story.Event{evt("", "decision.made", nil)})

	assert.False(t, result.Triggered)
	assert.Equal(t, 0, result.Metrics["total_quests"])
}

func TestThemeConsistencyAnalyzerStubNeverTriggers(t *testing.T) {
	a := NewThemeConsistencyAnalyzer(0.7)
	result := a.Analyze(nil)

	assert.False(t, result.Triggered)
	assert.Equal(t, 1.0, result.Signal)
}

func TestSeverityForBuckets(t *testing.T) {
	assert.Equal(t, SeverityMinor, severityFor(0.30, 0.25))
	assert.Equal(t, SeverityModerate, severityFor(0.40, 0.25))
	assert.Equal(t, SeverityMajor, severityFor(0.60, 0.25))
	assert.Equal(t, SeverityMajor, severityFor(1.0, 0))
}

func TestMaxSeverityPicksHigherRank(t *testing.T) {
	assert.Equal(t, SeverityMajor, maxSeverity(SeverityMinor, SeverityMajor))
	assert.Equal(t, SeverityModerate, maxSeverity(SeverityModerate, SeverityMinor))
}
