package bus

// Well-known subjects (§6). We commit to this taxonomy as the default;
// implementers may remap via configuration, but nothing in this module
// does, per the Open Question decision recorded in SPEC_FULL.md.
const (
	// StoryEventsPrefix is prepended to an event type to build the
	// inbound subject for the Event Ingestor's routing table (§4.4):
	// "story.events.<type>".
	StoryEventsPrefix = "story.events."
	// StoryEventsWildcard subscribes to every story event type at once.
	StoryEventsWildcard = "story.events.>"

	StoryDriftOut        = "events.story.v1.drift"
	StoryConflictOut     = "events.story.v1.conflict_alert"
	StoryArcCompletedOut = "story.arc.completed"
	StoryConflictOut2    = "story.conflict.detected"

	StoryGetSnapshot          = "story.get.snapshot"
	StoryGetArcProgress       = "story.get.arc_progress"
	StoryGetRelationships     = "story.get.relationships"
	StoryGetDarkWorldStanding = "story.get.dark_world_standings"
	StoryCheckDrift           = "story.check.drift"
	StoryUpdatePrefix         = "story.update."

	// StoryHealth is the service-specific health subject for the story
	// memory service, following the same "<service>.health.<name>" shape
	// as VisionHealth/OrchestratorHealth.
	StoryHealth = "story.health.storymemory"

	VisionAnalyzeRequest       = "vision.analyze.request"
	VisionAnalyzeWorkersGroup  = "vision_analyzer_workers"
	VisionIssue                = "vision.issue"
	VisionSceneSummary         = "vision.scene.summary"
	VisionHealth               = "vision.health.analyzer"
	SysHealth4DVision          = "SYS.HEALTH.4D_VISION"

	// OrchestratorHealth is the service-specific health subject for the
	// training orchestrator, following the same "<service>.health.<name>"
	// shape as VisionHealth.
	OrchestratorHealth = "collab.health.orchestrator"

	// OrchestratorGenerateTrainingExamples is the request/reply subject
	// wrapping generate_training_examples(species, model_type, n, rules?),
	// following the same request/reply shape as the story.get.*/
	// story.check.drift subjects.
	OrchestratorGenerateTrainingExamples = "orchestrator.generate.training_examples"
)

// EventType is the routing key used in §4.4's handler table.
type EventType string

const (
	EventArcBeatReached      EventType = "arc.beat.reached"
	EventArcStarted          EventType = "arc.started"
	EventArcCompleted        EventType = "arc.completed"
	EventQuestCompleted      EventType = "quest.completed"
	EventExperienceCompleted EventType = "experience.completed"
	EventRelationshipChanged EventType = "relationship.changed"
	EventDecisionMade        EventType = "decision.made"
	EventMoralChoice         EventType = "moral.choice"
	EventPlayerDeath         EventType = "player.death"
	EventSoulEchoEncounter   EventType = "soul.echo.encounter"
	EventWorldStateChanged   EventType = "world.state.changed"
)

// StorySubjectFor builds the inbound subject for an event type.
func StorySubjectFor(t EventType) string {
	return StoryEventsPrefix + string(t)
}
