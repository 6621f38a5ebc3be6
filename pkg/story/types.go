// Package story implements the Story State Manager (§4.2): per-player
// narrative state, its invariants, and the snapshot assembled from it.
package story

import "time"

// ArcRole classifies why an arc exists in a player's progress list.
type ArcRole string

const (
	ArcRoleMain       ArcRole = "main"
	ArcRoleSide       ArcRole = "side"
	ArcRoleExperience ArcRole = "experience"
	ArcRoleAmbient    ArcRole = "ambient"
)

// ProgressState is where a player stands within one arc.
type ProgressState string

const (
	ProgressNotStarted ProgressState = "not_started"
	ProgressEarly       ProgressState = "early"
	ProgressMid         ProgressState = "mid"
	ProgressLate        ProgressState = "late"
	ProgressCompleted   ProgressState = "completed"
)

// EntityType distinguishes relationship targets.
type EntityType string

const (
	EntityNPC     EntityType = "npc"
	EntityFaction EntityType = "faction"
)

// ExperienceStatus is the lifecycle state of an experience entry.
type ExperienceStatus string

const (
	ExperienceActive    ExperienceStatus = "active"
	ExperienceCompleted ExperienceStatus = "completed"
	ExperienceFailed    ExperienceStatus = "failed"
	ExperienceAbandoned ExperienceStatus = "abandoned"
)

// DarkWorldFamilies is the fixed set of eight families every player gets
// exactly one standing row for at initialization (§3).
var DarkWorldFamilies = []string{
	"the_broker_collective",
	"flesh_markets",
	"the_surgeons_guild",
	"debt_collectors",
	"soul_traders",
	"the_butcher_houses",
	"vein_courts",
	"hollow_choir",
}

// ArcProgress tracks one player's standing within one arc.
type ArcProgress struct {
	ArcID         string
	ArcRole       ArcRole
	ProgressState ProgressState
	LastBeatID    string
	UpdatedAt     time.Time
}

// Decision is one retained player choice, newest-first in a snapshot.
type Decision struct {
	DecisionID  string
	ArcID       string
	NPCID       string
	ChoiceLabel string
	OutcomeTags []string
	MoralWeight float64
	Timestamp   time.Time
}

// Relationship is a player's standing with one NPC or faction.
type Relationship struct {
	EntityID        string
	EntityType      EntityType
	Score           float64
	Flags           []string
	LastInteraction string
	LastInteractionAt *time.Time
}

// DarkWorldStanding is a player's standing with one of the eight fixed
// dark-world families.
type DarkWorldStanding struct {
	Family          string
	Score           float64
	FavorsOwed      int
	DebtsOwed       int
	BetrayalCount   int
	SpecialStatus   []string
	LastInteraction string
}

// Experience is a bounded narrative arc outside the main/side taxonomy.
type Experience struct {
	ExperienceID     string
	Status           ExperienceStatus
	EmotionalImpact  map[string]float64
	CrossReferences  []string
	StartedAt        time.Time
	CompletedAt      *time.Time
}

// ConflictAlert is a persisted violation of one of §4.5's three
// conflict-rule families (NPC-state, quest-logic, world-vs-story).
type ConflictAlert struct {
	AlertID          string
	PlayerID         string
	ConflictType     string
	InvolvedEntities []string
	ConflictingFacts map[string]any
	Severity         string
	CreatedAt        time.Time
}

// Event is one row of the append-only per-player audit log.
type Event struct {
	PlayerID     string
	SequenceNum  int64
	EventType    string
	ActivityType string
	Payload      map[string]any
	OccurredAt   time.Time
}

// Snapshot is the fully populated, read-only view of a player's
// narrative state (§3), what get_snapshot returns and what the cache
// stores.
type Snapshot struct {
	PlayerID            string
	SurgeonButcherScore float64
	BrokerBookState     map[string]any
	DebtOfFleshState    map[string]any
	ArcProgress         []ArcProgress
	Decisions           []Decision
	Relationships       []Relationship
	DarkWorldStandings  []DarkWorldStanding
	Experiences         []Experience
}

const (
	maxRetainedDecisions = 20
	scoreMin             = -1.0
	scoreMax             = 1.0
	relationshipScoreMin = -100.0
	relationshipScoreMax = 100.0
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
