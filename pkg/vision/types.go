// Package vision implements the 4D Vision Analyzer: a queue worker pool
// that runs a data-quality gate and a detector fan-out over gameplay
// segments, then aggregates per-scene summaries (§4.6-§4.9).
package vision

import "time"

// SegmentStatus is a segment's lifecycle stage.
type SegmentStatus string

const (
	SegmentPending   SegmentStatus = "pending"
	SegmentAnalyzing SegmentStatus = "analyzing"
	SegmentCompleted SegmentStatus = "completed"
	SegmentFailed    SegmentStatus = "failed"
)

// QueueStatus is an analysis_queue row's lifecycle stage.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
)

// DepthKind describes how a segment's depth data was produced (§4.7).
type DepthKind string

const (
	DepthAbsent      DepthKind = "absent"
	DepthSensor      DepthKind = "sensor"
	DepthEstimated   DepthKind = "estimated"
	DepthUnspecified DepthKind = "unspecified"
)

// requiredOptionalMetadata is the canonical optional-metadata field set
// §4.7's metadata_completeness factor checks for partial credit beyond
// the three required fields (build_id, level_name, scene_type). The
// spec leaves the optional set to the implementer; weather/time-of-day
// are the two fields checked here, and nothing else in the module reads them.
var requiredOptionalMetadata = []string{"weather", "time_of_day"}

// CameraView is one recorded camera's media reference.
type CameraView struct {
	CameraID string
	URI      string
}

// PerformanceMetrics carries the frame-rate samples §4.7 scores.
type PerformanceMetrics struct {
	AvgFPS *float64
	MinFPS *float64
	MaxFPS *float64
}

// SegmentContext is the input to the quality analyzer and every
// detector: everything known about one recorded gameplay segment
// (§3's "segment state").
type SegmentContext struct {
	BuildID   string
	LevelName string
	SceneType string

	OptionalMetadata map[string]string

	CameraViews []CameraView
	DepthKind   DepthKind

	Performance    PerformanceMetrics
	Duration       time.Duration
	GameplayEvents []time.Time

	FrameCount int
	Frames     []Frame
}

// Frame is one sampled frame a streaming detector consumes in order.
type Frame struct {
	Index     int
	Timestamp time.Time
	Metrics   map[string]float64
}

// Segment is the persisted record backing one analysis pass.
type Segment struct {
	SegmentID  string
	BuildID    string
	SceneID    string
	Status     SegmentStatus
	Context    SegmentContext
	CreatedAt  time.Time
	AnalyzedAt *time.Time
}

// Finding is one detector (or the quality gate's) observation,
// persisted and published when it survives filtering (§3, §4.8).
type Finding struct {
	FindingID     string
	SegmentID     string
	DetectorType  string
	IssueID       string
	IssueType     string
	Severity      float64
	Confidence    float64
	Timestamp     time.Time
	CameraID      *string
	ScreenCoords  map[string]any
	WorldCoords   map[string]any
	Description   string
	EvidenceRefs  []string
	Metrics       map[string]any
	AffectedGoals []string
	PlayerImpact  float64
}

// SceneSummary is the upserted per-(build,scene) rollup (§4.9).
type SceneSummary struct {
	BuildID            string
	SceneID            string
	TotalSegments      int
	AnalyzedSegments   int
	IssueCounts        map[string]int
	AvgSeverities      map[string]float64
	CriticalIssues     []string
	VisualQuality      float64
	HorrorAtmosphere   float64
	TechnicalStability float64
	LastUpdated        time.Time
}

// QueueEntry is one analysis_queue row (§3, §4.6).
type QueueEntry struct {
	QueueID       string
	SegmentID     string
	Priority      int
	Status        QueueStatus
	Attempts      int
	CreatedAt     time.Time
	LastAttemptAt *time.Time
	CompletedAt   *time.Time
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SeverityBucket buckets a finding severity per §4.8's metrics labels.
func SeverityBucket(severity float64) string {
	switch {
	case severity < 0.3:
		return "low"
	case severity < 0.6:
		return "medium"
	case severity < 0.8:
		return "high"
	default:
		return "critical"
	}
}
