package vision

import "time"

// QualityLevel is the bucketed overall data-quality verdict (§4.7).
type QualityLevel string

const (
	QualityGood     QualityLevel = "good"
	QualityDegraded QualityLevel = "degraded"
	QualityPoor     QualityLevel = "poor"
	QualityUnusable QualityLevel = "unusable"
)

// QualityVerdict is the Data Quality Analyzer's output for one segment.
type QualityVerdict struct {
	MediaAvailability    float64
	DepthQuality         float64
	PerformanceData      float64
	TemporalConsistency  float64
	MetadataCompleteness float64

	Overall              float64
	Level                QualityLevel
	CanAnalyze           bool
	ConfidenceAdjustment float64
}

// AnalyzeQuality computes the five factor scores and the overall
// verdict exactly as §4.7 specifies.
func AnalyzeQuality(ctx SegmentContext) QualityVerdict {
	v := QualityVerdict{
		MediaAvailability:    mediaAvailability(ctx),
		DepthQuality:         depthQuality(ctx),
		PerformanceData:      performanceData(ctx),
		TemporalConsistency:  temporalConsistency(ctx),
		MetadataCompleteness: metadataCompleteness(ctx),
	}

	v.Overall = (v.MediaAvailability + v.DepthQuality + v.PerformanceData +
		v.TemporalConsistency + v.MetadataCompleteness) / 5

	switch {
	case v.Overall >= 0.9:
		v.Level = QualityGood
	case v.Overall >= 0.7:
		v.Level = QualityDegraded
	case v.Overall >= 0.4:
		v.Level = QualityPoor
	default:
		v.Level = QualityUnusable
	}
	v.CanAnalyze = v.Level != QualityUnusable

	adjustment := v.Overall
	if v.MediaAvailability < 0.5 {
		adjustment *= 0.7
	}
	if v.TemporalConsistency < 0.5 {
		adjustment *= 0.8
	}
	if adjustment < 0.1 {
		adjustment = 0.1
	}
	v.ConfidenceAdjustment = adjustment

	return v
}

func mediaAvailability(ctx SegmentContext) float64 {
	if len(ctx.CameraViews) == 0 {
		return 0
	}
	nonEmpty := 0
	for _, v := range ctx.CameraViews {
		if v.URI != "" {
			nonEmpty++
		}
	}
	return float64(nonEmpty) / float64(len(ctx.CameraViews))
}

func depthQuality(ctx SegmentContext) float64 {
	switch ctx.DepthKind {
	case DepthSensor:
		return 1.0
	case DepthEstimated:
		return 0.6
	case DepthUnspecified:
		return 0.8
	default:
		return 0.0
	}
}

func performanceData(ctx SegmentContext) float64 {
	score := 1.0
	p := ctx.Performance
	if p.AvgFPS == nil {
		score -= 0.2
	}
	if p.MinFPS == nil {
		score -= 0.2
	}
	if p.MaxFPS == nil {
		score -= 0.2
	}
	if p.MinFPS != nil && *p.MinFPS < 10 {
		score -= 0.3
	}
	return clamp01(score)
}

func temporalConsistency(ctx SegmentContext) float64 {
	score := 1.0
	if ctx.Duration < time.Second {
		score -= 0.5
	}
	if ctx.Duration > 300*time.Second {
		score -= 0.2
	}
	for i := 1; i < len(ctx.GameplayEvents); i++ {
		if ctx.GameplayEvents[i].Sub(ctx.GameplayEvents[i-1]) > 30*time.Second {
			score -= 0.1
		}
	}
	return clamp01(score)
}

func metadataCompleteness(ctx SegmentContext) float64 {
	score := 1.0
	if ctx.BuildID == "" {
		score -= 0.3
	}
	if ctx.LevelName == "" {
		score -= 0.3
	}
	if ctx.SceneType == "" {
		score -= 0.3
	}
	for _, field := range requiredOptionalMetadata {
		if ctx.OptionalMetadata[field] == "" {
			score -= 0.1
		}
	}
	return clamp01(score)
}

// QualityFinding builds the finding §4.7 says to persist whenever
// level != good (severity scales with how bad the level is).
func QualityFinding(segmentID string, v QualityVerdict, now time.Time) Finding {
	var severity float64
	switch v.Level {
	case QualityDegraded:
		severity = 0.3
	case QualityPoor:
		severity = 0.6
	default:
		severity = 0.9
	}
	return Finding{
		SegmentID:    segmentID,
		DetectorType: "data_quality",
		IssueID:      "data_quality." + string(v.Level),
		IssueType:    "data_quality",
		Severity:     severity,
		Confidence:   0.95,
		Timestamp:    now,
		Description:  "segment data quality is " + string(v.Level),
		Metrics: map[string]any{
			"media_availability":    v.MediaAvailability,
			"depth_quality":         v.DepthQuality,
			"performance_data":      v.PerformanceData,
			"temporal_consistency":  v.TemporalConsistency,
			"metadata_completeness": v.MetadataCompleteness,
			"overall":               v.Overall,
		},
	}
}

// ApplyQualityAdjustment implements §4.7's post-filter for non-good
// inputs: drop low-confidence findings when the level is poor, then
// scale every surviving finding's confidence and annotate its
// description with the quality level.
func ApplyQualityAdjustment(findings []Finding, v QualityVerdict) []Finding {
	if v.Level == QualityGood {
		return findings
	}

	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if v.Level == QualityPoor && f.Confidence < 0.7 {
			continue
		}
		f.Confidence = clamp01(f.Confidence * v.ConfidenceAdjustment)
		f.Description = f.Description + " [quality: " + string(v.Level) + "]"
		out = append(out, f)
	}
	return out
}
