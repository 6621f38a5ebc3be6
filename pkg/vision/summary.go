package vision

import (
	"fmt"
	"sort"
	"time"
)

// Summarize computes one segment's contribution to its scene summary
// (§4.9): per-detector issue counts and average severities, up to five
// critical issues, and the three composite scores.
func Summarize(buildID, sceneID string, findings []Finding) SceneSummary {
	counts := make(map[string]int)
	severitySums := make(map[string]float64)
	var critical []string

	for _, f := range findings {
		counts[f.DetectorType]++
		severitySums[f.DetectorType] += f.Severity
		if f.Severity >= 0.8 {
			critical = append(critical, fmt.Sprintf("%s (%s)", f.IssueType, f.DetectorType))
		}
	}

	avgSeverities := make(map[string]float64, len(counts))
	for detector, total := range severitySums {
		avgSeverities[detector] = total / float64(counts[detector])
	}

	sort.Strings(critical)
	if len(critical) > 5 {
		critical = critical[:5]
	}

	renderingAvg := avgSeverities["rendering"]
	animationAvg := avgSeverities["animation"]
	physicsAvg := avgSeverities["physics"]
	lightingAvg := avgSeverities["lighting"]
	performanceAvg := avgSeverities["performance"]
	flowAvg := avgSeverities["flow"]

	visualQuality := clamp01(1 - (0.5*renderingAvg + 0.3*animationAvg + 0.2*physicsAvg))
	horrorAtmosphere := clamp01(1 - lightingAvg)
	technicalStability := clamp01(1 - (0.6*performanceAvg + 0.4*flowAvg))

	return SceneSummary{
		BuildID:            buildID,
		SceneID:            sceneID,
		IssueCounts:        counts,
		AvgSeverities:      avgSeverities,
		CriticalIssues:     critical,
		VisualQuality:      visualQuality,
		HorrorAtmosphere:   horrorAtmosphere,
		TechnicalStability: technicalStability,
		LastUpdated:        time.Now(),
	}
}
