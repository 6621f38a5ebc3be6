// Package detector implements the six shipped detector types named in
// §4.8 (animation, physics, rendering, lighting, performance, flow).
// Their signal extraction is explicitly out of core scope ("data-driven
// ... outside the core spec"); each returns a deterministic placeholder
// finding derived from segment/frame data rather than a random signal,
// per the Open Question decision against the original implementation's
// use of randomness for this same purpose.
package detector

import (
	"fmt"

	"github.com/bodybroker/core/pkg/config"
	"github.com/bodybroker/core/pkg/vision"
)

// baseDetector holds the shared Capabilities/Thresholds/Filter plumbing
// every stub detector embeds.
type baseDetector struct {
	typeName     string
	capabilities vision.Capabilities
	thresholds   vision.Thresholds
}

func (b baseDetector) Type() string                       { return b.typeName }
func (b baseDetector) Capabilities() vision.Capabilities   { return b.capabilities }
func (b baseDetector) Filter(f []vision.Finding) []vision.Finding {
	return vision.FilterByThreshold(f, b.thresholds)
}

func thresholdsFromConfig(config map[string]any) vision.Thresholds {
	t := vision.DefaultThresholds()
	if v, ok := config["confidence_threshold"].(float64); ok {
		t.Confidence = v
	}
	if v, ok := config["severity_threshold"].(float64); ok {
		t.Severity = v
	}
	return t
}

// RegisterDefaults registers all six shipped detector factories under
// their canonical type names (§4.8).
func RegisterDefaults(r *vision.Registry) {
	r.Register("animation", newAnimationDetector)
	r.Register("physics", newPhysicsDetector)
	r.Register("rendering", newRenderingDetector)
	r.Register("lighting", newLightingDetector)
	r.Register("performance", newPerformanceDetector)
	r.Register("flow", newFlowDetector)
}

// DefaultOrder is the fan-out order §4.6 step 4 walks serially.
var DefaultOrder = []string{"animation", "physics", "rendering", "lighting", "performance", "flow"}

// severityLabelToThreshold maps the config file's named severity
// buckets (minor/moderate/major, reused from the drift detector's
// vocabulary) onto the numeric severity_threshold Filter compares
// against.
var severityLabelToThreshold = map[string]float64{
	"minor":    0.3,
	"moderate": 0.5,
	"major":    0.7,
}

// ThresholdConfigs translates the operator-facing YAML thresholds into
// the per-type config map Registry.Build expects.
func ThresholdConfigs(fileConfig *config.DetectorFileConfig) map[string]map[string]any {
	out := make(map[string]map[string]any, len(fileConfig.Detectors))
	for name, t := range fileConfig.Detectors {
		severity, ok := severityLabelToThreshold[t.Severity]
		if !ok {
			severity = vision.DefaultThresholds().Severity
		}
		out[name] = map[string]any{
			"confidence_threshold": t.MinConfidence,
			"severity_threshold":   severity,
		}
	}
	return out
}

// animationDetector flags segments with a low frame sample count,
// treating a sparse capture as a proxy for choppy/incomplete animation
// data (deterministic stand-in for real pose/blend analysis).
type animationDetector struct{ baseDetector }

func newAnimationDetector(config map[string]any) vision.Detector {
	return animationDetector{baseDetector{
		typeName: "animation",
		capabilities: vision.Capabilities{
			SupportedIssueTypes: []string{"animation.choppy_sample", "animation.missing_frames"},
			RequiresDepth:       false,
			PerformanceImpact:   vision.ImpactMedium,
			Configuration:       config,
		},
		thresholds: thresholdsFromConfig(config),
	}}
}

func (d animationDetector) Analyze(ctx vision.SegmentContext) []vision.Finding {
	if ctx.FrameCount == 0 || ctx.FrameCount >= 30 {
		return nil
	}
	severity := vision.DefaultThresholds().Severity + float64(30-ctx.FrameCount)/100
	return []vision.Finding{{
		IssueID:      "animation.choppy_sample",
		IssueType:    "choppy_sample",
		Severity:     clampReported(severity),
		Confidence:   0.8,
		Description:  fmt.Sprintf("segment captured only %d frames, below the 30-frame smoothness baseline", ctx.FrameCount),
		Metrics:      map[string]any{"frame_count": ctx.FrameCount},
		PlayerImpact: 0.2,
	}}
}

// physicsDetector flags segments whose declared min fps dipped low
// enough that physics stepping is likely to have skipped ticks.
type physicsDetector struct{ baseDetector }

func newPhysicsDetector(config map[string]any) vision.Detector {
	return physicsDetector{baseDetector{
		typeName: "physics",
		capabilities: vision.Capabilities{
			SupportedIssueTypes: []string{"physics.tick_skip"},
			RequiresDepth:       false,
			PerformanceImpact:   vision.ImpactLow,
			Configuration:       config,
		},
		thresholds: thresholdsFromConfig(config),
	}}
}

func (d physicsDetector) Analyze(ctx vision.SegmentContext) []vision.Finding {
	if ctx.Performance.MinFPS == nil || *ctx.Performance.MinFPS >= 20 {
		return nil
	}
	severity := clampReported(1 - *ctx.Performance.MinFPS/20)
	return []vision.Finding{{
		IssueID:      "physics.tick_skip",
		IssueType:    "tick_skip",
		Severity:     severity,
		Confidence:   0.75,
		Description:  fmt.Sprintf("min fps %.1f is low enough to risk physics tick skips", *ctx.Performance.MinFPS),
		Metrics:      map[string]any{"min_fps": *ctx.Performance.MinFPS},
		PlayerImpact: 0.3,
	}}
}

// renderingDetector flags segments missing camera media, the clearest
// deterministic signal of a broken render target in a recorded segment.
type renderingDetector struct{ baseDetector }

func newRenderingDetector(config map[string]any) vision.Detector {
	return renderingDetector{baseDetector{
		typeName: "rendering",
		capabilities: vision.Capabilities{
			SupportedIssueTypes: []string{"rendering.missing_camera_view"},
			RequiresDepth:       false,
			PerformanceImpact:   vision.ImpactMedium,
			Configuration:       config,
		},
		thresholds: thresholdsFromConfig(config),
	}}
}

func (d renderingDetector) Analyze(ctx vision.SegmentContext) []vision.Finding {
	var missing []string
	for _, v := range ctx.CameraViews {
		if v.URI == "" {
			missing = append(missing, v.CameraID)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	severity := clampReported(float64(len(missing)) / float64(len(ctx.CameraViews)))
	return []vision.Finding{{
		IssueID:      "rendering.missing_camera_view",
		IssueType:    "missing_camera_view",
		Severity:     severity,
		Confidence:   0.9,
		Description:  fmt.Sprintf("%d of %d camera views have no media URI", len(missing), len(ctx.CameraViews)),
		Metrics:      map[string]any{"missing_cameras": missing},
		PlayerImpact: 0.1,
	}}
}

// lightingDetector flags segments with no depth data at all, since
// depth absence correlates with lighting/shadow passes that cannot be
// verified (a stand-in for real luminance-histogram analysis).
type lightingDetector struct{ baseDetector }

func newLightingDetector(config map[string]any) vision.Detector {
	return lightingDetector{baseDetector{
		typeName: "lighting",
		capabilities: vision.Capabilities{
			SupportedIssueTypes: []string{"lighting.unverifiable_shadow_pass"},
			RequiresDepth:       true,
			PerformanceImpact:   vision.ImpactHigh,
			Configuration:       config,
		},
		thresholds: thresholdsFromConfig(config),
	}}
}

func (d lightingDetector) Analyze(ctx vision.SegmentContext) []vision.Finding {
	if ctx.DepthKind != vision.DepthAbsent {
		return nil
	}
	return []vision.Finding{{
		IssueID:      "lighting.unverifiable_shadow_pass",
		IssueType:    "unverifiable_shadow_pass",
		Severity:     0.4,
		Confidence:   0.7,
		Description:  "no depth data recorded; shadow/contact pass cannot be verified",
		Metrics:      map[string]any{"depth_kind": string(ctx.DepthKind)},
		PlayerImpact: 0.15,
	}}
}

// performanceDetector flags segments whose average fps is below a
// smoothness baseline.
type performanceDetector struct{ baseDetector }

func newPerformanceDetector(config map[string]any) vision.Detector {
	return performanceDetector{baseDetector{
		typeName: "performance",
		capabilities: vision.Capabilities{
			SupportedIssueTypes: []string{"performance.low_avg_fps"},
			RequiresDepth:       false,
			PerformanceImpact:   vision.ImpactLow,
			Configuration:       config,
		},
		thresholds: thresholdsFromConfig(config),
	}}
}

func (d performanceDetector) Analyze(ctx vision.SegmentContext) []vision.Finding {
	if ctx.Performance.AvgFPS == nil || *ctx.Performance.AvgFPS >= 30 {
		return nil
	}
	severity := clampReported(1 - *ctx.Performance.AvgFPS/30)
	return []vision.Finding{{
		IssueID:      "performance.low_avg_fps",
		IssueType:    "low_avg_fps",
		Severity:     severity,
		Confidence:   0.85,
		Description:  fmt.Sprintf("avg fps %.1f is below the 30fps smoothness baseline", *ctx.Performance.AvgFPS),
		Metrics:      map[string]any{"avg_fps": *ctx.Performance.AvgFPS},
		PlayerImpact: 0.25,
	}}
}

// flowDetector flags segments with long gaps between gameplay events,
// treating that as a proxy for a broken or stalled gameplay flow.
type flowDetector struct{ baseDetector }

func newFlowDetector(config map[string]any) vision.Detector {
	return flowDetector{baseDetector{
		typeName: "flow",
		capabilities: vision.Capabilities{
			SupportedIssueTypes: []string{"flow.stalled_sequence"},
			RequiresDepth:       false,
			PerformanceImpact:   vision.ImpactLow,
			Configuration:       config,
		},
		thresholds: thresholdsFromConfig(config),
	}}
}

func (d flowDetector) Analyze(ctx vision.SegmentContext) []vision.Finding {
	gaps := 0
	for i := 1; i < len(ctx.GameplayEvents); i++ {
		if ctx.GameplayEvents[i].Sub(ctx.GameplayEvents[i-1]).Seconds() > 30 {
			gaps++
		}
	}
	if gaps == 0 {
		return nil
	}
	severity := clampReported(float64(gaps) * 0.2)
	return []vision.Finding{{
		IssueID:      "flow.stalled_sequence",
		IssueType:    "stalled_sequence",
		Severity:     severity,
		Confidence:   0.72,
		Description:  fmt.Sprintf("%d gap(s) over 30s detected between gameplay events", gaps),
		Metrics:      map[string]any{"gap_count": gaps},
		PlayerImpact: 0.2,
	}}
}

func clampReported(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
