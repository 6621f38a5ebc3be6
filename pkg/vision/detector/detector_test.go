package detector

import (
	"testing"
	"time"

	"github.com/bodybroker/core/pkg/config"
	"github.com/bodybroker/core/pkg/vision"
)

func fps(v float64) *float64 { return &v }

func TestRegisterDefaultsBuildsAllSix(t *testing.T) {
	reg := vision.NewRegistry()
	RegisterDefaults(reg)
	reg.Build(DefaultOrder, ThresholdConfigs(config.DefaultDetectorFileConfig()))

	all := reg.All()
	if len(all) != 6 {
		t.Fatalf("expected 6 detectors, got %d", len(all))
	}
	seen := make(map[string]bool)
	for _, d := range all {
		seen[d.Type()] = true
	}
	for _, name := range DefaultOrder {
		if !seen[name] {
			t.Errorf("missing detector type %q", name)
		}
	}
}

func TestAnimationDetectorFlagsSparseFrameCount(t *testing.T) {
	d := newAnimationDetector(nil)
	findings := d.Analyze(vision.SegmentContext{FrameCount: 5})
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].IssueType != "choppy_sample" {
		t.Errorf("unexpected issue type %q", findings[0].IssueType)
	}
}

func TestAnimationDetectorSkipsSmoothCapture(t *testing.T) {
	d := newAnimationDetector(nil)
	findings := d.Analyze(vision.SegmentContext{FrameCount: 60})
	if len(findings) != 0 {
		t.Fatalf("expected no findings, got %d", len(findings))
	}
}

func TestPhysicsDetectorFlagsLowMinFPS(t *testing.T) {
	d := newPhysicsDetector(nil)
	findings := d.Analyze(vision.SegmentContext{Performance: vision.PerformanceMetrics{MinFPS: fps(5)}})
	if len(findings) != 1 || findings[0].IssueType != "tick_skip" {
		t.Fatalf("expected tick_skip finding, got %+v", findings)
	}
}

func TestPhysicsDetectorIgnoresMissingMetric(t *testing.T) {
	d := newPhysicsDetector(nil)
	if findings := d.Analyze(vision.SegmentContext{}); len(findings) != 0 {
		t.Fatalf("expected no findings, got %+v", findings)
	}
}

func TestRenderingDetectorFlagsMissingURI(t *testing.T) {
	d := newRenderingDetector(nil)
	findings := d.Analyze(vision.SegmentContext{CameraViews: []vision.CameraView{
		{CameraID: "front", URI: "s3://front.mp4"},
		{CameraID: "rear", URI: ""},
	}})
	if len(findings) != 1 || findings[0].IssueType != "missing_camera_view" {
		t.Fatalf("expected missing_camera_view finding, got %+v", findings)
	}
}

func TestLightingDetectorFlagsAbsentDepth(t *testing.T) {
	d := newLightingDetector(nil)
	findings := d.Analyze(vision.SegmentContext{DepthKind: vision.DepthAbsent})
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	findings = d.Analyze(vision.SegmentContext{DepthKind: vision.DepthSensor})
	if len(findings) != 0 {
		t.Fatalf("expected no findings with sensor depth, got %+v", findings)
	}
}

func TestPerformanceDetectorFlagsLowAvgFPS(t *testing.T) {
	d := newPerformanceDetector(nil)
	findings := d.Analyze(vision.SegmentContext{Performance: vision.PerformanceMetrics{AvgFPS: fps(10)}})
	if len(findings) != 1 || findings[0].IssueType != "low_avg_fps" {
		t.Fatalf("expected low_avg_fps finding, got %+v", findings)
	}
}

func TestFlowDetectorFlagsLongGaps(t *testing.T) {
	d := newFlowDetector(nil)
	base := time.Unix(0, 0)
	findings := d.Analyze(vision.SegmentContext{GameplayEvents: []time.Time{
		base,
		base.Add(45 * time.Second),
		base.Add(50 * time.Second),
	}})
	if len(findings) != 1 || findings[0].IssueType != "stalled_sequence" {
		t.Fatalf("expected stalled_sequence finding, got %+v", findings)
	}
}

func TestFlowDetectorIgnoresShortGaps(t *testing.T) {
	d := newFlowDetector(nil)
	base := time.Unix(0, 0)
	findings := d.Analyze(vision.SegmentContext{GameplayEvents: []time.Time{
		base,
		base.Add(5 * time.Second),
		base.Add(10 * time.Second),
	}})
	if len(findings) != 0 {
		t.Fatalf("expected no findings, got %+v", findings)
	}
}

func TestFilterDropsBelowThreshold(t *testing.T) {
	d := newRenderingDetector(map[string]any{"confidence_threshold": 0.95})
	findings := d.Filter([]vision.Finding{{Confidence: 0.9, Severity: 0.5}})
	if len(findings) != 0 {
		t.Fatalf("expected finding to be filtered out, got %+v", findings)
	}
}

func TestThresholdConfigsMapsSeverityLabels(t *testing.T) {
	cfgs := ThresholdConfigs(config.DefaultDetectorFileConfig())
	perf, ok := cfgs["performance"]
	if !ok {
		t.Fatal("expected performance entry")
	}
	if perf["severity_threshold"] != 0.7 {
		t.Errorf("expected major -> 0.7, got %v", perf["severity_threshold"])
	}
}
