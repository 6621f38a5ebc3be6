package vision

import "testing"

func TestSummarizeComputesCompositeScores(t *testing.T) {
	findings := []Finding{
		{DetectorType: "rendering", IssueType: "missing_camera_view", Severity: 0.9},
		{DetectorType: "animation", IssueType: "choppy_sample", Severity: 0.2},
		{DetectorType: "performance", IssueType: "low_avg_fps", Severity: 0.85},
	}
	s := Summarize("build1", "scene1", findings)

	if s.IssueCounts["rendering"] != 1 || s.IssueCounts["animation"] != 1 {
		t.Fatalf("unexpected issue counts: %+v", s.IssueCounts)
	}
	if len(s.CriticalIssues) != 2 {
		t.Fatalf("expected 2 critical issues (severity>=0.8), got %+v", s.CriticalIssues)
	}
	if s.VisualQuality >= 1 || s.VisualQuality < 0 {
		t.Errorf("visual quality out of range: %.3f", s.VisualQuality)
	}
	if s.TechnicalStability >= 1 {
		t.Errorf("expected technical stability penalized by performance severity, got %.3f", s.TechnicalStability)
	}
}

func TestSummarizeCapsCriticalIssuesAtFive(t *testing.T) {
	var findings []Finding
	for i := 0; i < 8; i++ {
		findings = append(findings, Finding{
			DetectorType: "rendering",
			IssueType:    "issue",
			Severity:     0.85,
		})
	}
	s := Summarize("b", "s", findings)
	if len(s.CriticalIssues) != 5 {
		t.Fatalf("expected critical issues capped at 5, got %d", len(s.CriticalIssues))
	}
}

func TestSummarizeEmptyFindings(t *testing.T) {
	s := Summarize("b", "s", nil)
	if s.VisualQuality != 1 || s.HorrorAtmosphere != 1 || s.TechnicalStability != 1 {
		t.Errorf("expected perfect scores with no findings, got %+v", s)
	}
	if len(s.CriticalIssues) != 0 {
		t.Errorf("expected no critical issues, got %+v", s.CriticalIssues)
	}
}
