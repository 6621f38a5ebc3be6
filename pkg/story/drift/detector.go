package drift

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bodybroker/core/pkg/bus"
	appmetrics "github.com/bodybroker/core/pkg/metrics"
	"github.com/bodybroker/core/pkg/story"
)

// Config bundles the three analyzer thresholds (§6: DRIFT_TANGENTIAL,
// DRIFT_OFF_THEME, DRIFT_THEME_MIN).
type Config struct {
	Tangential float64
	OffTheme   float64
	ThemeMin   float64
}

// Detector runs the three sequential analyzers plus the conflict rule
// engine for one player at a time, and the periodic sweep across all
// recently active players (§4.5).
type Detector struct {
	repo    story.Repository
	bus     bus.Publisher
	metrics *appmetrics.Metrics
	logger  *zap.Logger

	timeAlloc  *TimeAllocationAnalyzer
	questAlloc *QuestAllocationAnalyzer
	themeCons  *ThemeConsistencyAnalyzer
	conflict   *ConflictEngine

	suppressWindow time.Duration
	suppressMu     sync.Mutex
	lastRun        map[string]time.Time
}

// NewDetector builds a Detector. offThemeActivities is the configured
// off-theme activity set consumed by the time-allocation analyzer. m
// may be nil, in which case drift-alert counts simply aren't recorded.
func NewDetector(repo story.Repository, b bus.Publisher, cfg Config, offThemeActivities []string, suppressWindow time.Duration, m *appmetrics.Metrics, logger *zap.Logger) *Detector {
	return &Detector{
		repo:           repo,
		bus:            b,
		metrics:        m,
		logger:         logger,
		timeAlloc:      NewTimeAllocationAnalyzer(offThemeActivities, cfg.OffTheme),
		questAlloc:     NewQuestAllocationAnalyzer(cfg.Tangential),
		themeCons:      NewThemeConsistencyAnalyzer(cfg.ThemeMin),
		conflict:       NewConflictEngine(repo, b, logger),
		suppressWindow: suppressWindow,
		lastRun:        make(map[string]time.Time),
	}
}

// CheckDrift is the on-demand entry point (§4.5). A per-player
// analysis cache suppresses redundant runs within the suppress window
// unless force is set.
func (d *Detector) CheckDrift(ctx context.Context, playerID string, windowHours int, force bool) (*Report, error) {
	if !force {
		d.suppressMu.Lock()
		last, ok := d.lastRun[playerID]
		d.suppressMu.Unlock()
		if ok && time.Since(last) < d.suppressWindow {
			return nil, nil
		}
	}

	report, err := d.runAnalyzers(ctx, playerID, time.Duration(windowHours)*time.Hour)
	if err != nil {
		return nil, err
	}

	d.suppressMu.Lock()
	d.lastRun[playerID] = time.Now()
	d.suppressMu.Unlock()

	if report != nil {
		if err := d.persistAndPublish(ctx, report); err != nil {
			return report, err
		}
	}

	if err := d.conflict.Check(ctx, playerID); err != nil {
		d.logger.Warn("drift: conflict check failed", zap.String("player_id", playerID), zap.Error(err))
	}

	return report, nil
}

// RunPeriodic sweeps every player with any event in the last 24 hours
// (§4.5's periodic loop, intended to be driven every 30 minutes by the
// owning service's periodic task scheduler).
func (d *Detector) RunPeriodic(ctx context.Context) {
	players, err := d.repo.PlayersWithEventsSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		d.logger.Error("drift: list active players failed", zap.Error(err))
		return
	}

	for _, playerID := range players {
		if _, err := d.CheckDrift(ctx, playerID, 24, true); err != nil {
			d.logger.Error("drift: periodic check failed", zap.String("player_id", playerID), zap.Error(err))
		}
	}
}

func (d *Detector) runAnalyzers(ctx context.Context, playerID string, window time.Duration) (*Report, error) {
	events, err := d.repo.EventsSince(ctx, playerID, time.Now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("drift: load events: %w", err)
	}

	results := []AnalyzerResult{
		d.timeAlloc.Analyze(events),
		d.questAlloc.Analyze(events),
		d.themeCons.Analyze(events),
	}

	var triggered []AnalyzerResult
	for _, r := range results {
		if r.Triggered {
			triggered = append(triggered, r)
		}
	}
	if len(triggered) == 0 {
		return nil, nil
	}

	driftType := triggered[0].DriftType
	severity := triggered[0].Severity
	score := triggered[0].Signal
	metrics := map[string]any{}
	for _, r := range triggered {
		severity = maxSeverity(severity, r.Severity)
		if r.Signal > score {
			score = r.Signal
		}
		metrics[r.DriftType] = r.Metrics
	}

	return &Report{
		PlayerID:    playerID,
		DriftType:   driftType,
		Severity:    severity,
		DriftScore:  score,
		Metrics:     metrics,
		Remediation: remediationFor(triggered),
		Timestamp:   time.Now().UTC(),
	}, nil
}

// remediationFor builds the deterministic remediation template driven
// by which analyzers triggered and, for time allocation, the top
// off-theme activities (§4.5).
func remediationFor(triggered []AnalyzerResult) string {
	var parts []string
	for _, r := range triggered {
		switch r.DriftType {
		case "time_allocation":
			top := topActivities(r.Metrics, 3)
			parts = append(parts, fmt.Sprintf("reduce time spent on off-theme activities (%s)", strings.Join(top, ", ")))
		case "quest_allocation":
			parts = append(parts, "steer quest selection back toward main/side arcs")
		case "theme_consistency":
			parts = append(parts, "review recent content for thematic consistency")
		}
	}
	if len(parts) == 0 {
		return "no remediation needed"
	}
	return strings.Join(parts, "; ")
}

func topActivities(metrics map[string]any, n int) []string {
	dist, ok := metrics["distribution"].(map[string]int)
	if !ok {
		return nil
	}
	type kv struct {
		k string
		v int
	}
	var pairs []kv
	for k, v := range dist {
		pairs = append(pairs, kv{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].v > pairs[j].v })
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.k
	}
	return out
}

func (d *Detector) persistAndPublish(ctx context.Context, r *Report) error {
	if err := d.repo.SaveDriftAlert(ctx, r.PlayerID, r.DriftType, string(r.Severity), r.DriftScore, r.Metrics, r.Remediation); err != nil {
		return fmt.Errorf("drift: persist alert: %w", err)
	}

	payload := map[string]any{
		"player_id":   r.PlayerID,
		"drift_type":  r.DriftType,
		"severity":    r.Severity,
		"drift_score": r.DriftScore,
		"metrics":     r.Metrics,
		"timestamp":   r.Timestamp,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if d.bus != nil {
		if err := d.bus.Publish(ctx, bus.StoryDriftOut, raw); err != nil {
			d.logger.Warn("drift: publish alert failed", zap.Error(err))
		}
	}
	if d.metrics != nil {
		d.metrics.DriftAlertsTotal.WithLabelValues(string(r.Severity)).Inc()
	}
	return nil
}
