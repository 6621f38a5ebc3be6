package vision

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bodybroker/core/pkg/bus"
	"github.com/bodybroker/core/pkg/metrics"
)

// WorkerStatus is a worker's current state, surfaced through Health.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth is the point-in-time health snapshot of one worker.
type WorkerHealth struct {
	ID                string
	Status            WorkerStatus
	CurrentSegmentID  string
	SegmentsProcessed int
	LastActivity      time.Time
}

// Worker leases rows from the analysis queue and runs them through the
// quality gate, detector fan-out, and scene summary steps (§4.6).
type Worker struct {
	id           string
	repo         Repository
	registry     *Registry
	bus          bus.Publisher
	metrics      *metrics.Metrics
	pollInterval time.Duration
	logger       *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu                sync.RWMutex
	status            WorkerStatus
	currentSegmentID  string
	segmentsProcessed int
	lastActivity      time.Time
}

// NewWorker builds a Worker. m may be nil, in which case per-finding
// and per-segment metrics simply aren't recorded.
func NewWorker(id string, repo Repository, registry *Registry, b bus.Publisher, pollInterval time.Duration, m *metrics.Metrics, logger *zap.Logger) *Worker {
	return &Worker{
		id:           id,
		repo:         repo,
		registry:     registry,
		bus:          b,
		metrics:      m,
		pollInterval: pollInterval,
		logger:       logger,
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start runs the worker's poll loop in a goroutine until Stop or ctx
// cancellation; in-flight work completes before exit (§4.6).
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.done
}

func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:                w.id,
		Status:            w.status,
		CurrentSegmentID:  w.currentSegmentID,
		SegmentsProcessed: w.segmentsProcessed,
		LastActivity:      w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	w.logger.Info("vision worker started", zap.String("worker_id", w.id))

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoSegmentAvailable) {
					w.sleep(w.pollInterval)
					continue
				}
				w.logger.Error("vision worker: process error", zap.String("worker_id", w.id), zap.Error(err))
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess is one lease → gate → fan-out → summarize →
// terminate cycle (§4.6's numbered steps).
func (w *Worker) pollAndProcess(ctx context.Context) error {
	entry, err := w.repo.LeaseNext(ctx)
	if err != nil {
		return err
	}

	w.setStatus(WorkerStatusWorking, entry.SegmentID)
	defer w.setStatus(WorkerStatusIdle, "")

	segment, err := w.repo.GetSegment(ctx, entry.SegmentID)
	if err != nil {
		if errors.Is(err, ErrSegmentNotFound) {
			return w.repo.MarkQueueStatus(ctx, entry.QueueID, QueueFailed)
		}
		return err
	}

	quality := AnalyzeQuality(segment.Context)
	now := time.Now()
	if quality.Level != QualityGood {
		qf := QualityFinding(segment.SegmentID, quality, now)
		if err := w.persistAndPublish(ctx, qf); err != nil {
			w.logger.Warn("vision worker: quality finding persist failed", zap.Error(err))
		}
	}
	if !quality.CanAnalyze {
		if err := w.repo.MarkSegmentStatus(ctx, segment.SegmentID, SegmentFailed); err != nil {
			return err
		}
		return w.repo.MarkQueueStatus(ctx, entry.QueueID, QueueFailed)
	}

	if err := w.repo.MarkSegmentStatus(ctx, segment.SegmentID, SegmentAnalyzing); err != nil {
		return err
	}

	if err := w.runDetectors(ctx, segment, quality); err != nil {
		w.logger.Error("vision worker: detector fan-out failed", zap.String("segment_id", segment.SegmentID), zap.Error(err))
		_ = w.repo.MarkSegmentStatus(ctx, segment.SegmentID, SegmentFailed)
		return w.repo.MarkQueueStatus(ctx, entry.QueueID, QueueFailed)
	}

	if err := w.repo.MarkSegmentStatus(ctx, segment.SegmentID, SegmentCompleted); err != nil {
		return err
	}
	if err := w.repo.MarkQueueStatus(ctx, entry.QueueID, QueueCompleted); err != nil {
		return err
	}

	w.mu.Lock()
	w.segmentsProcessed++
	w.mu.Unlock()
	return nil
}

// runDetectors fans out to every registered detector serially (§4.6
// step 4 — serial fan-out is the spec's "simplest correct
// implementation" option), quality-adjusts, persists, publishes, then
// summarizes.
func (w *Worker) runDetectors(ctx context.Context, segment *Segment, quality QualityVerdict) error {
	var all []Finding
	for _, det := range w.registry.All() {
		findings := det.Analyze(segment.Context)
		findings = det.Filter(findings)
		for i := range findings {
			findings[i].SegmentID = segment.SegmentID
			findings[i].DetectorType = det.Type()
			if findings[i].Timestamp.IsZero() {
				findings[i].Timestamp = time.Now()
			}
		}
		findings = ApplyQualityAdjustment(findings, quality)
		for _, f := range findings {
			if err := w.persistAndPublish(ctx, f); err != nil {
				return err
			}
			if w.metrics != nil {
				w.metrics.FindingConfidence.Observe(f.Confidence)
				if len(f.AffectedGoals) > 0 {
					w.metrics.GoalImpactTotal.WithLabelValues(f.DetectorType).Inc()
				}
			}
		}
		all = append(all, findings...)
	}

	if w.metrics != nil {
		w.metrics.FindingsPerSegment.Observe(float64(len(all)))
	}

	summary := Summarize(segment.BuildID, segment.SceneID, all)
	if err := w.repo.UpsertSceneSummary(ctx, summary.BuildID, summary.SceneID, summary.IssueCounts,
		summary.AvgSeverities, summary.CriticalIssues, summary.VisualQuality, summary.HorrorAtmosphere,
		summary.TechnicalStability); err != nil {
		return err
	}
	w.publishSummary(ctx, summary)
	return nil
}

func (w *Worker) persistAndPublish(ctx context.Context, f Finding) error {
	if err := w.repo.SaveFinding(ctx, f); err != nil {
		return err
	}
	w.publishFinding(ctx, f)
	return nil
}

func (w *Worker) publishFinding(ctx context.Context, f Finding) {
	if w.bus == nil {
		return
	}
	raw, err := json.Marshal(f)
	if err != nil {
		w.logger.Warn("vision worker: marshal finding failed", zap.Error(err))
		return
	}
	if err := w.bus.Publish(ctx, bus.VisionIssue, raw); err != nil {
		w.logger.Warn("vision worker: publish finding failed", zap.Error(err))
	}
}

func (w *Worker) publishSummary(ctx context.Context, s SceneSummary) {
	if w.bus == nil {
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		w.logger.Warn("vision worker: marshal summary failed", zap.Error(err))
		return
	}
	if err := w.bus.Publish(ctx, bus.VisionSceneSummary, raw); err != nil {
		w.logger.Warn("vision worker: publish summary failed", zap.Error(err))
	}
}

func (w *Worker) setStatus(status WorkerStatus, segmentID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentSegmentID = segmentID
	w.lastActivity = time.Now()
}
