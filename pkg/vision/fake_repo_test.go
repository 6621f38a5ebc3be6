package vision

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fakeRepo is an in-memory Repository for worker/pool/admission tests,
// mirroring pkg/story/drift's fakeRepo pattern.
type fakeRepo struct {
	mu sync.Mutex

	segments map[string]*Segment
	queue    map[string]*QueueEntry
	findings []Finding
	summaries map[string]SceneSummary
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		segments:  make(map[string]*Segment),
		queue:     make(map[string]*QueueEntry),
		summaries: make(map[string]SceneSummary),
	}
}

func (r *fakeRepo) putSegment(s *Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segments[s.SegmentID] = s
}

func (r *fakeRepo) LeaseNext(ctx context.Context) (*QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []*QueueEntry
	for _, e := range r.queue {
		if e.Status == QueuePending {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoSegmentAvailable
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	e := candidates[0]
	e.Status = QueueProcessing
	e.Attempts++
	now := time.Now()
	e.LastAttemptAt = &now
	cp := *e
	return &cp, nil
}

func (r *fakeRepo) GetSegment(ctx context.Context, segmentID string) (*Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.segments[segmentID]
	if !ok {
		return nil, ErrSegmentNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) MarkSegmentStatus(ctx context.Context, segmentID string, status SegmentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.segments[segmentID]; ok {
		s.Status = status
	}
	return nil
}

func (r *fakeRepo) MarkQueueStatus(ctx context.Context, queueID string, status QueueStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.queue[queueID]; ok {
		e.Status = status
	}
	return nil
}

func (r *fakeRepo) SaveFinding(ctx context.Context, f Finding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f.FindingID == "" {
		f.FindingID = uuid.NewString()
	}
	r.findings = append(r.findings, f)
	return nil
}

func (r *fakeRepo) UpsertSceneSummary(ctx context.Context, buildID, sceneID string, counts map[string]int, avgSeverities map[string]float64, critical []string, visualQuality, horrorAtmosphere, technicalStability float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := buildID + "/" + sceneID
	r.summaries[key] = SceneSummary{
		BuildID: buildID, SceneID: sceneID, IssueCounts: counts, AvgSeverities: avgSeverities,
		CriticalIssues: critical, VisualQuality: visualQuality, HorrorAtmosphere: horrorAtmosphere,
		TechnicalStability: technicalStability, LastUpdated: time.Now(),
	}
	return nil
}

func (r *fakeRepo) AdmitSegment(ctx context.Context, segmentID string, priority int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.queue {
		if e.SegmentID == segmentID && e.Status == QueuePending {
			if priority > e.Priority {
				e.Priority = priority
			}
			return nil
		}
	}
	id := uuid.NewString()
	r.queue[id] = &QueueEntry{QueueID: id, SegmentID: segmentID, Priority: priority, Status: QueuePending, CreatedAt: time.Now()}
	return nil
}

func (r *fakeRepo) ResetStaleLeases(ctx context.Context, olderThan time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.queue {
		if e.Status == QueueProcessing && e.LastAttemptAt != nil && e.LastAttemptAt.Before(olderThan) {
			e.Status = QueuePending
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) PendingCount(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.queue {
		if e.Status == QueuePending {
			n++
		}
	}
	return n, nil
}

// fakeBus records every published message for assertions.
type fakeBus struct {
	mu        sync.Mutex
	published []fakePublished
}

type fakePublished struct {
	subject string
	data    []byte
}

func (b *fakeBus) Publish(ctx context.Context, subject string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, fakePublished{subject: subject, data: data})
	return nil
}
