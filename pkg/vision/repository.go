package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoSegmentAvailable signals an empty analysis_queue lease attempt.
var ErrNoSegmentAvailable = errors.New("vision: no segment available")

// ErrSegmentNotFound is returned when a queue row references a
// segment that no longer exists.
var ErrSegmentNotFound = errors.New("vision: segment not found")

// Repository is the persistence contract the worker pool and
// admission handler drive (§3, §4.6, §6's lease-style dequeue
// requirement).
type Repository interface {
	// LeaseNext atomically selects the next pending queue row ordered
	// by priority DESC, created_at ASC, marks it processing, bumps
	// attempts, and sets last_attempt_at — safe under concurrent
	// workers via "SELECT ... FOR UPDATE SKIP LOCKED" (§6).
	LeaseNext(ctx context.Context) (*QueueEntry, error)
	GetSegment(ctx context.Context, segmentID string) (*Segment, error)
	MarkSegmentStatus(ctx context.Context, segmentID string, status SegmentStatus) error
	MarkQueueStatus(ctx context.Context, queueID string, status QueueStatus) error

	SaveFinding(ctx context.Context, f Finding) error
	UpsertSceneSummary(ctx context.Context, buildID, sceneID string, counts map[string]int, avgSeverities map[string]float64, critical []string, visualQuality, horrorAtmosphere, technicalStability float64) error

	// AdmitSegment upserts a queue row for segmentID with
	// priority = max(existing, new) on an already-pending row, or
	// inserts a new one (§4.6).
	AdmitSegment(ctx context.Context, segmentID string, priority int) error

	// ResetStaleLeases reclaims processing rows whose last_attempt_at
	// is older than threshold, returning them to pending so another
	// worker can retry (§5's optional lease timeout sweeper).
	ResetStaleLeases(ctx context.Context, olderThan time.Time) (int, error)

	// PendingCount reports the current queue depth, used for the
	// pool's degraded-backpressure health signal (§5).
	PendingCount(ctx context.Context) (int, error)
}

// PgxRepository implements Repository against
// pkg/database/migrations/000002_vision.up.sql.
type PgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) *PgxRepository {
	return &PgxRepository{pool: pool}
}

func (r *PgxRepository) LeaseNext(ctx context.Context) (*QueueEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("vision: begin lease tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var e QueueEntry
	err = tx.QueryRow(ctx, `
		SELECT queue_id, segment_id, priority, status, attempts, created_at, last_attempt_at, completed_at
		FROM analysis_queue
		WHERE status = 'pending'
		ORDER BY priority DESC, created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
	).Scan(&e.QueueID, &e.SegmentID, &e.Priority, &e.Status, &e.Attempts, &e.CreatedAt, &e.LastAttemptAt, &e.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoSegmentAvailable
		}
		return nil, fmt.Errorf("vision: lease query: %w", err)
	}

	now := time.Now()
	if _, err := tx.Exec(ctx, `
		UPDATE analysis_queue
		SET status = 'processing', attempts = attempts + 1, last_attempt_at = $2
		WHERE queue_id = $1`, e.QueueID, now); err != nil {
		return nil, fmt.Errorf("vision: claim lease: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("vision: commit lease: %w", err)
	}

	e.Status = QueueProcessing
	e.Attempts++
	e.LastAttemptAt = &now
	return &e, nil
}

func (r *PgxRepository) GetSegment(ctx context.Context, segmentID string) (*Segment, error) {
	var (
		s       Segment
		rawCtx  []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT segment_id, build_id, scene_id, status, context, created_at, analyzed_at
		FROM segments WHERE segment_id = $1`, segmentID,
	).Scan(&s.SegmentID, &s.BuildID, &s.SceneID, &s.Status, &rawCtx, &s.CreatedAt, &s.AnalyzedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSegmentNotFound
		}
		return nil, fmt.Errorf("vision: get segment: %w", err)
	}
	if len(rawCtx) > 0 {
		if err := json.Unmarshal(rawCtx, &s.Context); err != nil {
			return nil, fmt.Errorf("vision: decode segment context: %w", err)
		}
	}
	return &s, nil
}

func (r *PgxRepository) MarkSegmentStatus(ctx context.Context, segmentID string, status SegmentStatus) error {
	var analyzedAt any
	if status == SegmentCompleted || status == SegmentFailed {
		analyzedAt = time.Now()
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE segments SET status = $2, analyzed_at = COALESCE($3, analyzed_at) WHERE segment_id = $1`,
		segmentID, status, analyzedAt)
	return err
}

func (r *PgxRepository) MarkQueueStatus(ctx context.Context, queueID string, status QueueStatus) error {
	var completedAt any
	if status == QueueCompleted || status == QueueFailed {
		completedAt = time.Now()
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE analysis_queue SET status = $2, completed_at = COALESCE($3, completed_at) WHERE queue_id = $1`,
		queueID, status, completedAt)
	return err
}

func (r *PgxRepository) SaveFinding(ctx context.Context, f Finding) error {
	if f.FindingID == "" {
		f.FindingID = uuid.NewString()
	}
	screenCoords, err := json.Marshal(f.ScreenCoords)
	if err != nil {
		return err
	}
	worldCoords, err := json.Marshal(f.WorldCoords)
	if err != nil {
		return err
	}
	metrics, err := json.Marshal(f.Metrics)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO findings (finding_id, segment_id, detector_type, issue_id, issue_type, severity,
			confidence, camera_id, screen_coords, world_coords, description, evidence_refs, metrics,
			affected_goals, player_impact, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		f.FindingID, f.SegmentID, f.DetectorType, f.IssueID, f.IssueType, f.Severity,
		f.Confidence, f.CameraID, screenCoords, worldCoords, f.Description, f.EvidenceRefs, metrics,
		f.AffectedGoals, f.PlayerImpact, f.Timestamp)
	return err
}

func (r *PgxRepository) UpsertSceneSummary(ctx context.Context, buildID, sceneID string, counts map[string]int, avgSeverities map[string]float64, critical []string, visualQuality, horrorAtmosphere, technicalStability float64) error {
	rawCounts, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	rawSeverities, err := json.Marshal(avgSeverities)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO scene_summaries (build_id, scene_id, total_segments, analyzed_segments, issue_counts,
			avg_severities, critical_issues, visual_quality, horror_atmosphere, technical_stability, last_updated)
		VALUES ($1, $2, 1, 1, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (build_id, scene_id) DO UPDATE SET
			total_segments = scene_summaries.total_segments + 1,
			analyzed_segments = scene_summaries.analyzed_segments + 1,
			issue_counts = EXCLUDED.issue_counts,
			avg_severities = EXCLUDED.avg_severities,
			critical_issues = EXCLUDED.critical_issues,
			visual_quality = EXCLUDED.visual_quality,
			horror_atmosphere = EXCLUDED.horror_atmosphere,
			technical_stability = EXCLUDED.technical_stability,
			last_updated = now()`,
		buildID, sceneID, rawCounts, rawSeverities, critical, visualQuality, horrorAtmosphere, technicalStability)
	return err
}

// AdmitSegment implements §4.6's admission rule: upsert priority as
// max(existing, new) on an already-pending row, else insert new.
func (r *PgxRepository) AdmitSegment(ctx context.Context, segmentID string, priority int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("vision: begin admission tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var queueID string
	var existingPriority int
	err = tx.QueryRow(ctx, `
		SELECT queue_id, priority FROM analysis_queue
		WHERE segment_id = $1 AND status = 'pending'
		FOR UPDATE`, segmentID,
	).Scan(&queueID, &existingPriority)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := tx.Exec(ctx, `
			INSERT INTO analysis_queue (queue_id, segment_id, priority, status)
			VALUES ($1, $2, $3, 'pending')`, uuid.NewString(), segmentID, priority); err != nil {
			return fmt.Errorf("vision: insert queue entry: %w", err)
		}
	case err != nil:
		return fmt.Errorf("vision: admission lookup: %w", err)
	default:
		if priority > existingPriority {
			if _, err := tx.Exec(ctx, `
				UPDATE analysis_queue SET priority = $2 WHERE queue_id = $1`, queueID, priority); err != nil {
				return fmt.Errorf("vision: bump priority: %w", err)
			}
		}
	}

	return tx.Commit(ctx)
}

// ResetStaleLeases reclaims rows a worker leased but never completed
// (crashed mid-segment), mirroring the teacher's orphan-recovery sweep
// adapted to the analysis_queue's own lease fields instead of session
// heartbeats.
func (r *PgxRepository) ResetStaleLeases(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE analysis_queue
		SET status = 'pending'
		WHERE status = 'processing' AND last_attempt_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("vision: reset stale leases: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PgxRepository) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM analysis_queue WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("vision: pending count: %w", err)
	}
	return n, nil
}
