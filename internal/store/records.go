package store

import (
	"context"
	"fmt"
	"time"

	"courtside/internal/clock"
)

// FrameRecord is one processed frame's outcome.
type FrameRecord struct {
	RequestID          string
	StreamID           string
	WorkerID           string
	Success            bool
	FailureKind        string
	Latency            time.Duration
	Compliant          bool
	CorrectedTimestamp clock.Timestamp
	QualityScore       float64
}

// WorkerEvent is one worker lifecycle transition.
type WorkerEvent struct {
	WorkerID  string
	Kind      string
	Detail    string
	CreatedAt string
}

// AggregateStats summarizes the frames table.
type AggregateStats struct {
	Frames         int64
	Successes      int64
	SuccessRate    float64
	AvgLatency     time.Duration
	ComplianceRate float64
}

// RecordFrame persists one frame outcome.
func (s *Store) RecordFrame(ctx context.Context, rec FrameRecord) error {
	err := s.execWithRetry(ctx, `
		INSERT INTO frames (request_id, stream_id, worker_id, success, failure_kind,
			latency_ms, compliant, corrected_ts_ns, quality)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.StreamID, rec.WorkerID, boolToInt(rec.Success), rec.FailureKind,
		float64(rec.Latency)/float64(time.Millisecond), boolToInt(rec.Compliant),
		int64(rec.CorrectedTimestamp), rec.QualityScore)
	if err != nil {
		return fmt.Errorf("record frame %s: %w", rec.RequestID, err)
	}
	return nil
}

// RecordWorkerEvent persists a worker lifecycle transition.
func (s *Store) RecordWorkerEvent(ctx context.Context, workerID, kind, detail string) error {
	err := s.execWithRetry(ctx,
		"INSERT INTO worker_events (worker_id, kind, detail) VALUES (?, ?, ?)",
		workerID, kind, detail)
	if err != nil {
		return fmt.Errorf("record worker event %s/%s: %w", workerID, kind, err)
	}
	return nil
}

// Aggregate computes success, latency and compliance figures over every
// recorded frame.
func (s *Store) Aggregate(ctx context.Context) (AggregateStats, error) {
	ctx = ensureContext(ctx)
	var (
		stats     AggregateStats
		avgMS     *float64
		compliant int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1),
			COALESCE(SUM(success), 0),
			AVG(CASE WHEN success = 1 THEN latency_ms END),
			COALESCE(SUM(CASE WHEN success = 1 AND compliant = 1 THEN 1 ELSE 0 END), 0)
		FROM frames`).Scan(&stats.Frames, &stats.Successes, &avgMS, &compliant)
	if err != nil {
		return AggregateStats{}, fmt.Errorf("aggregate frames: %w", err)
	}
	if stats.Frames > 0 {
		stats.SuccessRate = float64(stats.Successes) / float64(stats.Frames)
	}
	if stats.Successes > 0 {
		stats.ComplianceRate = float64(compliant) / float64(stats.Successes)
	}
	if avgMS != nil {
		stats.AvgLatency = time.Duration(*avgMS * float64(time.Millisecond))
	}
	return stats, nil
}

// RecentWorkerEvents returns the newest lifecycle events, newest first.
func (s *Store) RecentWorkerEvents(ctx context.Context, limit int) ([]WorkerEvent, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `
		SELECT worker_id, kind, detail, created_at
		FROM worker_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query worker events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []WorkerEvent
	for rows.Next() {
		var ev WorkerEvent
		if err := rows.Scan(&ev.WorkerID, &ev.Kind, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan worker event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
