package store_test

import (
	"context"
	"testing"
	"time"

	"courtside/internal/store"
	"courtside/internal/testsupport"
)

func TestOpenCreatesSchemaAndRecordsFrames(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	err := st.RecordFrame(ctx, store.FrameRecord{
		RequestID:    "req-1",
		StreamID:     "cam-1",
		WorkerID:     "worker-0",
		Success:      true,
		Latency:      40 * time.Millisecond,
		Compliant:    true,
		QualityScore: 0.98,
	})
	if err != nil {
		t.Fatalf("RecordFrame: %v", err)
	}

	stats, err := st.Aggregate(ctx)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if stats.Frames != 1 || stats.Successes != 1 {
		t.Fatalf("stats = %+v, want one successful frame", stats)
	}
	if stats.SuccessRate != 1 || stats.ComplianceRate != 1 {
		t.Fatalf("rates = %v/%v, want 1/1", stats.SuccessRate, stats.ComplianceRate)
	}
	if stats.AvgLatency != 40*time.Millisecond {
		t.Fatalf("avg latency = %v, want 40ms", stats.AvgLatency)
	}
}

func TestAggregateSeparatesFailuresAndCompliance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	frames := []store.FrameRecord{
		{RequestID: "a", StreamID: "cam-1", WorkerID: "w0", Success: true, Latency: 30 * time.Millisecond, Compliant: true},
		{RequestID: "b", StreamID: "cam-1", WorkerID: "w0", Success: true, Latency: 90 * time.Millisecond, Compliant: false},
		{RequestID: "c", StreamID: "cam-1", WorkerID: "w1", Success: false, FailureKind: "worker_communication"},
	}
	for _, rec := range frames {
		if err := st.RecordFrame(ctx, rec); err != nil {
			t.Fatalf("RecordFrame %s: %v", rec.RequestID, err)
		}
	}

	stats, err := st.Aggregate(ctx)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if stats.Frames != 3 || stats.Successes != 2 {
		t.Fatalf("stats = %+v, want 3 frames / 2 successes", stats)
	}
	if got, want := stats.SuccessRate, 2.0/3.0; got < want-0.001 || got > want+0.001 {
		t.Fatalf("success rate = %v, want ~%v", got, want)
	}
	if stats.ComplianceRate != 0.5 {
		t.Fatalf("compliance rate = %v, want 0.5", stats.ComplianceRate)
	}
	// Failed frames carry no latency and must not skew the average.
	if stats.AvgLatency != 60*time.Millisecond {
		t.Fatalf("avg latency = %v, want 60ms", stats.AvgLatency)
	}
}

func TestWorkerEventsNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	for _, kind := range []string{"spawned", "unhealthy", "restarted"} {
		if err := st.RecordWorkerEvent(ctx, "worker-0", kind, ""); err != nil {
			t.Fatalf("RecordWorkerEvent %s: %v", kind, err)
		}
	}

	events, err := st.RecentWorkerEvents(ctx, 2)
	if err != nil {
		t.Fatalf("RecentWorkerEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Kind != "restarted" || events[1].Kind != "unhealthy" {
		t.Fatalf("order = %s, %s; want restarted, unhealthy", events[0].Kind, events[1].Kind)
	}
}

func TestReopenKeepsData(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()
	if err := st.RecordFrame(ctx, store.FrameRecord{RequestID: "a", StreamID: "s", WorkerID: "w", Success: true, Latency: time.Millisecond, Compliant: true}); err != nil {
		t.Fatalf("RecordFrame: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st2, err := store.OpenPath(st.Path())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = st2.Close() }()
	stats, err := st2.Aggregate(ctx)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if stats.Frames != 1 {
		t.Fatalf("frames after reopen = %d, want 1", stats.Frames)
	}
}
