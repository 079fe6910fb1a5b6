package metrics_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/common/expfmt"

	"courtside/internal/events"
	"courtside/internal/logging"
	"courtside/internal/metrics"
	"courtside/internal/pool"
	"courtside/internal/store"
	"courtside/internal/timing"
	"courtside/internal/worker"
)

func TestHandlerEmitsParseableExposition(t *testing.T) {
	src := metrics.Sources{
		Pool: func() pool.Stats {
			return pool.Stats{
				Workers: []worker.Snapshot{
					{ID: "worker-1", Status: "ready"},
					{ID: "worker-2", Status: "ready"},
					{ID: "worker-3", Status: "ready"},
					{ID: "worker-4", Status: "busy"},
				},
				Ready: 3, Busy: 1, SuccessRate: 0.9,
			}
		},
		Streams: func() []timing.StreamSnapshot {
			return []timing.StreamSnapshot{
				{ID: "cam-1", Modality: "visual", Frames: 120, QualityScore: 0.97},
				{ID: "mic-1", Modality: "audio", Frames: 400, QualityScore: 1},
			}
		},
		Aggregate: func(context.Context) (store.AggregateStats, error) {
			return store.AggregateStats{
				Frames:         520,
				Successes:      510,
				SuccessRate:    510.0 / 520.0,
				AvgLatency:     42 * time.Millisecond,
				ComplianceRate: 0.95,
			}, nil
		},
		Bus: func() events.Stats {
			return events.Stats{Published: 100, Dropped: 3}
		},
	}

	ts := httptest.NewServer(metrics.Handler(src, logging.NewNop()))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		t.Fatalf("parse exposition: %v", err)
	}

	if mf := families["courtside_workers"]; mf == nil || mf.Metric[0].Gauge.GetValue() != 4 {
		t.Fatalf("courtside_workers = %v", mf)
	}
	if mf := families["courtside_workers_busy"]; mf == nil || mf.Metric[0].Gauge.GetValue() != 1 {
		t.Fatalf("courtside_workers_busy = %v", mf)
	}
	if mf := families["courtside_frames_total"]; mf == nil || mf.Metric[0].Counter.GetValue() != 520 {
		t.Fatalf("courtside_frames_total = %v", mf)
	}
	if mf := families["courtside_frame_latency_avg_ms"]; mf == nil || mf.Metric[0].Gauge.GetValue() != 42 {
		t.Fatalf("courtside_frame_latency_avg_ms = %v", mf)
	}
	quality := families["courtside_stream_quality"]
	if quality == nil || len(quality.Metric) != 2 {
		t.Fatalf("courtside_stream_quality = %v", quality)
	}
	if mf := families["courtside_events_dropped_total"]; mf == nil || mf.Metric[0].Counter.GetValue() != 3 {
		t.Fatalf("courtside_events_dropped_total = %v", mf)
	}
}

func TestServerServesAndShutsDown(t *testing.T) {
	srv, err := metrics.NewServer("127.0.0.1:0", metrics.Sources{
		Pool: func() pool.Stats {
			return pool.Stats{Workers: []worker.Snapshot{{ID: "worker-1", Status: "ready"}}, Ready: 1}
		},
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Serve returned %v", err)
	}
}
