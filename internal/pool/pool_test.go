package pool_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"courtside/internal/logging"
	"courtside/internal/pool"
	"courtside/internal/testsupport"
	"courtside/internal/worker"
)

func startPool(t *testing.T, launcher *testsupport.FakeLauncher, opts ...testsupport.ConfigOption) *pool.Pool {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	p, err := pool.New(cfg.Pool, launcher, logging.NewNop())
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("pool.Start: %v", err)
	}
	t.Cleanup(p.Shutdown)
	return p
}

func TestNewRejectsZeroWorkers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pool.WorkerCount = 0
	if _, err := pool.New(cfg.Pool, &testsupport.FakeLauncher{}, logging.NewNop()); err == nil {
		t.Fatal("expected construction error for zero workers")
	}
}

func TestStartFailsWhenNoWorkerReady(t *testing.T) {
	launcher := &testsupport.FakeLauncher{
		BehaviorFor: func(string, int) testsupport.Behavior {
			return testsupport.Behavior{StartupHang: true}
		},
	}
	cfg := testsupport.NewConfig(t)
	cfg.Pool.StartupTimeout = 1
	p, err := pool.New(cfg.Pool, launcher, logging.NewNop())
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	if err := p.Start(context.Background()); !errors.Is(err, pool.ErrWorkerStartup) {
		t.Fatalf("expected ErrWorkerStartup, got %v", err)
	}
}

func TestStartToleratesPartialFailure(t *testing.T) {
	launcher := &testsupport.FakeLauncher{
		BehaviorFor: func(workerID string, incarnation int) testsupport.Behavior {
			// First incarnation of worker-1 never answers; its restart works.
			if workerID == "worker-1" && incarnation == 0 {
				return testsupport.Behavior{StartupHang: true}
			}
			return testsupport.Behavior{}
		},
	}
	cfg := testsupport.NewConfig(t)
	cfg.Pool.StartupTimeout = 1
	p, err := pool.New(cfg.Pool, launcher, logging.NewNop())
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start with one good worker should succeed: %v", err)
	}
	t.Cleanup(p.Shutdown)

	w, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(w)
}

// Property: no two callers ever hold the same worker simultaneously.
func TestAcquireMutualExclusion(t *testing.T) {
	launcher := &testsupport.FakeLauncher{}
	p := startPool(t, launcher, testsupport.WithWorkerCount(2), testsupport.WithAcquireTimeout(2000))

	var mu sync.Mutex
	held := map[string]bool{}
	var violations atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				w, err := p.Acquire(context.Background())
				if err != nil {
					continue
				}
				mu.Lock()
				if held[w.ID] {
					violations.Add(1)
				}
				held[w.ID] = true
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				held[w.ID] = false
				mu.Unlock()
				p.Release(w)
			}
		}()
	}
	wg.Wait()

	if v := violations.Load(); v != 0 {
		t.Fatalf("%d double acquisitions detected", v)
	}
}

func TestAcquireTimesOutWhenExhausted(t *testing.T) {
	launcher := &testsupport.FakeLauncher{}
	p := startPool(t, launcher, testsupport.WithWorkerCount(2), testsupport.WithAcquireTimeout(100))

	w1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	w2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}

	start := time.Now()
	if _, err := p.Acquire(context.Background()); !errors.Is(err, pool.ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("exhaustion returned too early: %v", elapsed)
	}

	// Pool state is unchanged: released workers become acquirable again.
	p.Release(w1)
	p.Release(w2)
	if _, err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
}

// Property: K consecutive health failures drive unhealthy -> restarting, and
// the worker comes back.
func TestHealthCheckExhaustionRestarts(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	launcher := &testsupport.FakeLauncher{
		BehaviorFor: func(string, int) testsupport.Behavior {
			return testsupport.Behavior{Healthy: healthy.Load}
		},
	}
	p := startPool(t, launcher, testsupport.WithWorkerCount(1))

	healthy.Store(false)

	// failure_threshold=2, health_interval_ms=100: unhealthy within ~300ms.
	deadline := time.After(3 * time.Second)
	for launcher.Spawns("worker-0") < 2 {
		select {
		case <-deadline:
			t.Fatal("worker was never restarted after health exhaustion")
		case <-time.After(10 * time.Millisecond):
		}
	}

	healthy.Store(true)
	waitForReady(t, p)
}

// Property: external kill triggers restart after backoff; the restarted
// worker serves requests.
func TestProcessCrashTriggersRestart(t *testing.T) {
	launcher := &testsupport.FakeLauncher{}
	p := startPool(t, launcher, testsupport.WithWorkerCount(1))

	launcher.Live("worker-0").Crash()

	deadline := time.After(3 * time.Second)
	for launcher.Spawns("worker-0") < 2 {
		select {
		case <-deadline:
			t.Fatal("worker was never respawned after crash")
		case <-time.After(10 * time.Millisecond):
		}
	}

	waitForReady(t, p)
}

func TestReportCommunicationFailureSchedulesRestart(t *testing.T) {
	launcher := &testsupport.FakeLauncher{}
	p := startPool(t, launcher, testsupport.WithWorkerCount(1))

	w, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	// failure_threshold=2 in the test config.
	p.ReportCommunicationFailure(w)
	p.ReportCommunicationFailure(w)
	p.Release(w) // no-op: restart path owns the worker now

	deadline := time.After(3 * time.Second)
	for launcher.Spawns("worker-0") < 2 {
		select {
		case <-deadline:
			t.Fatal("dispatcher-reported failures never crossed into restart")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStatsSnapshot(t *testing.T) {
	launcher := &testsupport.FakeLauncher{}
	p := startPool(t, launcher, testsupport.WithWorkerCount(2))

	w, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	w.RecordSuccess()
	w.RecordSuccess()
	w.RecordFailure()

	stats := p.Stats()
	if len(stats.Workers) != 2 {
		t.Fatalf("snapshot has %d workers, want 2", len(stats.Workers))
	}
	if stats.Busy != 1 || stats.Ready != 1 {
		t.Fatalf("busy=%d ready=%d, want 1/1", stats.Busy, stats.Ready)
	}
	if want := 2.0 / 3.0; stats.SuccessRate < want-0.01 || stats.SuccessRate > want+0.01 {
		t.Fatalf("success rate = %v, want ~%v", stats.SuccessRate, want)
	}

	var busySnap worker.Snapshot
	for _, snap := range stats.Workers {
		if snap.Status == worker.StatusBusy.String() {
			busySnap = snap
		}
	}
	if busySnap.ID != w.ID || busySnap.RequestsServed != 2 || busySnap.Errors != 1 {
		t.Fatalf("busy worker snapshot = %+v", busySnap)
	}
	p.Release(w)
}

func TestShutdownDrainsInFlight(t *testing.T) {
	launcher := &testsupport.FakeLauncher{}
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(1))
	p, err := pool.New(cfg.Pool, launcher, logging.NewNop())
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	w, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	released := make(chan struct{})
	go func() {
		time.Sleep(100 * time.Millisecond)
		p.Release(w)
		close(released)
	}()

	p.Shutdown()
	select {
	case <-released:
	default:
		t.Fatal("shutdown returned before the in-flight request was released")
	}

	if _, err := p.Acquire(context.Background()); !errors.Is(err, pool.ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed after shutdown, got %v", err)
	}
}

func waitForReady(t *testing.T, p *pool.Pool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		w, err := p.Acquire(context.Background())
		if err == nil {
			p.Release(w)
			return
		}
		select {
		case <-deadline:
			t.Fatalf("no worker became ready: last error %v", err)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestAcquireHonorsCallerContext(t *testing.T) {
	launcher := &testsupport.FakeLauncher{}
	p := startPool(t, launcher, testsupport.WithWorkerCount(1), testsupport.WithAcquireTimeout(5000))

	w, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer p.Release(w)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected caller deadline, got %v", err)
	}
}
