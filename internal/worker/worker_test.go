package worker_test

import (
	"sync"
	"testing"
	"time"

	"courtside/internal/worker"
)

func TestStatusTransitions(t *testing.T) {
	w := worker.New("worker-0")
	if got := w.Status(); got != worker.StatusStarting {
		t.Fatalf("initial status = %v, want starting", got)
	}
	if !w.CompareAndSwap(worker.StatusStarting, worker.StatusReady) {
		t.Fatal("starting -> ready should succeed")
	}
	if w.CompareAndSwap(worker.StatusStarting, worker.StatusReady) {
		t.Fatal("second swap from starting should fail")
	}
	if !w.CompareAndSwap(worker.StatusReady, worker.StatusBusy) {
		t.Fatal("ready -> busy should succeed")
	}
}

func TestCompareAndSwapIsExclusive(t *testing.T) {
	w := worker.New("worker-0")
	w.SetStatus(worker.StatusReady)

	const attempts = 64
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.CompareAndSwap(worker.StatusReady, worker.StatusBusy) {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	var count int
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("%d goroutines acquired the worker, want exactly 1", count)
	}
}

func TestFailureBookkeeping(t *testing.T) {
	w := worker.New("worker-0")
	if got := w.RecordFailure(); got != 1 {
		t.Fatalf("first failure count = %d, want 1", got)
	}
	if got := w.RecordFailure(); got != 2 {
		t.Fatalf("second failure count = %d, want 2", got)
	}
	w.RecordSuccess()
	if got := w.RecordFailure(); got != 1 {
		t.Fatalf("failure count after success = %d, want 1", got)
	}

	snap := w.Snapshot()
	if snap.Errors != 3 {
		t.Fatalf("total errors = %d, want 3", snap.Errors)
	}
	if snap.RequestsServed != 1 {
		t.Fatalf("requests served = %d, want 1", snap.RequestsServed)
	}
}

func TestSnapshotReflectsHealthStamp(t *testing.T) {
	w := worker.New("worker-0")
	at := time.Now()
	w.MarkHealthChecked(at)
	snap := w.Snapshot()
	if !snap.LastHealthCheck.Equal(at) {
		t.Fatalf("last health check = %v, want %v", snap.LastHealthCheck, at)
	}
	if snap.Status != "starting" {
		t.Fatalf("status string = %q, want starting", snap.Status)
	}
}
