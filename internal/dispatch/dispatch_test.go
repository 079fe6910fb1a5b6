package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"courtside/internal/clock"
	"courtside/internal/config"
	"courtside/internal/correlate"
	"courtside/internal/dispatch"
	"courtside/internal/logging"
	"courtside/internal/pool"
	"courtside/internal/testsupport"
	"courtside/internal/timing"
)

type harness struct {
	cfg        *config.Config
	launcher   *testsupport.FakeLauncher
	pool       *pool.Pool
	registry   *timing.Registry
	correlator *correlate.Correlator
	dispatcher *dispatch.Dispatcher
}

func newHarness(t *testing.T, launcher *testsupport.FakeLauncher, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	logger := logging.NewNop()

	p, err := pool.New(cfg.Pool, launcher, logger)
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("pool.Start: %v", err)
	}
	t.Cleanup(p.Shutdown)

	reg := timing.NewRegistry(clock.New(), cfg.Timing, logger)
	corr := correlate.New(reg, cfg.Correlation, logger)
	reg.OnStop(corr.StreamStopped)

	st := testsupport.MustOpenStore(t, cfg)
	d := dispatch.New(cfg.Pool, p, reg, corr, logger, dispatch.WithStore(st))
	return &harness{cfg: cfg, launcher: launcher, pool: p, registry: reg, correlator: corr, dispatcher: d}
}

func (h *harness) register(t *testing.T, id string, modality timing.Modality) {
	t.Helper()
	if _, err := h.registry.Register(id, modality, timing.StreamConfig{ExpectedRate: 30}); err != nil {
		t.Fatalf("Register %s: %v", id, err)
	}
}

func TestProcessFrameSucceeds(t *testing.T) {
	h := newHarness(t, &testsupport.FakeLauncher{})
	h.register(t, "cam-1", timing.ModalityVisual)

	res, err := h.dispatcher.ProcessFrame(context.Background(), dispatch.FrameRequest{
		StreamID: "cam-1",
		Payload:  json.RawMessage(`{"frame":1}`),
	})
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if !res.Success || res.FailureKind != dispatch.FailureNone {
		t.Fatalf("result = %+v, want success", res)
	}
	if res.WorkerID == "" || res.RequestID == "" {
		t.Fatalf("result missing ids: %+v", res)
	}
	if !res.Compliant {
		t.Fatalf("instant fake reply should meet the %v target", h.cfg.Pool.TargetLatency())
	}
}

func TestProcessFrameUnknownStream(t *testing.T) {
	h := newHarness(t, &testsupport.FakeLauncher{})

	res, err := h.dispatcher.ProcessFrame(context.Background(), dispatch.FrameRequest{StreamID: "ghost"})
	if !errors.Is(err, timing.ErrStreamNotRegistered) {
		t.Fatalf("err = %v, want ErrStreamNotRegistered", err)
	}
	if res.FailureKind != dispatch.FailureStreamNotRegistered {
		t.Fatalf("failure kind = %q", res.FailureKind)
	}
}

// Property: when every worker is busy past the acquire timeout, the frame is
// rejected with a saturation failure instead of queueing unboundedly.
func TestProcessFrameSaturationIsBounded(t *testing.T) {
	launcher := &testsupport.FakeLauncher{
		BehaviorFor: func(string, int) testsupport.Behavior {
			return testsupport.Behavior{ServiceTime: 300 * time.Millisecond}
		},
	}
	h := newHarness(t, launcher, testsupport.WithWorkerCount(1), testsupport.WithAcquireTimeout(50))
	h.register(t, "cam-1", timing.ModalityVisual)

	// Occupy the single worker.
	go func() {
		_, _ = h.dispatcher.ProcessFrame(context.Background(), dispatch.FrameRequest{StreamID: "cam-1"})
	}()
	waitForBusy(t, h.pool)

	start := time.Now()
	res, err := h.dispatcher.ProcessFrame(context.Background(), dispatch.FrameRequest{StreamID: "cam-1"})
	if !errors.Is(err, pool.ErrPoolExhausted) {
		t.Fatalf("err = %v, want ErrPoolExhausted", err)
	}
	if res.FailureKind != dispatch.FailurePoolExhausted {
		t.Fatalf("failure kind = %q", res.FailureKind)
	}
	if waited := time.Since(start); waited > time.Second {
		t.Fatalf("saturated dispatch waited %v, want bounded by acquire timeout", waited)
	}
}

// Property: with two workers and three concurrent frames, the third frame
// queues for a slot and completes at roughly twice the service time instead
// of failing or running unboundedly late.
func TestProcessFrameQueuesForFreeSlot(t *testing.T) {
	const serviceTime = 100 * time.Millisecond
	launcher := &testsupport.FakeLauncher{
		BehaviorFor: func(string, int) testsupport.Behavior {
			return testsupport.Behavior{ServiceTime: serviceTime}
		},
	}
	h := newHarness(t, launcher, testsupport.WithWorkerCount(2), testsupport.WithAcquireTimeout(1000))
	h.register(t, "cam-1", timing.ModalityVisual)

	type outcome struct {
		res     dispatch.Result
		err     error
		elapsed time.Duration
	}
	outcomes := make(chan outcome, 3)
	start := time.Now()
	for i := 0; i < 3; i++ {
		go func() {
			res, err := h.dispatcher.ProcessFrame(context.Background(), dispatch.FrameRequest{StreamID: "cam-1"})
			outcomes <- outcome{res: res, err: err, elapsed: time.Since(start)}
		}()
	}

	var slowest time.Duration
	for i := 0; i < 3; i++ {
		o := <-outcomes
		if o.err != nil || !o.res.Success {
			t.Fatalf("concurrent frame: res=%+v err=%v", o.res, o.err)
		}
		if o.elapsed > slowest {
			slowest = o.elapsed
		}
	}
	if slowest < 2*serviceTime-20*time.Millisecond {
		t.Fatalf("slowest frame took %v, expected it to queue for a full service slot", slowest)
	}
	if slowest > 4*serviceTime {
		t.Fatalf("slowest frame took %v, want about 2x the %v service time", slowest, serviceTime)
	}
}

// Property: an unhealthy worker reply surfaces as a classified failure, and
// repeated failures feed the pool's restart budget.
func TestProcessFrameWorkerErrorDoesNotRestart(t *testing.T) {
	var healthy atomic.Bool
	launcher := &testsupport.FakeLauncher{
		BehaviorFor: func(_ string, incarnation int) testsupport.Behavior {
			return testsupport.Behavior{Healthy: func() bool { return healthy.Load() || incarnation > 0 }}
		},
	}
	// Health probes would also see the unhealthy backend; make them pass.
	healthy.Store(true)
	h := newHarness(t, launcher, testsupport.WithWorkerCount(1))
	h.register(t, "cam-1", timing.ModalityVisual)

	healthy.Store(false)
	res, err := h.dispatcher.ProcessFrame(context.Background(), dispatch.FrameRequest{StreamID: "cam-1"})
	if err == nil {
		t.Fatal("expected worker rejection error")
	}
	if res.FailureKind != dispatch.FailureWorkerError {
		t.Fatalf("failure kind = %q, want worker_error", res.FailureKind)
	}

	// The worker answered on time, so it goes straight back into rotation.
	healthy.Store(true)
	res, err = h.dispatcher.ProcessFrame(context.Background(), dispatch.FrameRequest{StreamID: "cam-1"})
	if err != nil || !res.Success {
		t.Fatalf("follow-up frame: res=%+v err=%v", res, err)
	}
}

func TestProcessFrameTimeoutReportsCommunicationFailure(t *testing.T) {
	launcher := &testsupport.FakeLauncher{
		BehaviorFor: func(_ string, incarnation int) testsupport.Behavior {
			if incarnation == 0 {
				return testsupport.Behavior{ServiceTime: 5 * time.Second}
			}
			return testsupport.Behavior{}
		},
	}
	h := newHarness(t, launcher, testsupport.WithWorkerCount(1))
	h.register(t, "cam-1", timing.ModalityVisual)

	res, err := h.dispatcher.ProcessFrame(context.Background(), dispatch.FrameRequest{StreamID: "cam-1"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if res.FailureKind != dispatch.FailureWorkerCommunication {
		t.Fatalf("failure kind = %q, want worker_communication", res.FailureKind)
	}
}

// Property: patterns in a worker result flow through the correlator and
// matching cross-modal patterns come back as correlations on the result.
func TestProcessFramePatternsCorrelate(t *testing.T) {
	result := json.RawMessage(`{"patterns":[{"kind":"basket_made","confidence":0.95}]}`)
	launcher := &testsupport.FakeLauncher{
		BehaviorFor: func(string, int) testsupport.Behavior {
			return testsupport.Behavior{FrameResult: result}
		},
	}
	h := newHarness(t, launcher)
	h.register(t, "cam-1", timing.ModalityVisual)
	if _, err := h.registry.Register("mic-1", timing.ModalityAudio, timing.StreamConfig{ExpectedRate: 100}); err != nil {
		t.Fatalf("Register mic-1: %v", err)
	}
	if _, err := h.correlator.Link("mic-1", "cam-1", nil); err != nil {
		t.Fatalf("Link: %v", err)
	}

	ts := h.registry.Now()
	first, err := h.dispatcher.ProcessFrame(context.Background(), dispatch.FrameRequest{StreamID: "mic-1", Timestamp: ts})
	if err != nil {
		t.Fatalf("ProcessFrame mic-1: %v", err)
	}
	if len(first.Patterns) != 1 {
		t.Fatalf("patterns = %d, want 1", len(first.Patterns))
	}
	if len(first.Correlations) != 0 {
		t.Fatal("first pattern has no counterpart yet")
	}

	second, err := h.dispatcher.ProcessFrame(context.Background(), dispatch.FrameRequest{
		StreamID:  "cam-1",
		Timestamp: ts + clock.Timestamp(20*time.Millisecond),
	})
	if err != nil {
		t.Fatalf("ProcessFrame cam-1: %v", err)
	}
	if len(second.Correlations) != 1 {
		t.Fatalf("correlations = %d, want 1", len(second.Correlations))
	}
	corr := second.Correlations[0]
	if corr.Source.StreamID != "cam-1" || corr.Target.StreamID != "mic-1" {
		t.Fatalf("correlation pair = %s -> %s", corr.Source.StreamID, corr.Target.StreamID)
	}
}

func waitForBusy(t *testing.T, p *pool.Pool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.Stats().Busy > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no worker became busy")
}
