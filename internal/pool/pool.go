package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"courtside/internal/config"
	"courtside/internal/events"
	"courtside/internal/logging"
	"courtside/internal/worker"
)

// Pool supervises a fixed set of workers and hands them out one request at a
// time. Construct with New, call Start before use, and Shutdown when done.
type Pool struct {
	cfg      config.Pool
	logger   *slog.Logger
	launcher worker.Launcher
	bus      *events.Bus

	workers []*worker.Worker
	ready   chan *worker.Worker

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures optional pool collaborators.
type Option func(*Pool)

// WithBus publishes worker lifecycle events to the given bus.
func WithBus(bus *events.Bus) Option {
	return func(p *Pool) { p.bus = bus }
}

// New constructs a pool. The worker count and timeouts come from cfg; the
// launcher decides how processes are created.
func New(cfg config.Pool, launcher worker.Launcher, logger *slog.Logger, opts ...Option) (*Pool, error) {
	if cfg.WorkerCount <= 0 {
		return nil, fmt.Errorf("pool requires at least one worker, got %d", cfg.WorkerCount)
	}
	if launcher == nil {
		return nil, fmt.Errorf("pool requires a launcher")
	}
	p := &Pool{
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "pool"),
		launcher: launcher,
		ready:    make(chan *worker.Worker, cfg.WorkerCount),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start spawns the configured number of workers concurrently. Each worker
// must answer a get_stats probe within the startup timeout to count as
// ready. Start fails only when zero workers become ready.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	p.running = true
	p.workers = make([]*worker.Worker, p.cfg.WorkerCount)
	for i := range p.workers {
		p.workers[i] = worker.New(fmt.Sprintf("worker-%d", i))
	}
	p.mu.Unlock()

	var spawnWG sync.WaitGroup
	results := make([]error, p.cfg.WorkerCount)
	for i, w := range p.workers {
		spawnWG.Add(1)
		go func(idx int, w *worker.Worker) {
			defer spawnWG.Done()
			results[idx] = p.spawn(w)
		}(i, w)
	}
	spawnWG.Wait()

	ready := 0
	for i, err := range results {
		if err != nil {
			p.logger.Warn("worker failed to start",
				logging.String("worker", p.workers[i].ID),
				logging.Error(err))
			continue
		}
		ready++
	}
	if ready == 0 {
		p.Shutdown()
		return fmt.Errorf("%w: no workers reached ready", ErrWorkerStartup)
	}

	p.logger.Info("worker pool started",
		logging.Int("ready", ready),
		logging.Int("requested", p.cfg.WorkerCount))

	// Workers that failed to start are retried through the restart path so a
	// partially-started pool heals itself.
	for i, err := range results {
		if err != nil {
			w := p.workers[i]
			w.SetStatus(worker.StatusUnhealthy)
			p.scheduleRestart(w, "startup failure")
		}
	}
	return nil
}

// spawn launches a process for w, probes it, and puts it into rotation.
func (p *Pool) spawn(w *worker.Worker) error {
	proc, err := p.launcher.Launch(p.ctx, w.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWorkerStartup, err)
	}
	conn := worker.NewConn(proc.Stdin(), proc.Stdout())
	w.Attach(proc, conn)

	probeCtx, cancel := context.WithTimeout(p.ctx, p.cfg.StartupTimeoutDuration())
	defer cancel()
	reply, err := conn.Call(probeCtx, worker.Request{Command: worker.CommandGetStats})
	if err != nil || !reply.Success {
		_ = proc.Kill()
		if err == nil {
			err = fmt.Errorf("probe rejected: %s", reply.Error)
		}
		return fmt.Errorf("%w: %v", ErrWorkerStartup, err)
	}

	if !w.CompareAndSwap(worker.StatusStarting, worker.StatusReady) {
		// Shutdown raced the spawn; leave the worker alone.
		_ = proc.Kill()
		return ErrPoolClosed
	}
	w.MarkHealthChecked(time.Now())
	p.enqueueReady(w)
	p.publish(events.KindWorkerStateChanged, w.ID, worker.StatusReady.String())
	p.logger.Info("worker ready", logging.String("worker", w.ID), logging.Int("pid", proc.PID()))

	p.watchExit(w, proc)
	p.runHealthLoop(w)
	return nil
}

// Acquire returns a ready worker transitioned to busy, waiting at most the
// configured acquire timeout. Concurrent callers never receive the same
// worker: the ready queue hands each worker to one goroutine and the
// compare-and-swap guards against stale entries.
func (p *Pool) Acquire(ctx context.Context) (*worker.Worker, error) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	poolCtx := p.ctx
	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.AcquireTimeout())
	defer timer.Stop()

	for {
		select {
		case w := <-p.ready:
			if w.CompareAndSwap(worker.StatusReady, worker.StatusBusy) {
				return w, nil
			}
			// The worker left ready state (restart or shutdown) while queued;
			// drop the stale entry and keep waiting.
		case <-timer.C:
			return nil, ErrPoolExhausted
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-poolCtx.Done():
			return nil, ErrPoolClosed
		}
	}
}

// Release returns a busy worker to the ready queue. Releasing a worker that
// has since been taken over by the restart path is a no-op.
func (p *Pool) Release(w *worker.Worker) {
	if w == nil {
		return
	}
	if w.CompareAndSwap(worker.StatusBusy, worker.StatusReady) {
		p.enqueueReady(w)
	}
}

// ReportCommunicationFailure feeds a dispatcher-side request failure into the
// worker's consecutive-failure budget. Crossing the threshold schedules a
// restart exactly as health-check exhaustion does.
func (p *Pool) ReportCommunicationFailure(w *worker.Worker) {
	failures := w.RecordFailure()
	if failures < p.cfg.FailureThreshold {
		return
	}
	if w.CompareAndSwap(worker.StatusBusy, worker.StatusUnhealthy) ||
		w.CompareAndSwap(worker.StatusReady, worker.StatusUnhealthy) {
		p.publish(events.KindWorkerStateChanged, w.ID, worker.StatusUnhealthy.String())
		p.scheduleRestart(w, "request failures exceeded threshold")
	}
}

// enqueueReady pushes w into the ready queue. Capacity equals the worker
// count, so the send cannot block while the exclusivity invariant holds.
func (p *Pool) enqueueReady(w *worker.Worker) {
	select {
	case p.ready <- w:
	default:
		// Only reachable if a worker was double-released; drop and log
		// rather than deadlock.
		p.logger.Error("ready queue overflow, dropping worker entry",
			logging.String("worker", w.ID))
	}
}

// watchExit waits for the process to terminate and treats any exit while the
// pool is running as a failure requiring restart.
func (p *Pool) watchExit(w *worker.Worker, proc worker.Process) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := proc.Wait()
		select {
		case <-p.ctx.Done():
			return // shutdown path owns the process now
		default:
		}
		p.logger.Warn("worker process exited unexpectedly",
			logging.String("worker", w.ID),
			logging.Error(err))
		if w.CompareAndSwap(worker.StatusReady, worker.StatusUnhealthy) ||
			w.CompareAndSwap(worker.StatusBusy, worker.StatusUnhealthy) ||
			w.Status() == worker.StatusUnhealthy {
			p.publish(events.KindWorkerStateChanged, w.ID, worker.StatusUnhealthy.String())
			p.scheduleRestart(w, "process exit")
		}
	}()
}

// Shutdown drains in-flight requests for the configured drain period, then
// terminates every worker. Idempotent.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	deadline := time.Now().Add(p.cfg.DrainTimeoutDuration())
	for time.Now().Before(deadline) {
		if !p.anyBusy() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()

	for _, w := range p.workers {
		w.SetStatus(worker.StatusExited)
		proc, conn := w.Handles()
		if conn != nil {
			_ = conn.Notify(worker.Request{Command: worker.CommandShutdown})
			conn.Close()
		}
		if proc != nil {
			p.stopProcess(w, proc)
		}
		p.publish(events.KindWorkerStateChanged, w.ID, worker.StatusExited.String())
	}

	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) anyBusy() bool {
	for _, w := range p.workers {
		if w.Status() == worker.StatusBusy {
			return true
		}
	}
	return false
}

// stopProcess terminates politely, then kills if the process lingers.
func (p *Pool) stopProcess(w *worker.Worker, proc worker.Process) {
	_ = proc.Terminate()
	done := make(chan struct{})
	go func() {
		_ = proc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * p.cfg.HealthTimeout()):
		p.logger.Warn("worker unresponsive to terminate, killing",
			logging.String("worker", w.ID))
		_ = proc.Kill()
		<-done
	}
}

func (p *Pool) publish(kind events.Kind, workerID string, detail any) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.Event{Kind: kind, WorkerID: workerID, Detail: detail})
}
