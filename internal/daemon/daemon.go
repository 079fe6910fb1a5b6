package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"courtside/internal/clock"
	"courtside/internal/config"
	"courtside/internal/correlate"
	"courtside/internal/dispatch"
	"courtside/internal/events"
	"courtside/internal/logging"
	"courtside/internal/metrics"
	"courtside/internal/pool"
	"courtside/internal/store"
	"courtside/internal/timing"
	"courtside/internal/worker"
)

// ErrNotRunning is returned by operations that require a started daemon.
var ErrNotRunning = errors.New("daemon not running")

// Daemon owns the processing engine's component lifecycles.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	bus        *events.Bus
	clk        *clock.Clock
	registry   *timing.Registry
	correlator *correlate.Correlator
	pool       *pool.Pool
	dispatcher *dispatch.Dispatcher
	results    *store.Store

	metricsSrv *metrics.Server
	logPath    string
	configPath string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Options carries optional daemon collaborators.
type Options struct {
	// Launcher overrides how worker processes are created; nil uses the
	// configured worker binary.
	Launcher worker.Launcher
	// ConfigPath enables tuning hot reload when non-empty.
	ConfigPath string
}

// New constructs a daemon and its component graph. Nothing is started.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	launcher := opts.Launcher
	if launcher == nil {
		launcher = worker.ExecLauncher{
			Binary: cfg.Pool.WorkerBinary,
			Args:   cfg.Pool.WorkerArgs,
			Logger: logger,
		}
	}

	bus := events.NewBus()
	clk := clock.New()
	registry := timing.NewRegistry(clk, cfg.Timing, logger)
	correlator := correlate.New(registry, cfg.Correlation, logger, correlate.WithBus(bus))
	registry.OnStop(correlator.StreamStopped)

	results, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open results store: %w", err)
	}

	p, err := pool.New(cfg.Pool, launcher, logger, pool.WithBus(bus))
	if err != nil {
		_ = results.Close()
		return nil, err
	}

	dispatcher := dispatch.New(cfg.Pool, p, registry, correlator, logger,
		dispatch.WithStore(results), dispatch.WithBus(bus))

	lockPath := filepath.Join(cfg.DataDir, "courtsided.lock")
	return &Daemon{
		cfg:        cfg,
		logger:     logging.WithComponent(logger, "daemon"),
		bus:        bus,
		clk:        clk,
		registry:   registry,
		correlator: correlator,
		pool:       p,
		dispatcher: dispatcher,
		results:    results,
		logPath:    filepath.Join(cfg.LogDir, "courtsided.log"),
		configPath: opts.ConfigPath,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and brings the components up: pool first,
// then the lifecycle recorder, metrics listener and config watcher.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another courtsided instance is already running")
	}

	d.mu.Lock()
	d.ctx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	d.mu.Unlock()

	if err := d.pool.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		return fmt.Errorf("start worker pool: %w", err)
	}

	d.recordLifecycleEvents()

	if d.cfg.Metrics.Enabled {
		srv, err := metrics.NewServer(d.cfg.Metrics.Bind, metrics.Sources{
			Pool:      d.pool.Stats,
			Streams:   d.registry.Snapshots,
			Aggregate: d.results.Aggregate,
			Bus:       d.bus.Stats,
		}, d.logger)
		if err != nil {
			d.pool.Shutdown()
			_ = d.lock.Unlock()
			d.cancel()
			return err
		}
		d.metricsSrv = srv
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := srv.Serve(); err != nil {
				d.logger.Warn("metrics listener stopped", logging.Error(err))
			}
		}()
	}

	if d.configPath != "" {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			err := config.Watch(d.ctx, d.configPath, d.logger, d.applyTuning)
			if err != nil {
				d.logger.Warn("config watcher unavailable", logging.Error(err))
			}
		}()
	}

	d.running.Store(true)
	d.logger.Info("courtside daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("workers", d.cfg.Pool.WorkerCount))
	return nil
}

// applyTuning pushes the reloaded timing and correlation sections into the
// running engine. Pool sizing is deliberately not reloadable.
func (d *Daemon) applyTuning(cfg *config.Config) {
	if err := cfg.Validate(); err != nil {
		d.logger.Warn("reloaded config invalid, keeping previous tuning", logging.Error(err))
		return
	}
	d.registry.Corrector().SetTuning(timing.TuningFromConfig(cfg.Timing))
	d.correlator.SetTuning(correlate.TuningFromConfig(cfg.Correlation))
	d.logger.Info("tuning applied",
		logging.Float64("gain", cfg.Timing.CorrectionGain),
		logging.Float64("min_confidence", cfg.Correlation.MinConfidence))
}

// recordLifecycleEvents subscribes to the bus and persists worker
// transitions so restarts survive daemon restarts in the stats.
func (d *Daemon) recordLifecycleEvents() {
	ch := make(chan events.Event, 64)
	if err := d.bus.Subscribe("daemon-recorder", ch); err != nil {
		d.logger.Warn("lifecycle recorder not subscribed", logging.Error(err))
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { _ = d.bus.Unsubscribe("daemon-recorder") }()
		for {
			select {
			case <-d.ctx.Done():
				return
			case ev := <-ch:
				if ev.Kind != events.KindWorkerStateChanged && ev.Kind != events.KindWorkerRestarted {
					continue
				}
				detail := ""
				if s, ok := ev.Detail.(string); ok {
					detail = s
				}
				err := d.results.RecordWorkerEvent(d.ctx, ev.WorkerID, ev.Kind.String(), detail)
				if err != nil && !errors.Is(err, context.Canceled) {
					d.logger.Debug("worker event not persisted", logging.Error(err))
				}
			}
		}
	}()
}

// Stop shuts the components down in reverse start order and releases the
// lock. Safe to call more than once.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.running.Store(false)

	d.pool.Shutdown()
	if d.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := d.metricsSrv.Shutdown(ctx); err != nil {
			d.logger.Warn("metrics shutdown", logging.Error(err))
		}
		cancel()
		d.metricsSrv = nil
	}

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.mu.Unlock()
	d.wg.Wait()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("courtside daemon stopped")
}

// Close stops the daemon and releases held resources.
func (d *Daemon) Close() error {
	d.Stop()
	d.bus.Close()
	return d.results.Close()
}

// Status is the daemon's runtime summary.
type Status struct {
	Running      bool
	PID          int
	Pool         pool.Stats
	Streams      []timing.StreamSnapshot
	Links        []correlate.LinkSnapshot
	ResultsDB    string
	LockFilePath string
	MetricsAddr  string
}

// Status reports the current runtime state.
func (d *Daemon) Status() Status {
	st := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		ResultsDB:    d.results.Path(),
		LockFilePath: d.lockPath,
	}
	if st.Running {
		st.Pool = d.pool.Stats()
		st.Streams = d.registry.Snapshots()
		st.Links = d.correlator.Snapshots()
		if d.metricsSrv != nil {
			st.MetricsAddr = d.metricsSrv.Addr()
		}
	}
	return st
}

// ProcessFrame dispatches one frame through the pool.
func (d *Daemon) ProcessFrame(ctx context.Context, streamID string, timestamp clock.Timestamp, payload json.RawMessage) (dispatch.Result, error) {
	if !d.running.Load() {
		return dispatch.Result{}, ErrNotRunning
	}
	return d.dispatcher.ProcessFrame(ctx, dispatch.FrameRequest{
		StreamID:  streamID,
		Timestamp: timestamp,
		Payload:   payload,
	})
}

// RegisterStream adds a stream to the timing registry.
func (d *Daemon) RegisterStream(id, modality string, rate float64, latencyOffset time.Duration) error {
	m, ok := timing.ParseModality(modality)
	if !ok {
		return fmt.Errorf("unknown modality %q", modality)
	}
	_, err := d.registry.Register(id, m, timing.StreamConfig{
		ExpectedRate:  rate,
		LatencyOffset: latencyOffset,
	})
	return err
}

// StopStream removes a stream; its links are torn down before this returns.
func (d *Daemon) StopStream(id string) error {
	if err := d.registry.Stop(id); err != nil {
		return err
	}
	d.bus.Publish(events.Event{Kind: events.KindStreamStopped, StreamID: id})
	return nil
}

// Streams lists per-stream timing snapshots.
func (d *Daemon) Streams() []timing.StreamSnapshot {
	return d.registry.Snapshots()
}

// LinkStreams pairs an audio and a visual stream for correlation.
func (d *Daemon) LinkStreams(audioID, visualID string, windows map[string]time.Duration) (string, error) {
	link, err := d.correlator.Link(audioID, visualID, windows)
	if err != nil {
		return "", err
	}
	return link.ID, nil
}

// UnlinkStreams removes a correlation link.
func (d *Daemon) UnlinkStreams(linkID string) error {
	return d.correlator.Unlink(linkID)
}

// Links lists active correlation links.
func (d *Daemon) Links() []correlate.LinkSnapshot {
	return d.correlator.Snapshots()
}

// Aggregate returns the persisted frame statistics.
func (d *Daemon) Aggregate(ctx context.Context) (store.AggregateStats, error) {
	return d.results.Aggregate(ctx)
}

// RecentWorkerEvents returns persisted worker lifecycle events, newest first.
func (d *Daemon) RecentWorkerEvents(ctx context.Context, limit int) ([]store.WorkerEvent, error) {
	return d.results.RecentWorkerEvents(ctx, limit)
}

// LogPath returns the daemon log file path.
func (d *Daemon) LogPath() string {
	return d.logPath
}
