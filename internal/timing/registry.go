package timing

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"courtside/internal/clock"
	"courtside/internal/config"
	"courtside/internal/logging"
)

var (
	// ErrStreamNotRegistered is returned when an operation references an
	// unknown stream id.
	ErrStreamNotRegistered = errors.New("stream not registered")

	// ErrStreamExists is returned when a stream id is registered twice.
	ErrStreamExists = errors.New("stream already registered")
)

// Registry tracks per-stream timing state keyed by stream id. All methods
// are safe for concurrent use.
type Registry struct {
	clk       *clock.Clock
	corrector *Corrector
	ringCap   int
	logger    *slog.Logger

	mu      sync.RWMutex
	streams map[string]*Stream
	onStop  []func(streamID string)
}

// NewRegistry creates a registry using the shared master clock.
func NewRegistry(clk *clock.Clock, cfg config.Timing, logger *slog.Logger) *Registry {
	return &Registry{
		clk:       clk,
		corrector: NewCorrector(TuningFromConfig(cfg)),
		ringCap:   cfg.RingCapacity,
		logger:    logging.WithComponent(logger, "timing"),
		streams:   make(map[string]*Stream),
	}
}

// Corrector exposes the shared drift corrector (for tuning hot reload).
func (r *Registry) Corrector() *Corrector {
	return r.corrector
}

// OnStop registers a callback invoked whenever a stream is stopped. Used by
// the correlator to tear down links immediately.
func (r *Registry) OnStop(fn func(streamID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStop = append(r.onStop, fn)
}

// Register creates timing state for a new stream. The stream's initial
// reference timestamp is the master clock's current reading.
func (r *Registry) Register(id string, modality Modality, cfg StreamConfig) (*Stream, error) {
	if cfg.ExpectedRate <= 0 {
		return nil, fmt.Errorf("stream %s: expected rate must be positive, got %v", id, cfg.ExpectedRate)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.streams[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrStreamExists, id)
	}
	s := &Stream{
		id:           id,
		modality:     modality,
		cfg:          cfg,
		lastReported: r.clk.Now() + cfg.LatencyOffset,
		drift:        newRing(r.ringCap),
		quality:      1,
		withinTarget: true,
	}
	r.streams[id] = s
	r.logger.Info("stream registered",
		logging.String("stream", id),
		logging.String("modality", modality.String()),
		logging.Float64("rate", cfg.ExpectedRate))
	return s, nil
}

// Stop removes a stream and fires the stop callbacks. Any link referencing
// the stream becomes invalid before Stop returns.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	if _, ok := r.streams[id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStreamNotRegistered, id)
	}
	delete(r.streams, id)
	callbacks := append([]func(string){}, r.onStop...)
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn(id)
	}
	r.logger.Info("stream stopped", logging.String("stream", id))
	return nil
}

// Observe folds a frame timestamp into the stream's timing state and returns
// the enriched observation.
func (r *Registry) Observe(id string, frameTS clock.Timestamp) (Observation, error) {
	r.mu.RLock()
	s, ok := r.streams[id]
	r.mu.RUnlock()
	if !ok {
		return Observation{}, fmt.Errorf("%w: %s", ErrStreamNotRegistered, id)
	}
	return s.observe(r.corrector, frameTS), nil
}

// Lookup returns the stream for id.
func (r *Registry) Lookup(id string) (*Stream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStreamNotRegistered, id)
	}
	return s, nil
}

// Snapshots returns the timing state of every registered stream.
func (r *Registry) Snapshots() []StreamSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]StreamSnapshot, 0, len(r.streams))
	for _, s := range r.streams {
		out = append(out, s.Snapshot())
	}
	return out
}

// Now exposes the master clock reading used for frame stamping.
func (r *Registry) Now() clock.Timestamp {
	return r.clk.Now()
}
