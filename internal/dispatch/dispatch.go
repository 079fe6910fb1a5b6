package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"courtside/internal/clock"
	"courtside/internal/config"
	"courtside/internal/correlate"
	"courtside/internal/events"
	"courtside/internal/logging"
	"courtside/internal/pool"
	"courtside/internal/store"
	"courtside/internal/timing"
	"courtside/internal/worker"
)

// FailureKind classifies why a frame was not processed.
type FailureKind string

const (
	FailureNone                FailureKind = ""
	FailurePoolExhausted       FailureKind = "pool_exhausted"
	FailureWorkerCommunication FailureKind = "worker_communication"
	FailureWorkerError         FailureKind = "worker_error"
	FailureStreamNotRegistered FailureKind = "stream_not_registered"
)

// FrameRequest is one frame to process. A zero Timestamp is stamped with the
// master clock on arrival.
type FrameRequest struct {
	StreamID  string
	Timestamp clock.Timestamp
	Payload   json.RawMessage
}

// Result is the full outcome of one dispatched frame.
type Result struct {
	RequestID    string
	StreamID     string
	WorkerID     string
	Success      bool
	FailureKind  FailureKind
	Latency      time.Duration
	Compliant    bool
	Observation  timing.Observation
	Patterns     []correlate.Pattern
	Correlations []correlate.Correlation
	WorkerResult json.RawMessage
}

// Dispatcher owns the frame processing path.
type Dispatcher struct {
	cfg        config.Pool
	pool       *pool.Pool
	registry   *timing.Registry
	correlator *correlate.Correlator
	results    *store.Store
	bus        *events.Bus
	logger     *slog.Logger
}

// Option configures optional dispatcher collaborators.
type Option func(*Dispatcher)

// WithStore persists frame records to the given store.
func WithStore(st *store.Store) Option {
	return func(d *Dispatcher) { d.results = st }
}

// WithBus publishes frame events to the given bus.
func WithBus(bus *events.Bus) Option {
	return func(d *Dispatcher) { d.bus = bus }
}

// New constructs a dispatcher over the pool, registry and correlator.
func New(cfg config.Pool, p *pool.Pool, reg *timing.Registry, corr *correlate.Correlator, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:        cfg,
		pool:       p,
		registry:   reg,
		correlator: corr,
		logger:     logging.WithComponent(logger, "dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// framePayload is the envelope sent to the worker for process_frame.
type framePayload struct {
	StreamID    string          `json:"stream_id"`
	TimestampNS int64           `json:"timestamp_ns"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// frameResult is the portion of a worker's result the dispatcher interprets.
// Unknown fields pass through untouched in Result.WorkerResult.
type frameResult struct {
	Patterns []struct {
		Kind       string  `json:"kind"`
		Confidence float64 `json:"confidence"`
	} `json:"patterns"`
}

// ProcessFrame runs one frame through the pool and the timing engine. The
// returned Result is populated even on failure; the error mirrors the
// failure kind for callers that branch with errors.Is.
func (d *Dispatcher) ProcessFrame(ctx context.Context, req FrameRequest) (Result, error) {
	res := Result{
		RequestID: uuid.NewString(),
		StreamID:  req.StreamID,
	}

	if _, err := d.registry.Lookup(req.StreamID); err != nil {
		res.FailureKind = FailureStreamNotRegistered
		d.finish(ctx, &res)
		return res, err
	}
	if req.Timestamp == 0 {
		req.Timestamp = d.registry.Now()
	}

	w, err := d.pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, pool.ErrPoolExhausted) {
			res.FailureKind = FailurePoolExhausted
		} else {
			res.FailureKind = FailureWorkerCommunication
		}
		d.finish(ctx, &res)
		return res, err
	}
	res.WorkerID = w.ID

	reply, latency, err := d.send(ctx, w, res.RequestID, req)
	res.Latency = latency
	if err != nil {
		d.pool.ReportCommunicationFailure(w)
		d.pool.Release(w)
		res.FailureKind = FailureWorkerCommunication
		d.finish(ctx, &res)
		return res, fmt.Errorf("worker %s: %w", w.ID, err)
	}
	if !reply.Success {
		// The transport is fine; the worker rejected the frame. Not counted
		// against the restart budget.
		w.ResetFailures()
		d.pool.Release(w)
		res.FailureKind = FailureWorkerError
		d.finish(ctx, &res)
		return res, fmt.Errorf("worker %s rejected frame: %s", w.ID, reply.Error)
	}

	w.RecordSuccess()
	d.pool.Release(w)

	res.Success = true
	res.Compliant = latency <= d.cfg.TargetLatency()
	res.WorkerResult = reply.Result

	obs, err := d.registry.Observe(req.StreamID, req.Timestamp)
	if err != nil {
		// Stream stopped while the frame was in flight; the frame itself
		// still succeeded.
		d.logger.Debug("stream gone before timing fold",
			logging.String("stream", req.StreamID), logging.Error(err))
	} else {
		res.Observation = obs
		d.foldPatterns(&res, reply.Result, obs.CorrectedTimestamp)
	}

	d.finish(ctx, &res)
	return res, nil
}

// send frames the request and waits for the worker's reply under the
// response timeout. Latency is wall time measured here, not the worker's
// self-reported processing time.
func (d *Dispatcher) send(ctx context.Context, w *worker.Worker, requestID string, req FrameRequest) (*worker.Reply, time.Duration, error) {
	payload, err := json.Marshal(framePayload{
		StreamID:    req.StreamID,
		TimestampNS: int64(req.Timestamp),
		Data:        req.Payload,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("encode frame payload: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.ResponseTimeoutDuration())
	defer cancel()

	_, conn := w.Handles()
	if conn == nil {
		return nil, 0, worker.ErrConnClosed
	}
	start := time.Now()
	reply, err := conn.Call(callCtx, worker.Request{
		ID:      requestID,
		Command: worker.CommandProcessFrame,
		Payload: payload,
	})
	return reply, time.Since(start), err
}

// foldPatterns decodes the worker's pattern list best-effort and offers each
// pattern to the correlator. A result without patterns, or one that doesn't
// parse, is not an error.
func (d *Dispatcher) foldPatterns(res *Result, raw json.RawMessage, corrected clock.Timestamp) {
	if len(raw) == 0 || d.correlator == nil {
		return
	}
	var fr frameResult
	if err := json.Unmarshal(raw, &fr); err != nil {
		d.logger.Debug("unparseable worker result", logging.Error(err))
		return
	}
	for _, p := range fr.Patterns {
		pattern := correlate.Pattern{
			Kind:       p.Kind,
			Confidence: p.Confidence,
			Timestamp:  corrected,
			StreamID:   res.StreamID,
		}
		res.Patterns = append(res.Patterns, pattern)
		if corr, matched := d.correlator.ObservePattern(pattern); matched {
			res.Correlations = append(res.Correlations, *corr)
		}
	}
}

// finish persists and publishes the frame outcome. Best-effort: a store
// failure is logged, never surfaced to the frame's caller.
func (d *Dispatcher) finish(ctx context.Context, res *Result) {
	if d.results != nil {
		err := d.results.RecordFrame(ctx, store.FrameRecord{
			RequestID:          res.RequestID,
			StreamID:           res.StreamID,
			WorkerID:           res.WorkerID,
			Success:            res.Success,
			FailureKind:        string(res.FailureKind),
			Latency:            res.Latency,
			Compliant:          res.Compliant,
			CorrectedTimestamp: res.Observation.CorrectedTimestamp,
			QualityScore:       res.Observation.QualityScore,
		})
		if err != nil {
			d.logger.Warn("frame record not persisted", logging.Error(err))
		}
	}
	if d.bus != nil {
		d.bus.Publish(events.Event{
			Kind:     events.KindFrameProcessed,
			WorkerID: res.WorkerID,
			StreamID: res.StreamID,
			Detail:   *res,
		})
	}
}
