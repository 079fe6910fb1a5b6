package pool

import (
	"context"
	"time"

	"courtside/internal/events"
	"courtside/internal/logging"
	"courtside/internal/worker"
)

// runHealthLoop probes the worker on a fixed interval, independent of request
// traffic. The loop lives for the pool's lifetime; it idles through restarts
// and resumes probing once the worker is back in rotation.
func (p *Pool) runHealthLoop(w *worker.Worker) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.HealthIntervalDuration())
		defer ticker.Stop()

		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				p.probe(w)
			}
		}
	}()
}

// probe sends a lightweight get_stats command with its own timeout. Busy
// workers are skipped; the in-flight request already exercises the channel
// and its outcome feeds the same failure counter.
func (p *Pool) probe(w *worker.Worker) {
	if w.Status() != worker.StatusReady {
		return
	}
	_, conn := w.Handles()
	if conn == nil {
		return
	}

	probeCtx, cancel := context.WithTimeout(p.ctx, p.cfg.HealthTimeout())
	defer cancel()
	reply, err := conn.Call(probeCtx, worker.Request{Command: worker.CommandGetStats})

	if err == nil && reply.Success {
		w.ResetFailures()
		w.MarkHealthChecked(time.Now())
		return
	}

	if err == nil {
		err = probeError(reply.Error)
	}
	failures := w.RecordFailure()
	p.logger.Warn("health check failed",
		logging.String("worker", w.ID),
		logging.Int("consecutive", failures),
		logging.Error(err))

	if failures < p.cfg.FailureThreshold {
		return
	}
	if w.CompareAndSwap(worker.StatusReady, worker.StatusUnhealthy) {
		p.publish(events.KindWorkerStateChanged, w.ID, worker.StatusUnhealthy.String())
		p.scheduleRestart(w, "health check exhaustion")
	}
}

type probeError string

func (e probeError) Error() string {
	if e == "" {
		return "probe rejected"
	}
	return string(e)
}
