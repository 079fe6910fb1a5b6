package pool

import (
	"context"
	"time"

	"courtside/internal/events"
	"courtside/internal/logging"
	"courtside/internal/worker"
)

// scheduleRestart moves an unhealthy worker into the restarting state and
// kicks off the restart goroutine. The compare-and-swap is the scheduling
// guard: whichever path (health loop, exit watcher, dispatcher report) wins
// the transition owns the restart.
func (p *Pool) scheduleRestart(w *worker.Worker, reason string) {
	if !w.CompareAndSwap(worker.StatusUnhealthy, worker.StatusRestarting) {
		return
	}
	p.logger.Info("scheduling worker restart",
		logging.String("worker", w.ID),
		logging.String("reason", reason))
	p.publish(events.KindWorkerStateChanged, w.ID, worker.StatusRestarting.String())

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.restart(w)
	}()
}

// restart tears down the old process, waits the backoff delay, and re-spawns
// under the same worker id. Failed re-spawns retry with the same backoff
// until the pool shuts down.
func (p *Pool) restart(w *worker.Worker) {
	proc, conn := w.Handles()
	if conn != nil {
		// Best-effort polite shutdown before signalling.
		_ = conn.Notify(worker.Request{Command: worker.CommandShutdown})
		conn.Close()
	}
	if proc != nil {
		p.stopProcess(w, proc)
	}

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-time.After(p.cfg.RestartBackoff()):
		}

		w.SetStatus(worker.StatusStarting)
		if err := p.respawn(w); err != nil {
			p.logger.Warn("worker restart failed, retrying after backoff",
				logging.String("worker", w.ID),
				logging.Error(err))
			w.SetStatus(worker.StatusRestarting)
			continue
		}
		w.CountRestart()
		p.publish(events.KindWorkerRestarted, w.ID, nil)
		p.logger.Info("worker restarted", logging.String("worker", w.ID))
		return
	}
}

// respawn launches and probes a fresh process for w, reusing the spawn
// machinery minus the health loop (the original loop keeps running).
func (p *Pool) respawn(w *worker.Worker) error {
	proc, err := p.launcher.Launch(p.ctx, w.ID)
	if err != nil {
		return err
	}
	conn := worker.NewConn(proc.Stdin(), proc.Stdout())
	w.Attach(proc, conn)

	probeCtx, cancel := context.WithTimeout(p.ctx, p.cfg.StartupTimeoutDuration())
	defer cancel()
	reply, err := conn.Call(probeCtx, worker.Request{Command: worker.CommandGetStats})
	if err != nil || !reply.Success {
		_ = proc.Kill()
		if err == nil {
			err = probeError(reply.Error)
		}
		return err
	}

	if !w.CompareAndSwap(worker.StatusStarting, worker.StatusReady) {
		_ = proc.Kill()
		return ErrPoolClosed
	}
	w.MarkHealthChecked(time.Now())
	p.enqueueReady(w)
	p.publish(events.KindWorkerStateChanged, w.ID, worker.StatusReady.String())
	p.watchExit(w, proc)
	return nil
}
