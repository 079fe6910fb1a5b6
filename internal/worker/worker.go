package worker

import (
	"sync"
	"sync/atomic"
	"time"
)

// Worker is the supervised record for one external process. The status field
// is mutated only through Status/CompareAndSwap/SetStatus so that the health
// loop and request dispatch never race on transitions.
type Worker struct {
	ID string

	mu       sync.Mutex
	status   Status
	proc     Process
	conn     *Conn
	failures int
	lastPing time.Time

	served   atomic.Uint64
	errorCnt atomic.Uint64
	restarts atomic.Uint64
}

// New creates a worker record in the Starting state.
func New(id string) *Worker {
	return &Worker{ID: id, status: StatusStarting}
}

// Status returns the current lifecycle state.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// CompareAndSwap atomically transitions from one status to another. It
// returns false if the worker was not in the expected state, which callers
// treat as losing the race to another concurrent transition.
func (w *Worker) CompareAndSwap(from, to Status) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status != from {
		return false
	}
	w.status = to
	return true
}

// SetStatus forces a transition regardless of the current state. Reserved for
// pool shutdown and restart paths that own the worker outright.
func (w *Worker) SetStatus(to Status) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = to
}

// Attach binds a freshly launched process and its channel to the record,
// clearing failure bookkeeping from any previous incarnation.
func (w *Worker) Attach(proc Process, conn *Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
	}
	w.proc = proc
	w.conn = conn
	w.failures = 0
}

// Handles returns the current process and connection. Either may be nil
// before the first Attach.
func (w *Worker) Handles() (Process, *Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.proc, w.conn
}

// RecordSuccess counts a served request and clears consecutive failures.
func (w *Worker) RecordSuccess() {
	w.served.Add(1)
	w.mu.Lock()
	w.failures = 0
	w.mu.Unlock()
}

// RecordFailure counts an error and returns the consecutive-failure total.
func (w *Worker) RecordFailure() int {
	w.errorCnt.Add(1)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures++
	return w.failures
}

// ResetFailures clears the consecutive-failure counter (successful probe).
func (w *Worker) ResetFailures() {
	w.mu.Lock()
	w.failures = 0
	w.mu.Unlock()
}

// MarkHealthChecked stamps the time of the last successful probe.
func (w *Worker) MarkHealthChecked(at time.Time) {
	w.mu.Lock()
	w.lastPing = at
	w.mu.Unlock()
}

// CountRestart increments the restart counter.
func (w *Worker) CountRestart() {
	w.restarts.Add(1)
}

// Snapshot is a read-only view of a worker for stats reporting.
type Snapshot struct {
	ID              string    `json:"id"`
	PID             int       `json:"pid"`
	Status          string    `json:"status"`
	RequestsServed  uint64    `json:"requests_served"`
	Errors          uint64    `json:"errors"`
	Restarts        uint64    `json:"restarts"`
	ConsecutiveFail int       `json:"consecutive_failures"`
	LastHealthCheck time.Time `json:"last_health_check"`
}

// Snapshot captures the worker's current state.
func (w *Worker) Snapshot() Snapshot {
	w.mu.Lock()
	status := w.status
	failures := w.failures
	lastPing := w.lastPing
	var pid int
	if w.proc != nil {
		pid = w.proc.PID()
	}
	w.mu.Unlock()

	return Snapshot{
		ID:              w.ID,
		PID:             pid,
		Status:          status.String(),
		RequestsServed:  w.served.Load(),
		Errors:          w.errorCnt.Load(),
		Restarts:        w.restarts.Load(),
		ConsecutiveFail: failures,
		LastHealthCheck: lastPing,
	}
}
