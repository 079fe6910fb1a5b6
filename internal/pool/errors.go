package pool

import "errors"

var (
	// ErrPoolExhausted is returned when no worker becomes ready within the
	// acquire timeout. Surfaced directly to callers, never retried here.
	ErrPoolExhausted = errors.New("worker pool exhausted")

	// ErrWorkerStartup is returned when a worker fails to reach ready within
	// the startup timeout. Pool initialization fails only if every worker
	// startup fails.
	ErrWorkerStartup = errors.New("worker startup failed")

	// ErrPoolClosed is returned for operations against a stopped pool.
	ErrPoolClosed = errors.New("worker pool closed")

	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("worker pool already running")
)
