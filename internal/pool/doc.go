// Package pool owns the fixed-size set of supervised worker processes.
//
// The pool spawns workers at startup, hands them out to the dispatcher
// through bounded-wait Acquire/Release, probes each worker on an independent
// health-check timer, and restarts workers that exhaust their
// consecutive-failure budget or exit unexpectedly. Worker failures are
// isolated: a restarting worker never disturbs its peers or the pool itself.
//
// All status transitions go through compare-and-swap operations on the
// worker record, so concurrent acquisition, probing, and exit handling never
// hand the same worker to two callers.
package pool
