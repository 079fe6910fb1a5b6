// Package daemon wires the worker pool, timing registry, correlator and
// result store into a single supervised process and enforces
// single-instance execution via a file lock.
//
// The daemon is the only component that owns lifecycles: everything else
// is constructed here, started in dependency order, and stopped in
// reverse. The IPC layer calls into the daemon's methods; it never touches
// the underlying components directly.
package daemon
