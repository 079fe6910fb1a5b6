// Package worker models a single supervised analysis worker process and its
// request/reply channel.
//
// A Worker record owns the lifecycle status, request counters, and failure
// bookkeeping for one external process. The Conn type frames requests and
// replies as newline-delimited JSON over the process's stdin/stdout and
// matches replies to requests by id. Launcher abstracts process creation so
// the pool can be exercised in tests with in-process fakes.
//
// Workers are owned exclusively by the pool; nothing outside internal/pool
// should mutate a Worker's status.
package worker
