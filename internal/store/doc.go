// Package store persists per-frame processing results and worker lifecycle
// events in SQLite.
//
// The store is the system of record for the latency and compliance numbers
// the stats surfaces report. Writes happen on the dispatch path, so every
// statement retries on SQLITE_BUSY with backoff rather than failing the
// frame. To change the schema, update schema.sql and bump schemaVersion.
package store
