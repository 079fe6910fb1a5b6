// Package dispatch routes frame processing requests through the worker pool
// and folds the results into the timing and correlation engines.
//
// A frame travels one path: acquire a worker with a bounded wait, send the
// framed request, classify the outcome, fold the corrected timestamp into
// the stream's timing state, offer any detected patterns to the correlator,
// and persist the record. Failures are classified so callers can tell
// saturation from worker faults from unknown streams.
package dispatch
