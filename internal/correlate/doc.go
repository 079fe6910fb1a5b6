// Package correlate matches classified events across linked audio/visual
// stream pairs.
//
// Streams are linked explicitly; each link carries per-kind correlation
// windows. Every pattern observed on a linked stream is checked against the
// counterpart stream's recent patterns, and the best match within the window
// whose combined confidence clears the global minimum becomes a Correlation.
// A miss is a normal outcome, not an error.
//
// Stopping either stream invalidates the link immediately; pattern
// observations racing a teardown are discarded.
package correlate
