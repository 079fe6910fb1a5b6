// Package timing keeps independently-arriving media streams aligned to the
// master clock.
//
// Every registered stream tracks the interval between its frames against the
// cadence its configured rate implies. The difference (drift) feeds a bounded
// ring buffer; the corrector averages recent samples and nudges the stream's
// reported timeline by a partial correction. The gain is deliberately below
// one: corrections converge asymptotically instead of oscillating around the
// target.
package timing
