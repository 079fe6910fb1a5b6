package correlate

import (
	"time"

	"courtside/internal/clock"
)

// Pattern is a classified, timestamped event extracted from a processed
// frame.
type Pattern struct {
	Kind       string          `json:"kind"`
	Confidence float64         `json:"confidence"`
	Timestamp  clock.Timestamp `json:"timestamp"`
	StreamID   string          `json:"stream_id"`
}

// Correlation is a cross-modal match between two patterns inside a
// configured window. Ephemeral: computed on demand, returned to the caller,
// never persisted here.
type Correlation struct {
	Source         Pattern       `json:"source"`
	Target         Pattern       `json:"target"`
	TimeDifference time.Duration `json:"time_difference"`
	Confidence     float64       `json:"confidence"`
}

// patternRing is a bounded buffer of recent patterns, oldest evicted first.
// Guarded by the correlator's lock.
type patternRing struct {
	entries []Pattern
	next    int
	filled  bool
}

func newPatternRing(capacity int) *patternRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &patternRing{entries: make([]Pattern, capacity)}
}

func (r *patternRing) push(p Pattern) {
	r.entries[r.next] = p
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.filled = true
	}
}

// scan visits every buffered pattern no older than cutoff.
func (r *patternRing) scan(cutoff clock.Timestamp, visit func(Pattern)) {
	size := r.next
	if r.filled {
		size = len(r.entries)
	}
	for i := 0; i < size; i++ {
		idx := i
		if r.filled {
			idx = (r.next + i) % len(r.entries)
		}
		if r.entries[idx].Timestamp >= cutoff {
			visit(r.entries[idx])
		}
	}
}
