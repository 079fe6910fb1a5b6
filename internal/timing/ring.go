package timing

import "time"

// ring is a bounded buffer of drift samples. Oldest entries are evicted once
// capacity is reached. Not safe for concurrent use; the owning stream's
// mutex guards it.
type ring struct {
	samples []time.Duration
	next    int
	filled  bool
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring{samples: make([]time.Duration, capacity)}
}

func (r *ring) push(sample time.Duration) {
	r.samples[r.next] = sample
	r.next++
	if r.next == len(r.samples) {
		r.next = 0
		r.filled = true
	}
}

func (r *ring) len() int {
	if r.filled {
		return len(r.samples)
	}
	return r.next
}

// recent returns up to n of the most recent samples, newest last.
func (r *ring) recent(n int) []time.Duration {
	size := r.len()
	if n > size {
		n = size
	}
	out := make([]time.Duration, 0, n)
	for i := size - n; i < size; i++ {
		idx := i
		if r.filled {
			idx = (r.next + i) % len(r.samples)
		}
		out = append(out, r.samples[idx])
	}
	return out
}

func mean(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, s := range samples {
		sum += s
	}
	return sum / time.Duration(len(samples))
}
