package health

import "time"

// responseWindow is a fixed-size ring of the most recent response times.
// It is not safe for concurrent use; callers hold capabilityStats.mu.
type responseWindow struct {
	samples []time.Duration
	next    int
	full    bool
}

func newResponseWindow(size int) *responseWindow {
	return &responseWindow{samples: make([]time.Duration, size)}
}

func (w *responseWindow) add(d time.Duration) {
	w.samples[w.next] = d
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

func (w *responseWindow) len() int {
	if w.full {
		return len(w.samples)
	}
	return w.next
}

// average returns the mean of the retained samples, or zero when empty.
func (w *responseWindow) average() time.Duration {
	n := w.len()
	if n == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < n; i++ {
		sum += w.samples[i]
	}
	return sum / time.Duration(n)
}
