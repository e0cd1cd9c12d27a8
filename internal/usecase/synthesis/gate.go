package synthesis

import "sync/atomic"

// gate admits at most limit concurrent holders. Every successful tryAcquire
// must be paired with exactly one release.
type gate struct {
	limit    int64
	inFlight atomic.Int64
}

func newGate(limit int) *gate {
	return &gate{limit: int64(limit)}
}

func (g *gate) tryAcquire() bool {
	for {
		cur := g.inFlight.Load()
		if cur >= g.limit {
			return false
		}
		if g.inFlight.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (g *gate) release() {
	g.inFlight.Add(-1)
}

func (g *gate) current() int {
	return int(g.inFlight.Load())
}
