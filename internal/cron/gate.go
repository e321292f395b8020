package cron

import "sync"

// gate is a counting admission gate. Lowering the capacity below the number
// of in-flight runs never preempts anything; it only denies new admissions
// until enough slots are released.
type gate struct {
	mu       sync.Mutex
	capacity int
	inflight int
}

func newGate(capacity int) *gate {
	return &gate{capacity: normalizeCapacity(capacity)}
}

func normalizeCapacity(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

func (g *gate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight >= g.capacity {
		return false
	}
	g.inflight++
	return true
}

func (g *gate) Release() {
	g.mu.Lock()
	if g.inflight > 0 {
		g.inflight--
	}
	g.mu.Unlock()
}

func (g *gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inflight
}

func (g *gate) Capacity() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.capacity
}

func (g *gate) SetCapacity(n int) {
	g.mu.Lock()
	g.capacity = normalizeCapacity(n)
	g.mu.Unlock()
}
