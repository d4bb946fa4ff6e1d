package chatsync

import "sync"

type purpose string

const (
	purposeRoster purpose = "roster"
	purposeThread purpose = "thread"
)

type inflightKey struct {
	conversationID string
	purpose        purpose
}

// inflightGuard lets at most one fetch per (conversation, purpose) run.
// Overlapping ticks are skipped rather than stacked.
type inflightGuard struct {
	mu     sync.Mutex
	active map[inflightKey]struct{}
}

func newInflightGuard() *inflightGuard {
	return &inflightGuard{active: make(map[inflightKey]struct{})}
}

func (g *inflightGuard) tryAcquire(key inflightKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[key]; busy {
		return false
	}
	g.active[key] = struct{}{}
	return true
}

func (g *inflightGuard) release(key inflightKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, key)
}
