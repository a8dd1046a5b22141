package engine

import "sync"

// ActionGuard suppresses duplicate submits: while a mutation for a key
// is pending, further attempts with the same key are refused. The key is
// chosen by the call site (action name plus record id), mirroring the
// disabled-submit-control behavior of the role views.
type ActionGuard struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

func NewActionGuard() *ActionGuard {
	return &ActionGuard{pending: make(map[string]struct{})}
}

// TryBegin marks the key pending and reports whether the caller may
// proceed. A false return means an earlier submit is still in flight.
func (g *ActionGuard) TryBegin(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.pending[key]; exists {
		return false
	}
	g.pending[key] = struct{}{}
	return true
}

func (g *ActionGuard) End(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, key)
}
