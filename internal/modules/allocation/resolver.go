package allocation

import (
	"sync"

	"github.com/royaltyfi/vaultd/internal/domain"
)

// Resolver maps registered strategy handles to their client implementations.
// Handles come from the registry; implementations are wired at startup
// (Aave gateway, Compound gateway, ...).
type Resolver struct {
	mu         sync.RWMutex
	strategies map[string]domain.Strategy
}

// NewResolver creates an empty resolver
func NewResolver() *Resolver {
	return &Resolver{strategies: make(map[string]domain.Strategy)}
}

// Register binds a handle to a strategy implementation.
func (r *Resolver) Register(handle string, strategy domain.Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[handle] = strategy
}

// Resolve looks up the implementation for a handle.
func (r *Resolver) Resolve(handle string) (domain.Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[handle]
	return s, ok
}
