package arbitrage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Registry holds named hedges for selection by config.
type Registry struct {
	hedges map[domain.Strategy]Hedge
	mu     sync.RWMutex
}

// NewRegistry returns an empty registry. Call Register to add hedges.
func NewRegistry() *Registry {
	return &Registry{hedges: make(map[domain.Strategy]Hedge)}
}

// DefaultRegistry contains the two cross-venue hedges and the two
// single-venue YES+NO hedges.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range []domain.Strategy{
		domain.StrategyKalshiYesPolyNo,
		domain.StrategyPolyYesKalshiNo,
		domain.StrategyPolyOnly,
		domain.StrategyKalshiOnly,
	} {
		h, _ := NewHedge(s)
		r.Register(h)
	}
	return r
}

// Register adds a hedge under its own name.
func (r *Registry) Register(h Hedge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hedges[h.Name()] = h
}

// Get returns the hedge by name, or an error if not found.
func (r *Registry) Get(name domain.Strategy) (Hedge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hedges[name]
	if !ok {
		return nil, fmt.Errorf("arbitrage strategy %q not found", name)
	}
	return h, nil
}

// Resolve maps configured names to hedges, preserving order.
func (r *Registry) Resolve(names []domain.Strategy) ([]Hedge, error) {
	out := make([]Hedge, 0, len(names))
	for _, n := range names {
		h, err := r.Get(n)
		if err != nil {
			return nil, fmt.Errorf("%w (valid: %s)", err, strings.Join(r.List(), ", "))
		}
		out = append(out, h)
	}
	return out, nil
}

// List returns all registered strategy names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.hedges))
	for n := range r.hedges {
		names = append(names, string(n))
	}
	sort.Strings(names)
	return names
}
