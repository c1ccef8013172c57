package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds a fresh strategy instance for one run.
type Constructor func(cfg Config) Strategy

// Registry maps strategy names to constructors. It is safe for concurrent
// use.
type Registry struct {
	ctors map[string]Constructor
	mu    sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		ctors: make(map[string]Constructor),
	}
}

// DefaultRegistry returns a Registry holding the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("mm_inventory", func(cfg Config) Strategy { return NewMMInventory(cfg) })
	return r
}

// Register adds a constructor under name, replacing any existing one.
func (r *Registry) Register(name string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[name] = c
}

// New builds the strategy registered under cfg.Name.
func (r *Registry) New(cfg Config) (Strategy, error) {
	r.mu.RLock()
	c, ok := r.ctors[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered", cfg.Name)
	}
	return c(cfg), nil
}

// List returns the names of all registered strategies in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
