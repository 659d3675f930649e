package gate

import (
	"fmt"
	"sort"
	"sync"
)

// ErrStrategyNotFound is returned for unknown strategy names.
var ErrStrategyNotFound = fmt.Errorf("strategy not found")

// Registry holds the executors of all managed strategies. Registration
// happens at startup and on hot-add; lookups dominate.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]*Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]*Executor)}
}

// Register adds or replaces the executor for its strategy.
func (r *Registry) Register(e *Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[e.Strategy()] = e
}

// Get returns the executor for a strategy.
func (r *Registry) Get(strategy string) (*Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[strategy]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStrategyNotFound, strategy)
	}
	return e, nil
}

// Strategies returns the registered strategy names, sorted.
func (r *Registry) Strategies() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
