package badge

import (
	"fmt"
	"sort"
	"sync"

	"fitness-league/internal/model"
)

// Registry maps badge types to their evaluator. It is safe for concurrent use.
type Registry struct {
	evaluators map[model.BadgeType]Evaluator
	mu         sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		evaluators: make(map[model.BadgeType]Evaluator),
	}
}

// Register adds an evaluator, replacing any previous one for the same type.
func (r *Registry) Register(e Evaluator) error {
	if e == nil {
		return fmt.Errorf("cannot register nil evaluator")
	}
	if !e.Type().Valid() {
		return fmt.Errorf("%w: %q", model.ErrUnknownBadgeType, e.Type())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[e.Type()] = e
	return nil
}

// Get retrieves the evaluator for a badge type.
func (r *Registry) Get(t model.BadgeType) (Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evaluators[t]
	return e, ok
}

// Types returns the registered badge types, sorted.
func (r *Registry) Types() []model.BadgeType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]model.BadgeType, 0, len(r.evaluators))
	for t := range r.evaluators {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Count returns the number of registered evaluators.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.evaluators)
}

// Unregister removes the evaluator of a badge type.
// Returns true if one was registered.
func (r *Registry) Unregister(t model.BadgeType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.evaluators[t]; ok {
		delete(r.evaluators, t)
		return true
	}
	return false
}
