package operations

import (
	"fmt"
	"sync"
)

// Registry holds the registered stages
type Registry struct {
	mu     sync.RWMutex
	stages map[string]Stage
	order  []string // registration order
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{stages: make(map[string]Stage)}
}

// Register adds a stage to the registry
func (r *Registry) Register(stage Stage) error {
	if stage == nil {
		return fmt.Errorf("cannot register nil stage")
	}
	id := stage.ID()
	if id == "" {
		return fmt.Errorf("stage ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stages[id]; exists {
		return fmt.Errorf("stage with ID %s already registered", id)
	}
	r.stages[id] = stage
	r.order = append(r.order, id)
	return nil
}

// Get retrieves a stage by ID
func (r *Registry) Get(id string) (Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stage, exists := r.stages[id]
	if !exists {
		return nil, NewNotFoundError(id)
	}
	return stage, nil
}

// Has checks if a stage is registered
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.stages[id]
	return exists
}

// List returns all stages in registration order
func (r *Registry) List() []Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Stage, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.stages[id])
	}
	return out
}

// ListIDs returns all stage IDs in registration order
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Count returns the number of registered stages
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stages)
}

// DependencyOrder returns every stage ordered so that each comes after its
// dependencies. Ties keep registration order.
func (r *Registry) DependencyOrder() ([]Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dependents := make(map[string][]string, len(r.stages))
	inDegree := make(map[string]int, len(r.stages))
	for _, id := range r.order {
		for _, dep := range r.stages[id].Dependencies() {
			if _, exists := r.stages[dep]; !exists {
				return nil, NewDependencyError(id, dep)
			}
			dependents[dep] = append(dependents[dep], id)
			inDegree[id]++
		}
	}

	// Kahn's algorithm, always taking the earliest registered ready stage
	ordered := make([]Stage, 0, len(r.stages))
	done := make(map[string]bool, len(r.stages))
	for len(ordered) < len(r.stages) {
		next := ""
		for _, id := range r.order {
			if !done[id] && inDegree[id] == 0 {
				next = id
				break
			}
		}
		if next == "" {
			return nil, fmt.Errorf("dependency cycle detected")
		}
		done[next] = true
		ordered = append(ordered, r.stages[next])
		for _, d := range dependents[next] {
			inDegree[d]--
		}
	}
	return ordered, nil
}

// Plan resolves the stages to run. With no IDs the plan is every stage in
// dependency order; otherwise it is exactly the requested stages, in
// dependency order, without pulling in their dependencies.
func (r *Registry) Plan(ids ...string) ([]Stage, error) {
	all, err := r.DependencyOrder()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return all, nil
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !r.Has(id) {
			return nil, NewNotFoundError(id)
		}
		want[id] = true
	}
	plan := make([]Stage, 0, len(ids))
	for _, s := range all {
		if want[s.ID()] {
			plan = append(plan, s)
		}
	}
	return plan, nil
}

// Dependents returns the stages that depend directly on id
func (r *Registry) Dependents(id string) []Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Stage
	for _, sid := range r.order {
		for _, dep := range r.stages[sid].Dependencies() {
			if dep == id {
				out = append(out, r.stages[sid])
				break
			}
		}
	}
	return out
}
