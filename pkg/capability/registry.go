package capability

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrUnknownPipeline = errors.New("unknown pipeline")
	ErrDuplicate       = errors.New("pipeline already registered")
)

// Registry maps pipeline names to the capability that runs them. Lookups
// with an empty name resolve to the default pipeline.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Capability[any, any]
	def    string
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Capability[any, any])}
}

// Register adds a capability under name. The first registration becomes the
// default until SetDefault says otherwise.
func (r *Registry) Register(name string, c Capability[any, any]) error {
	if name == "" {
		return errors.New("pipeline name is required")
	}
	if c == nil {
		return fmt.Errorf("pipeline %q: nil capability", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.byName[name] = c
	if r.def == "" {
		r.def = name
	}
	return nil
}

func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPipeline, name)
	}
	r.def = name
	return nil
}

// Lookup returns the capability for name and the name it resolved to.
func (r *Registry) Lookup(name string) (Capability[any, any], string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.def
	}
	c, ok := r.byName[name]
	if !ok {
		return nil, name, fmt.Errorf("%w: %q", ErrUnknownPipeline, name)
	}
	return c, name, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
