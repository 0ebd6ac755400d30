package module

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds loaded modules keyed by "namespace/name". The zero
// value is unusable; call NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*Module
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]*Module)}
}

// Register validates and adds a module. Re-registering a key fails.
func (r *Registry) Register(m *Module) error {
	if err := Validate(m); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := m.Key()
	if _, exists := r.modules[key]; exists {
		return fmt.Errorf("module %s already registered", key)
	}
	r.modules[key] = m
	return nil
}

// Resolve returns the module for a key, or an error naming what is
// available.
func (r *Registry) Resolve(key string) (*Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[key]
	if !ok {
		return nil, fmt.Errorf("unknown module %q (registered: %v)", key, r.keysLocked())
	}
	return m, nil
}

// Keys returns the registered module keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keysLocked()
}

func (r *Registry) keysLocked() []string {
	keys := make([]string, 0, len(r.modules))
	for k := range r.modules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
