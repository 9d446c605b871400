package task

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry maintains the in-memory index of collection units by name.
type Registry struct {
	units  map[string]Unit
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		units:  make(map[string]Unit),
		logger: logger.With("component", "unit_registry"),
	}
}

// Register adds units. Names must be unique.
func (r *Registry) Register(units ...Unit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range units {
		name := u.Name()
		if name == "" {
			return fmt.Errorf("unit has no name: %T", u)
		}
		if _, exists := r.units[name]; exists {
			return fmt.Errorf("unit %q already registered", name)
		}
		r.units[name] = u
		r.logger.Info("Registered collection unit", "unit", name)
	}
	return nil
}

// Get retrieves a unit by name.
func (r *Registry) Get(name string) (Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.units[name]
	return u, ok
}

// List returns the registered unit names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.units))
	for name := range r.units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
