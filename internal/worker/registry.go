package worker

import (
	"fmt"
	"sort"
	"sync"

	"ciex/internal/appconfig"
	"ciex/internal/task"
)

// Factory builds the worker bound to one application.
type Factory func(cfg *appconfig.AppConfig, router *task.Router) (Worker, error)

// Registry maps worker locations to factories. Built-in workers register
// under their class name; workers living in other packages register under
// "module.class" before the daemon initializes.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory under key.
func (r *Registry) Register(key string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateWorker, key)
	}
	r.factories[key] = f
	return nil
}

// MustRegister is Register for init-time wiring.
func (r *Registry) MustRegister(key string, f Factory) {
	if err := r.Register(key, f); err != nil {
		panic(err)
	}
}

// Resolve finds the factory for a worker location.
func (r *Registry) Resolve(loc appconfig.WorkerLocation) (Factory, error) {
	r.mu.RLock()
	f, ok := r.factories[loc.Key()]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (dir %s)", ErrUnknownWorker, loc.Key(), loc.Dir)
	}
	return f, nil
}

// Bind resolves and constructs the worker configured for cfg.
func (r *Registry) Bind(cfg *appconfig.AppConfig, router *task.Router) (Worker, error) { //nolint:ireturn
	f, err := r.Resolve(cfg.Worker)
	if err != nil {
		return nil, fmt.Errorf("app %s: %w", cfg.Name, err)
	}
	w, err := f(cfg, router)
	if err != nil {
		return nil, fmt.Errorf("app %s: build worker %s: %w", cfg.Name, cfg.Worker.Key(), err)
	}
	return w, nil
}

// Keys lists registered worker keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
