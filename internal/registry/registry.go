package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vk/fmriflow/internal/ctxlog"
	"github.com/vk/fmriflow/internal/stage"
)

// Module is the interface that all stage catalogs must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry maps stage names to their specs and runners.
type Registry struct {
	specs   map[string]*stage.Spec
	runners map[string]stage.Runner
}

// New creates and initializes a new Registry instance.
func New(modules ...Module) *Registry {
	r := &Registry{
		specs:   make(map[string]*stage.Spec),
		runners: make(map[string]stage.Runner),
	}
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// RegisterStage registers a stage spec together with its runner. Registering
// the same name twice is a programmer error.
func (r *Registry) RegisterStage(spec *stage.Spec, runner stage.Runner) {
	if _, exists := r.specs[spec.Name]; exists {
		panic(fmt.Sprintf("stage with name '%s' already registered", spec.Name))
	}
	if err := spec.Validate(); err != nil {
		panic(err)
	}
	slog.Debug("Registering stage.", "name", spec.Name)
	r.specs[spec.Name] = spec
	r.runners[spec.Name] = runner
}

// OverrideRunner swaps the runner of an already registered stage.
func (r *Registry) OverrideRunner(name string, runner stage.Runner) {
	if _, exists := r.specs[name]; !exists {
		panic(fmt.Sprintf("cannot override runner of unknown stage '%s'", name))
	}
	r.runners[name] = runner
}

// Spec returns the spec registered under name.
func (r *Registry) Spec(name string) (*stage.Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Runner returns the runner registered under name.
func (r *Registry) Runner(name string) (stage.Runner, bool) {
	run, ok := r.runners[name]
	return run, ok && run != nil
}

// Names returns every registered stage name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for n := range r.specs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ValidateRegistry checks that every registered stage has a runner.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	for _, name := range r.Names() {
		if _, ok := r.Runner(name); !ok {
			return fmt.Errorf("stage '%s' has no runner", name)
		}
	}
	logger.Debug("Registry validation passed.", "stages", len(r.specs))
	return nil
}
