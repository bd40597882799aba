package plugins

import (
	"sort"
	"sync"

	"github.com/antigravity-dev/boa/internal/boaerr"
)

// typedRegistry is a named lookup for one plugin partition: a generic
// container over any plugin interface type, offering Register/Get/Names.
type typedRegistry[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

func newTypedRegistry[T any]() *typedRegistry[T] {
	return &typedRegistry[T]{entries: map[string]T{}}
}

func (r *typedRegistry[T]) register(name string, p T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = p
}

func (r *typedRegistry[T]) get(name string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.entries[name]
	if !ok {
		return p, boaerr.New(boaerr.KindPluginNotFound, "plugin %q not found. available: %v", name, r.namesLocked())
	}
	return p, nil
}

func (r *typedRegistry[T]) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *typedRegistry[T]) namesLocked() []string {
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Registry is the central lookup for all plugin partitions: samplers,
// surrogate models, acquisition functions, and input constraints. It is
// initialized once at startup (via RegisterBuiltins and/or Register*) and
// then treated as immutable reads.
type Registry struct {
	samplers     *typedRegistry[Sampler]
	models       *typedRegistry[ModelPlugin]
	acquisitions *typedRegistry[AcquisitionPlugin]
	constraints  *typedRegistry[InputConstraint]
}

// NewRegistry builds an empty registry. Call RegisterBuiltins to populate it
// with the reference plugin set, then Register* for any external additions.
func NewRegistry() *Registry {
	return &Registry{
		samplers:     newTypedRegistry[Sampler](),
		models:       newTypedRegistry[ModelPlugin](),
		acquisitions: newTypedRegistry[AcquisitionPlugin](),
		constraints:  newTypedRegistry[InputConstraint](),
	}
}

func (r *Registry) RegisterSampler(p Sampler)         { r.samplers.register(p.Name(), p) }
func (r *Registry) RegisterModel(p ModelPlugin)       { r.models.register(p.Name(), p) }
func (r *Registry) RegisterAcquisition(p AcquisitionPlugin) { r.acquisitions.register(p.Name(), p) }
func (r *Registry) RegisterConstraint(p InputConstraint)    { r.constraints.register(p.Name(), p) }

func (r *Registry) Sampler(name string) (Sampler, error)         { return r.samplers.get(name) }
func (r *Registry) Model(name string) (ModelPlugin, error)       { return r.models.get(name) }
func (r *Registry) Acquisition(name string) (AcquisitionPlugin, error) { return r.acquisitions.get(name) }
func (r *Registry) Constraint(name string) (InputConstraint, error)    { return r.constraints.get(name) }

func (r *Registry) SamplerNames() []string     { return r.samplers.names() }
func (r *Registry) ModelNames() []string       { return r.models.names() }
func (r *Registry) AcquisitionNames() []string { return r.acquisitions.names() }
func (r *Registry) ConstraintNames() []string  { return r.constraints.names() }
