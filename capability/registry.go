// Package capability implements a process-wide table binding abstract
// capabilities to the single concrete backend selected for the running
// platform. The table is populated exactly once, during [Registry.Bootstrap],
// and is read-only for the remainder of the process lifetime; lookups after
// bootstrap are plain map reads with no synchronization.
package capability

import (
	"context"
	"sync/atomic"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/pkg/errors"
)

// Registry lifecycle states. The only transition is
// uninitialized -> initializing -> installed; installed is terminal.
const (
	stateUninitialized int32 = iota
	stateInitializing
	stateInstalled
)

// Registration describes a one-time initializer that constructs and installs
// a capability backend. Initializers are registered from package init
// functions of the platform-selected files, before Bootstrap runs.
type Registration struct {
	// Capability is the name the constructed backend is installed under.
	Capability string

	// Requires lists capabilities that must already be installed before
	// Init is invoked.
	Requires []string

	// Init constructs the backend instance. The InitContext gives access
	// to the capabilities named in Requires.
	Init func(*InitContext) (any, error)
}

// InitContext is passed to initializers while bootstrap is in progress.
type InitContext struct {
	registry *Registry
}

// Get returns a capability that was installed earlier in the bootstrap
// sequence. Only capabilities named in the caller's Requires are guaranteed
// to be present.
func (c *InitContext) Get(name string) (any, error) {
	v, ok := c.registry.table[name]
	if !ok {
		return nil, errors.Wrapf(cerrdefs.ErrNotFound, "capability %q not installed", name)
	}
	return v, nil
}

// Registry is a write-once capability table. The zero value is not usable;
// use NewRegistry or the package-level Default.
type Registry struct {
	state atomic.Int32
	inits []Registration
	table map[string]any
}

// NewRegistry returns an empty registry in the uninitialized state.
func NewRegistry() *Registry {
	return &Registry{table: make(map[string]any)}
}

// Default is the process-wide registry used by the platform packages.
var Default = NewRegistry()

// RegisterInit records an initializer to be run by Bootstrap. It must be
// called before Bootstrap, normally from a package init function; calling it
// afterwards is a programming error and panics.
func (r *Registry) RegisterInit(reg Registration) {
	if r.state.Load() != stateUninitialized {
		panic("capability: RegisterInit called after Bootstrap")
	}
	if reg.Capability == "" || reg.Init == nil {
		panic("capability: registration needs a name and an Init func")
	}
	r.inits = append(r.inits, reg)
}

// Bootstrap runs every registered initializer exactly once, in dependency
// order, and installs the constructed backends. It can run only once; any
// failure aborts the bootstrap and leaves the registry unusable, as a failed
// initialization indicates a build or integration bug.
func (r *Registry) Bootstrap(ctx context.Context) error {
	if !r.state.CompareAndSwap(stateUninitialized, stateInitializing) {
		return errors.Wrap(cerrdefs.ErrAlreadyExists, "capability registry already bootstrapped")
	}

	ordered, err := r.resolveOrder()
	if err != nil {
		return err
	}
	for _, reg := range ordered {
		instance, err := reg.Init(&InitContext{registry: r})
		if err != nil {
			return errors.Wrapf(err, "initializing capability %q", reg.Capability)
		}
		r.table[reg.Capability] = instance
		log.G(ctx).WithField("capability", reg.Capability).Debug("installed capability backend")
	}

	r.state.Store(stateInstalled)
	return nil
}

// Bootstrapped reports whether Bootstrap has completed successfully.
func (r *Registry) Bootstrapped() bool {
	return r.state.Load() == stateInstalled
}

// Get looks up the backend installed for the named capability. Calling Get
// before Bootstrap has completed is a setup error.
func (r *Registry) Get(name string) (any, error) {
	if r.state.Load() != stateInstalled {
		return nil, errors.Wrapf(cerrdefs.ErrUnavailable, "capability registry not bootstrapped (looking up %q)", name)
	}
	v, ok := r.table[name]
	if !ok {
		return nil, errors.Wrapf(cerrdefs.ErrNotFound, "no backend installed for capability %q", name)
	}
	return v, nil
}

// resolveOrder returns the registrations sorted so that every entry follows
// the capabilities it requires. Two backends competing for the same
// capability name abort the bootstrap.
func (r *Registry) resolveOrder() ([]Registration, error) {
	byName := make(map[string]Registration, len(r.inits))
	for _, reg := range r.inits {
		if _, exists := byName[reg.Capability]; exists {
			return nil, errors.Wrapf(cerrdefs.ErrAlreadyExists, "two backends registered for capability %q", reg.Capability)
		}
		byName[reg.Capability] = reg
	}

	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[string]int, len(byName))
	ordered := make([]Registration, 0, len(byName))

	var visit func(name string) error
	visit = func(name string) error {
		switch marks[name] {
		case done:
			return nil
		case visiting:
			return errors.Wrapf(cerrdefs.ErrInvalidArgument, "capability dependency cycle through %q", name)
		}
		reg, ok := byName[name]
		if !ok {
			return errors.Wrapf(cerrdefs.ErrNotFound, "capability %q required but not registered", name)
		}
		marks[name] = visiting
		for _, dep := range reg.Requires {
			if err := visit(dep); err != nil {
				return err
			}
		}
		marks[name] = done
		ordered = append(ordered, reg)
		return nil
	}

	for _, reg := range r.inits {
		if err := visit(reg.Capability); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

// RegisterInit records an initializer on the Default registry.
func RegisterInit(reg Registration) {
	Default.RegisterInit(reg)
}

// Bootstrap bootstraps the Default registry.
func Bootstrap(ctx context.Context) error {
	return Default.Bootstrap(ctx)
}

// Get looks up a capability in the Default registry.
func Get(name string) (any, error) {
	return Default.Get(name)
}
