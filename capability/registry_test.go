package capability

import (
	"context"
	"testing"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/pkg/errors"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestBootstrapInstallsInDependencyOrder(t *testing.T) {
	r := NewRegistry()
	var order []string
	record := func(name string) func(*InitContext) (any, error) {
		return func(*InitContext) (any, error) {
			order = append(order, name)
			return name, nil
		}
	}
	r.RegisterInit(Registration{Capability: "measure", Requires: []string{"bootstrap"}, Init: record("measure")})
	r.RegisterInit(Registration{Capability: "bootstrap", Init: record("bootstrap")})

	assert.NilError(t, r.Bootstrap(context.Background()))
	assert.Check(t, is.DeepEqual(order, []string{"bootstrap", "measure"}))
	assert.Check(t, r.Bootstrapped())

	v, err := r.Get("measure")
	assert.NilError(t, err)
	assert.Check(t, is.Equal(v, "measure"))
}

func TestBootstrapRunsEachInitializerOnce(t *testing.T) {
	r := NewRegistry()
	var calls int
	r.RegisterInit(Registration{Capability: "solo", Init: func(*InitContext) (any, error) {
		calls++
		return struct{}{}, nil
	}})
	assert.NilError(t, r.Bootstrap(context.Background()))
	assert.Check(t, is.Equal(calls, 1))

	err := r.Bootstrap(context.Background())
	assert.Check(t, is.ErrorType(err, cerrdefs.IsAlreadyExists))
	assert.Check(t, is.Equal(calls, 1))
}

func TestDuplicateCapabilityAbortsBootstrap(t *testing.T) {
	r := NewRegistry()
	install := func(*InitContext) (any, error) { return struct{}{}, nil }
	r.RegisterInit(Registration{Capability: "clock", Init: install})
	r.RegisterInit(Registration{Capability: "clock", Init: install})

	err := r.Bootstrap(context.Background())
	assert.Check(t, is.ErrorType(err, cerrdefs.IsAlreadyExists))
	assert.Check(t, !r.Bootstrapped())
}

func TestMissingRequirementAbortsBootstrap(t *testing.T) {
	r := NewRegistry()
	r.RegisterInit(Registration{Capability: "measure", Requires: []string{"ghost"}, Init: func(*InitContext) (any, error) {
		return struct{}{}, nil
	}})

	err := r.Bootstrap(context.Background())
	assert.Check(t, is.ErrorType(err, cerrdefs.IsNotFound))
}

func TestRequirementCycleAbortsBootstrap(t *testing.T) {
	r := NewRegistry()
	install := func(*InitContext) (any, error) { return struct{}{}, nil }
	r.RegisterInit(Registration{Capability: "a", Requires: []string{"b"}, Init: install})
	r.RegisterInit(Registration{Capability: "b", Requires: []string{"a"}, Init: install})

	err := r.Bootstrap(context.Background())
	assert.Check(t, is.ErrorType(err, cerrdefs.IsInvalidArgument))
}

func TestInitializerFailureAbortsBootstrap(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("no clock on this machine")
	r.RegisterInit(Registration{Capability: "clock", Init: func(*InitContext) (any, error) {
		return nil, boom
	}})

	err := r.Bootstrap(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Check(t, !r.Bootstrapped())
}

func TestGetBeforeBootstrapIsSetupError(t *testing.T) {
	r := NewRegistry()
	r.RegisterInit(Registration{Capability: "clock", Init: func(*InitContext) (any, error) {
		return struct{}{}, nil
	}})

	_, err := r.Get("clock")
	assert.Check(t, is.ErrorType(err, cerrdefs.IsUnavailable))
}

func TestGetUnknownCapability(t *testing.T) {
	r := NewRegistry()
	assert.NilError(t, r.Bootstrap(context.Background()))

	_, err := r.Get("ghost")
	assert.Check(t, is.ErrorType(err, cerrdefs.IsNotFound))
}

func TestInitContextSeesRequirements(t *testing.T) {
	r := NewRegistry()
	r.RegisterInit(Registration{Capability: "bootstrap", Init: func(*InitContext) (any, error) {
		return "ready", nil
	}})
	r.RegisterInit(Registration{Capability: "measure", Requires: []string{"bootstrap"}, Init: func(c *InitContext) (any, error) {
		v, err := c.Get("bootstrap")
		if err != nil {
			return nil, err
		}
		return "measure saw " + v.(string), nil
	}})

	assert.NilError(t, r.Bootstrap(context.Background()))
	v, err := r.Get("measure")
	assert.NilError(t, err)
	assert.Check(t, is.Equal(v, "measure saw ready"))
}

func TestRegisterInitAfterBootstrapPanics(t *testing.T) {
	r := NewRegistry()
	assert.NilError(t, r.Bootstrap(context.Background()))

	defer func() {
		assert.Check(t, recover() != nil, "expected RegisterInit to panic after bootstrap")
	}()
	r.RegisterInit(Registration{Capability: "late", Init: func(*InitContext) (any, error) {
		return struct{}{}, nil
	}})
}
