// Package cputime measures the accumulated CPU time of individual OS
// threads, either the calling thread or an arbitrary live thread addressed
// by an opaque handle.
//
// The platform backend is selected at build time and installed once into
// the capability registry before application code runs; consumers obtain it
// through Lookup and never construct one directly.
package cputime

import (
	"github.com/pkg/errors"

	"github.com/moby/threadtime/capability"
)

// Capability is the registry name the platform backend is installed under.
const Capability = "cputime.timer"

// ThreadHandle is an opaque reference to a live OS thread. Handles are
// owned by whatever thread-management layer produced them; this package
// borrows them for the duration of a single call and never validates
// liveness up front. Every operation on a handle whose thread has exited
// fails.
type ThreadHandle uintptr

// Timer reads the accumulated CPU time of a thread in nanoseconds.
//
// Samples count from an unspecified epoch fixed per clock; they are
// monotonically non-decreasing and meaningful only when differenced against
// earlier samples of the same thread's clock.
//
// Only combined user-mode plus kernel-mode time is supported: passing
// includeSystemTime=false is a contract violation and panics. Environmental
// failures, such as the target thread having exited or the clock read
// failing, are reported as ordinary errors and are expected outcomes for
// callers polling other threads.
type Timer interface {
	// CurrentThreadCPUTime returns the CPU time consumed by the calling
	// thread. The caller should be locked to its OS thread for the sample
	// to be attributable.
	CurrentThreadCPUTime(includeSystemTime bool) (int64, error)

	// ThreadCPUTime returns the CPU time consumed by the thread h refers
	// to, which must still be live.
	ThreadCPUTime(h ThreadHandle, includeSystemTime bool) (int64, error)
}

// Lookup fetches the platform backend installed in the default capability
// registry. It fails if the registry was not bootstrapped or no backend
// exists for this platform.
func Lookup() (Timer, error) {
	v, err := capability.Get(Capability)
	if err != nil {
		return nil, err
	}
	t, ok := v.(Timer)
	if !ok {
		return nil, errors.Errorf("unexpected backend type %T for capability %q", v, Capability)
	}
	return t, nil
}

// requireCombined enforces the combined-mode contract shared by all
// backends. Requesting user-mode-only time indicates an integration bug;
// silently returning the wrong quantity would be worse than crashing.
func requireCombined(includeSystemTime bool) {
	if !includeSystemTime {
		panic("cputime: only combined user-mode and kernel-mode time is supported")
	}
}
