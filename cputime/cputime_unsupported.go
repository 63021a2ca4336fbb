//go:build !linux && !windows

package cputime

import (
	cerrdefs "github.com/containerd/errdefs"
	"github.com/pkg/errors"
)

// No backend is registered on this platform; Lookup reports the capability
// as missing.

// Self returns a handle addressing the calling thread.
func Self() (ThreadHandle, error) {
	return 0, errors.Wrap(cerrdefs.ErrNotImplemented, "thread CPU time is not supported on this platform")
}
