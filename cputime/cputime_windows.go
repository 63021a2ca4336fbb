package cputime

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/windows"

	"github.com/moby/threadtime/capability"
	"github.com/moby/threadtime/telemetry"
)

// windowsTimer reads per-thread CPU time via GetThreadTimes.
type windowsTimer struct{}

func init() {
	capability.RegisterInit(capability.Registration{
		Capability: Capability,
		Requires:   []string{telemetry.Capability},
		Init: func(c *capability.InitContext) (any, error) {
			v, err := c.Get(telemetry.Capability)
			if err != nil {
				return nil, err
			}
			v.(*telemetry.Bootstrap).MarkBackend("windows")
			return windowsTimer{}, nil
		},
	})
}

// Self returns a real handle to the calling thread, usable from other
// threads. The caller owns the handle and is responsible for closing it
// with windows.CloseHandle. Lock the goroutine to its OS thread first.
func Self() (ThreadHandle, error) {
	h, err := windows.OpenThread(windows.THREAD_QUERY_INFORMATION, false, windows.GetCurrentThreadId())
	if err != nil {
		return 0, errors.Wrap(err, "opening handle to current thread")
	}
	return ThreadHandle(h), nil
}

func (windowsTimer) CurrentThreadCPUTime(includeSystemTime bool) (int64, error) {
	// The CurrentThread pseudo handle always refers to the calling
	// thread, so no handle resolution is needed.
	return readThreadTimes(windows.CurrentThread(), includeSystemTime)
}

func (windowsTimer) ThreadCPUTime(h ThreadHandle, includeSystemTime bool) (int64, error) {
	return readThreadTimes(windows.Handle(h), includeSystemTime)
}

// readThreadTimes is the shared read path for both operations. Kernel and
// user FILETIMEs are reported in 100ns units and summed.
func readThreadTimes(h windows.Handle, includeSystemTime bool) (int64, error) {
	requireCombined(includeSystemTime)
	var creation, exit, kernel, user windows.Filetime
	if err := windows.GetThreadTimes(h, &creation, &exit, &kernel, &user); err != nil {
		return 0, errors.Wrap(err, "reading thread times")
	}
	return filetimeNsec(kernel) + filetimeNsec(user), nil
}

// filetimeNsec converts a duration-valued FILETIME to nanoseconds.
// Filetime.Nanoseconds is not used here: it rebases onto the Unix epoch,
// which only makes sense for absolute timestamps.
func filetimeNsec(ft windows.Filetime) int64 {
	return (int64(ft.HighDateTime)<<32 | int64(ft.LowDateTime)) * 100
}
