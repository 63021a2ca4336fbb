package cputime

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/moby/threadtime/capability"
	"github.com/moby/threadtime/telemetry"
)

// Kernel encoding of a per-thread CPU clock id, as produced by
// pthread_getcpuclockid(3): ((~tid) << 3) | CPUCLOCK_PERTHREAD | CPUCLOCK_SCHED.
const (
	cpuClockSched     = 2
	cpuClockPerThread = 4
)

// linuxTimer reads per-thread CPU clocks via clock_gettime(2).
type linuxTimer struct{}

func init() {
	capability.RegisterInit(capability.Registration{
		Capability: Capability,
		Requires:   []string{telemetry.Capability},
		Init: func(c *capability.InitContext) (any, error) {
			v, err := c.Get(telemetry.Capability)
			if err != nil {
				return nil, err
			}
			v.(*telemetry.Bootstrap).MarkBackend("linux")
			return linuxTimer{}, nil
		},
	})
}

// Self returns a handle addressing the calling thread. Lock the goroutine
// to its OS thread first, or the handle may refer to a thread the goroutine
// has already migrated away from.
func Self() (ThreadHandle, error) {
	return ThreadHandle(unix.Gettid()), nil
}

func (linuxTimer) CurrentThreadCPUTime(includeSystemTime bool) (int64, error) {
	// Every thread can address its own CPU clock directly, so the
	// tid-to-clock resolution step is skipped.
	return readClock(unix.CLOCK_THREAD_CPUTIME_ID, includeSystemTime)
}

func (linuxTimer) ThreadCPUTime(h ThreadHandle, includeSystemTime bool) (int64, error) {
	clockID, err := threadCPUClockID(h)
	if err != nil {
		return 0, err
	}
	return readClock(clockID, includeSystemTime)
}

// threadCPUClockID resolves the CPU clock of the thread h refers to. The
// returned id is only valid while that thread is live and must not be
// cached beyond the single read it was resolved for.
func threadCPUClockID(h ThreadHandle) (int32, error) {
	tid := uint32(h)
	clockID := int32((^tid)<<3 | cpuClockPerThread | cpuClockSched)
	// clock_getres fails with EINVAL once the thread has exited; probing
	// here keeps an undefined clock id out of the read path.
	if err := unix.ClockGetres(clockID, nil); err != nil {
		return 0, errors.Wrapf(err, "resolving CPU clock of thread %d", tid)
	}
	return clockID, nil
}

// readClock is the shared read path for both operations.
func readClock(clockID int32, includeSystemTime bool) (int64, error) {
	requireCombined(includeSystemTime)
	var ts unix.Timespec
	if err := unix.ClockGettime(clockID, &ts); err != nil {
		return 0, errors.Wrap(err, "reading thread CPU clock")
	}
	return unix.TimespecToNsec(ts), nil
}
