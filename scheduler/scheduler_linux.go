//go:build linux

package scheduler

import (
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// schedFIFO is Linux's SCHED_FIFO scheduling policy number; x/sys/unix
// does not export it since sched_setscheduler itself is unwrapped.
const schedFIFO = 1

// schedFIFOPriority is a fixed, modest real-time priority: high enough
// to preempt normal SCHED_OTHER tasks, low enough to leave headroom for
// the kernel's own housekeeping threads.
const schedFIFOPriority = 50

// schedParam mirrors struct sched_param from sched.h. x/sys/unix does
// not export a wrapper for sched_setscheduler, so this calls the
// syscall directly with this package's own copy of the kernel's ABI.
type schedParam struct {
	Priority int32
}

func applyRealTimePosture(log *logrus.Logger) {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		if log != nil {
			log.WithError(err).Warn("scheduler: mlockall failed, continuing without locked memory")
		}
	}

	param := schedParam{Priority: schedFIFOPriority}
	_, _, errno := unix.Syscall(unix.SYS_SCHED_SETSCHEDULER, 0, uintptr(schedFIFO), uintptr(unsafe.Pointer(&param)))
	if errno != 0 && log != nil {
		log.WithError(errno).Warn("scheduler: SCHED_FIFO unavailable, continuing at default priority")
	}
}
